package server

import (
	"trackfit/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type GenerateUnitsRequest struct {
	Materials    []string `json:"materials" enum:"elastic_clip,rail_pad,liner,sleeper"`
	VendorLot    string   `json:"vendor_lot"`
	BatchNo      int      `json:"batch_no"`
	Quantity     int      `json:"quantity"`
	VendorCode   *string  `json:"vendor_code,omitempty"`
	WarrantyDays *int     `json:"warranty_days,omitempty"`
}

type UpdateUnitRequest struct {
	FittedDate     *string `json:"fitted_date,omitempty" format:"date"`
	InspectionDate *string `json:"inspection_date,omitempty" format:"date"`
	Status         *string `json:"status,omitempty" enum:"Pending,Fitted,Inspected,Retired"`
}

type AssignTaskRequest struct {
	AssignedTo   string  `json:"assigned_to"`
	AssigneeRole string  `json:"assignee_role" enum:"Admin,JE,Technical,PWI,SRE,DRE,Zonal"`
	Remarks      *string `json:"remarks,omitempty"`
}

type RecordWorkRequest struct {
	FittedDate     *string `json:"fitted_date,omitempty" format:"date"`
	InspectionDate *string `json:"inspection_date,omitempty" format:"date"`
	Status         *string `json:"status,omitempty" enum:"Pending,Fitted,Inspected,Retired"`
}

type ScanRequest struct {
	Payload string `json:"payload"`
}

// Response payloads

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type WhoAmIResponse struct {
	EmployerID string `json:"employer_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	Source     string `json:"source"`
}

type GenerateUnitsResponse struct {
	Units []domain.Unit `json:"units"`
	Count int           `json:"count"`
}

type AssignTaskResponse struct {
	Task       domain.Task `json:"task"`
	AlertID    int64       `json:"alert_id,omitempty"`
	AlertError string      `json:"alert_error,omitempty"`
}

type RecordWorkResponse struct {
	Unit         domain.Unit `json:"unit"`
	Completed    bool        `json:"completed"`
	AlertsRaised int         `json:"alerts_raised,omitempty"`
	SweepError   string      `json:"sweep_error,omitempty"`
}

type AckResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

type SweepResponse struct {
	Scanned    int     `json:"scanned"`
	Raised     []int64 `json:"raised"`
	Suppressed int     `json:"suppressed"`
}

type ProductViewResponse struct {
	Unit    domain.Unit    `json:"unit"`
	Payload string         `json:"payload"`
	Tasks   []domain.Task  `json:"tasks"`
	Alerts  []domain.Alert `json:"alerts"`
}

type StatusResponse struct {
	Units        map[string]int `json:"units"`
	PendingTasks int            `json:"pending_tasks"`
	ActiveAlerts int            `json:"active_alerts"`
}
