package domain

// MaterialType identifies the kind of track fitting a Unit is.
type MaterialType string

const (
	MaterialElasticClip MaterialType = "elastic_clip"
	MaterialRailPad     MaterialType = "rail_pad"
	MaterialLiner       MaterialType = "liner"
	MaterialSleeper     MaterialType = "sleeper"
)

// MaterialCodes maps material types to the two-letter prefix of a unit id.
var MaterialCodes = map[MaterialType]string{
	MaterialElasticClip: "EC",
	MaterialRailPad:     "RP",
	MaterialLiner:       "LN",
	MaterialSleeper:     "SL",
}

// Materials lists all known material types in a stable order.
var Materials = []MaterialType{MaterialElasticClip, MaterialRailPad, MaterialLiner, MaterialSleeper}

func (m MaterialType) Valid() bool {
	_, ok := MaterialCodes[m]
	return ok
}

// Code returns the id prefix for the material, "XX" when unknown.
func (m MaterialType) Code() string {
	if c, ok := MaterialCodes[m]; ok {
		return c
	}
	return "XX"
}

type UnitStatus string

const (
	UnitPending   UnitStatus = "Pending"
	UnitFitted    UnitStatus = "Fitted"
	UnitInspected UnitStatus = "Inspected"
	UnitRetired   UnitStatus = "Retired"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitPending, UnitFitted, UnitInspected, UnitRetired:
		return true
	}
	return false
}

type Unit struct {
	ID             string       `json:"id"`
	MaterialType   MaterialType `json:"material_type" enum:"elastic_clip,rail_pad,liner,sleeper"`
	VendorLot      string       `json:"vendor_lot"`
	MfgDate        string       `json:"mfg_date" format:"date"`
	ExpiryDate     string       `json:"expiry_date" format:"date"`
	WarrantyDays   int          `json:"warranty_days"`
	FittedDate     string       `json:"fitted_date,omitempty" format:"date"`
	InspectionDate string       `json:"inspection_date,omitempty" format:"date"`
	Status         UnitStatus   `json:"status" enum:"Pending,Fitted,Inspected,Retired"`
	TagRef         string       `json:"tag_ref,omitempty"`
	CreatedAt      string       `json:"created_at" format:"date-time"`
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskCompleted TaskStatus = "Completed"
)

// Task is one assignment of work on a unit. AssignedTo holds either a
// worker username or a role name; completion matches against both.
type Task struct {
	ID         int64      `json:"id"`
	UnitID     string     `json:"unit_id"`
	AssignedBy string     `json:"assigned_by"`
	AssignedTo string     `json:"assigned_to"`
	AssignedAt string     `json:"assigned_at" format:"date-time"`
	Status     TaskStatus `json:"status" enum:"Pending,Completed"`
	LastUpdate string     `json:"last_update" format:"date-time"`
	Remarks    string     `json:"remarks,omitempty"`
}

type AlertType string

const (
	AlertTaskAssigned AlertType = "Task Assigned"
	AlertNearExpiry   AlertType = "Near Expiry"
)

type AlertStatus string

const (
	AlertActive AlertStatus = "Active"
	AlertRead   AlertStatus = "Read"
)

type Alert struct {
	ID             int64       `json:"id"`
	UnitID         string      `json:"unit_id"`
	Type           AlertType   `json:"type"`
	CreatedAt      string      `json:"created_at" format:"date-time"`
	AssignedToRole Role        `json:"assigned_to_role"`
	AssignedTo     string      `json:"assigned_to,omitempty"`
	EscalatedTo    string      `json:"escalated_to,omitempty"`
	Status         AlertStatus `json:"status" enum:"Active,Read"`
	Notes          string      `json:"notes,omitempty"`
}

// Role is the closed set of worker roles.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleJE        Role = "JE"
	RoleTechnical Role = "Technical"
	RolePWI       Role = "PWI"
	RoleSRE       Role = "SRE"
	RoleDRE       Role = "DRE"
	RoleZonal     Role = "Zonal"
)

// Roles lists every role in hierarchy order, field level first.
var Roles = []Role{RoleJE, RoleTechnical, RolePWI, RoleSRE, RoleDRE, RoleZonal, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleJE, RoleTechnical, RolePWI, RoleSRE, RoleDRE, RoleZonal:
		return true
	}
	return false
}

// capability describes what a role may do and who supervises it.
type capability struct {
	Issue      bool
	Assign     bool
	Complete   bool
	Escalation Role
}

var capabilities = map[Role]capability{
	RoleJE:        {Complete: true, Escalation: RoleSRE},
	RoleTechnical: {Complete: true, Escalation: RoleSRE},
	RolePWI:       {Complete: true, Escalation: RoleSRE},
	RoleSRE:       {Escalation: RoleDRE},
	RoleDRE:       {Escalation: RoleZonal},
	RoleZonal:     {Escalation: RoleZonal},
	RoleAdmin:     {Issue: true, Assign: true, Escalation: RoleZonal},
}

// CanIssue reports whether the role may bulk-generate unit identifiers.
func (r Role) CanIssue() bool { return capabilities[r].Issue }

// CanAssign reports whether the role may create task assignments.
func (r Role) CanAssign() bool { return capabilities[r].Assign }

// CanComplete reports whether the role performs field work and may
// complete tasks.
func (r Role) CanComplete() bool { return capabilities[r].Complete }

// EscalationTarget returns the authority role notified when work is
// assigned to r: field roles escalate to SRE, SRE to DRE, everything
// else to Zonal.
func (r Role) EscalationTarget() Role {
	if c, ok := capabilities[r]; ok {
		return c.Escalation
	}
	return RoleZonal
}

// Identity is an authenticated worker, threaded through every core call.
type Identity struct {
	EmployerID string `json:"employer_id"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
}

// User is a stored account record; PasswordHash never leaves the repo.
type User struct {
	EmployerID   string `json:"employer_id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
