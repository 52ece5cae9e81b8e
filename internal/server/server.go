package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"trackfit/internal/domain"
	"trackfit/internal/engine"
	"trackfit/internal/engine/auth"
	"trackfit/internal/repo"
	"trackfit/internal/tag"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Auth     auth.Service
	BasePath string
	AuthCfg  AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"role JE may not generate units"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Trackfit API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.AuthCfg, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Trackfit API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Auth, cfg.AuthCfg, cfg.Engine)
	registerUnits(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerAlerts(group, cfg.Engine)
	registerScan(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerStatus(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fe.Role, "action": fe.Action})
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	case errors.Is(err, engine.ErrUnitNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrExhaustedIdentifierSpace):
		return newAPIError(http.StatusConflict, "identifier_space_exhausted", err.Error(), nil)
	case errors.Is(err, repo.ErrDuplicateID):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, tag.ErrMalformedPayload), errors.Is(err, tag.ErrNotDetected):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "must be") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, authSvc auth.Service, authCfg AuthConfig, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		id, err := authSvc.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		token, err := signToken(authCfg.JWTSecret, id, authCfg.ttl(), now)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, Username: id.Username, Role: string(id.Role)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			EmployerID: p.Identity.EmployerID,
			Username:   p.Identity.Username,
			Role:       string(p.Identity.Role),
			Source:     p.Source,
		}}, nil
	})
}

func registerUnits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-units",
		Method:      http.MethodPost,
		Path:        "/units/generate",
		Summary:     "Bulk-issue unit identifiers",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body GenerateUnitsRequest `json:"body"`
	}) (*struct {
		Body GenerateUnitsResponse `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		materials := make([]domain.MaterialType, 0, len(input.Body.Materials))
		for _, m := range input.Body.Materials {
			materials = append(materials, domain.MaterialType(m))
		}
		opts := engine.GenerateOptions{
			Materials: materials,
			VendorLot: input.Body.VendorLot,
			BatchNo:   input.Body.BatchNo,
			Quantity:  input.Body.Quantity,
			Actor:     actor,
		}
		if input.Body.VendorCode != nil {
			opts.VendorCode = *input.Body.VendorCode
		}
		if input.Body.WarrantyDays != nil {
			opts.WarrantyDays = *input.Body.WarrantyDays
		}
		units, err := e.GenerateUnits(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenerateUnitsResponse `json:"body"`
		}{Body: GenerateUnitsResponse{Units: units, Count: len(units)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List registered units",
	}, func(ctx context.Context, input *struct {
		MaterialType string `query:"material_type"`
		Status       string `query:"status"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body []domain.Unit `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		units, err := e.Repo.ListUnits(ctx, repo.UnitFilters{
			MaterialType: domain.MaterialType(input.MaterialType),
			Status:       domain.UnitStatus(input.Status),
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if units == nil {
			units = []domain.Unit{}
		}
		return &struct {
			Body []domain.Unit `json:"body"`
		}{Body: units}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-unit",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}",
		Summary:     "Fetch one unit",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UnitID string `path:"unit_id"`
	}) (*struct {
		Body domain.Unit `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUnit(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Unit `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-unit",
		Method:      http.MethodPatch,
		Path:        "/units/{unit_id}",
		Summary:     "Update unit lifecycle fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UnitID string            `path:"unit_id"`
		Body   UpdateUnitRequest `json:"body"`
	}) (*struct {
		Body domain.Unit `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateUnit(ctx, actor, input.UnitID, engine.UnitUpdate{
			FittedDate:     deref(input.Body.FittedDate),
			InspectionDate: deref(input.Body.InspectionDate),
			Status:         domain.UnitStatus(deref(input.Body.Status)),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Unit `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unit-product-view",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}/product",
		Summary:     "Unit with its tag payload, tasks and alerts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UnitID string `path:"unit_id"`
	}) (*struct {
		Body ProductViewResponse `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUnit(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{UnitID: u.ID})
		if err != nil {
			return nil, handleError(err)
		}
		alerts, err := e.Repo.ListAlerts(ctx, repo.AlertFilters{UnitID: u.ID})
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		if alerts == nil {
			alerts = []domain.Alert{}
		}
		return &struct {
			Body ProductViewResponse `json:"body"`
		}{Body: ProductViewResponse{
			Unit:    u,
			Payload: tag.RenderUnit(u),
			Tasks:   tasks,
			Alerts:  alerts,
		}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/tasks",
		Summary:     "Assign work on a unit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UnitID string            `path:"unit_id"`
		Body   AssignTaskRequest `json:"body"`
	}) (*struct {
		Body AssignTaskResponse `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AssignTask(ctx, actor, input.UnitID, input.Body.AssignedTo,
			domain.Role(input.Body.AssigneeRole), deref(input.Body.Remarks))
		if err != nil {
			return nil, handleError(err)
		}
		out := AssignTaskResponse{Task: res.Task, AlertID: res.AlertID}
		if res.AlertErr != nil {
			out.AlertError = res.AlertErr.Error()
		}
		return &struct {
			Body AssignTaskResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		UnitID     string `query:"unit_id"`
		Status     string `query:"status"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			UnitID:     input.UnitID,
			Status:     domain.TaskStatus(input.Status),
			AssignedTo: input.AssignedTo,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-work",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/work",
		Summary:     "Record field work and complete the caller's pending tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UnitID string            `path:"unit_id"`
		Body   RecordWorkRequest `json:"body"`
	}) (*struct {
		Body RecordWorkResponse `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RecordWork(ctx, actor, input.UnitID, engine.UnitUpdate{
			FittedDate:     deref(input.Body.FittedDate),
			InspectionDate: deref(input.Body.InspectionDate),
			Status:         domain.UnitStatus(deref(input.Body.Status)),
		})
		if err != nil {
			return nil, handleError(err)
		}
		u, err := e.Repo.GetUnit(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		out := RecordWorkResponse{Unit: u, Completed: res.Completed, AlertsRaised: len(res.Sweep.Raised)}
		if res.SweepErr != nil {
			out.SweepError = res.SweepErr.Error()
		}
		return &struct {
			Body RecordWorkResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAlerts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "List alerts",
	}, func(ctx context.Context, input *struct {
		UnitID string `query:"unit_id"`
		Type   string `query:"type"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []domain.Alert `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		alerts, err := e.Repo.ListAlerts(ctx, repo.AlertFilters{
			UnitID: input.UnitID,
			Type:   domain.AlertType(input.Type),
			Status: domain.AlertStatus(input.Status),
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if alerts == nil {
			alerts = []domain.Alert{}
		}
		return &struct {
			Body []domain.Alert `json:"body"`
		}{Body: alerts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{alert_id}/ack",
		Summary:     "Mark an alert as read",
	}, func(ctx context.Context, input *struct {
		AlertID int64 `path:"alert_id"`
	}) (*struct {
		Body AckResponse `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := e.Acknowledge(ctx, actor, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AckResponse `json:"body"`
		}{Body: AckResponse{Acknowledged: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-expiry",
		Method:      http.MethodPost,
		Path:        "/alerts/sweep",
		Summary:     "Run the warranty expiry sweep",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepResponse `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SweepExpiry(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		raised := res.Raised
		if raised == nil {
			raised = []int64{}
		}
		return &struct {
			Body SweepResponse `json:"body"`
		}{Body: SweepResponse{Scanned: res.Scanned, Raised: raised, Suppressed: res.Suppressed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "inbox",
		Method:      http.MethodGet,
		Path:        "/inbox",
		Summary:     "Alerts addressed to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Alert `json:"body"`
	}, error) {
		actor, authErr := identityFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		alerts, err := e.Inbox(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if alerts == nil {
			alerts = []domain.Alert{}
		}
		return &struct {
			Body []domain.Alert `json:"body"`
		}{Body: alerts}, nil
	})
}

func registerScan(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "scan",
		Method:      http.MethodPost,
		Path:        "/scan",
		Summary:     "Resolve tag payload text to its unit",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ScanRequest `json:"body"`
	}) (*struct {
		Body domain.Unit `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.ResolvePayload(ctx, input.Body.Payload)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Unit `json:"body"`
		}{Body: u}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest event log entries",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		evts, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Registry counters",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		counts, err := e.Repo.CountUnitsByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		units := map[string]int{}
		for status, n := range counts {
			units[string(status)] = n
		}
		pending, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.TaskPending})
		if err != nil {
			return nil, handleError(err)
		}
		active, err := e.Repo.ListAlerts(ctx, repo.AlertFilters{Status: domain.AlertActive})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			Units:        units,
			PendingTasks: len(pending),
			ActiveAlerts: len(active),
		}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):     true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Trackfit API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
