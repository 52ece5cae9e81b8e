package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackfit/internal/app"
	"trackfit/internal/db"
	"trackfit/internal/domain"
	"trackfit/internal/engine"
	"trackfit/internal/engine/auth"
	"trackfit/internal/repo"
	"trackfit/internal/server"
	"trackfit/internal/tag"
)

var rootCmd = &cobra.Command{
	Use:   "tf",
	Short: "Trackfit CLI",
	Long: `Trackfit tracks railway track fittings from identifier issuance to retirement.
- Units: elastic clips, rail pads, liners and sleepers, each with a scannable tag.
- Tasks: work assignments on a unit (fit, inspect); completing work closes them.
- Alerts: escalation notices for new assignments and near-expiry warranties.
- Inbox: alerts addressed to your role, acknowledged one by one.
Workspace state lives under .trackfit/ next to trackfit.yml.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRACKFIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "admin1", "acting username")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func generateCmd() *cobra.Command {
	var materials []string
	var vendorLot, vendorCode string
	var batchNo, qty, warrantyDays int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Bulk-issue unit identifiers and tag artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				mats := make([]domain.MaterialType, 0, len(materials))
				for _, m := range materials {
					mats = append(mats, domain.MaterialType(m))
				}
				if len(mats) == 0 {
					mats = domain.Materials
				}
				units, err := e.GenerateUnits(ctx, engine.GenerateOptions{
					Materials:    mats,
					VendorLot:    vendorLot,
					BatchNo:      batchNo,
					Quantity:     qty,
					VendorCode:   vendorCode,
					WarrantyDays: warrantyDays,
					Actor:        actor,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(units)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Lot", "Expiry", "Tag"})
				for _, u := range units {
					tw.AppendRow(table.Row{u.ID, u.MaterialType, u.VendorLot, u.ExpiryDate, u.TagRef})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&materials, "material", nil, "material types (default: all)")
	cmd.Flags().StringVar(&vendorLot, "vendor-lot", "", "vendor lot label")
	cmd.Flags().StringVar(&vendorCode, "vendor-code", "", "vendor code (default from config)")
	cmd.Flags().IntVar(&batchNo, "batch", 1, "batch number")
	cmd.Flags().IntVar(&qty, "qty", 1, "units per material")
	cmd.Flags().IntVar(&warrantyDays, "warranty-days", 0, "warranty period (default from config)")
	return cmd
}

func unitCmd() *cobra.Command {
	unit := &cobra.Command{Use: "unit", Short: "Manage units"}
	unit.AddCommand(unitListCmd())
	unit.AddCommand(unitShowCmd())
	unit.AddCommand(unitUpdateCmd())
	return unit
}

func unitListCmd() *cobra.Command {
	var material, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				units, err := r.ListUnits(ctx, repo.UnitFilters{
					MaterialType: domain.MaterialType(material),
					Status:       domain.UnitStatus(status),
					Limit:        limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(units)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Fitted", "Inspected", "Expiry"})
				for _, u := range units {
					tw.AppendRow(table.Row{u.ID, u.MaterialType, u.Status, u.FittedDate, u.InspectionDate, u.ExpiryDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&material, "material", "", "filter by material type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func unitShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <unit-id>",
		Short: "Show one unit with its tasks and alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := r.GetUnit(ctx, args[0])
				if err != nil {
					return err
				}
				tasks, err := r.ListTasks(ctx, repo.TaskFilters{UnitID: u.ID})
				if err != nil {
					return err
				}
				alerts, err := r.ListAlerts(ctx, repo.AlertFilters{UnitID: u.ID})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"unit":    u,
					"payload": tag.RenderUnit(u),
					"tasks":   tasks,
					"alerts":  alerts,
				})
			})
		},
	}
	return cmd
}

func unitUpdateCmd() *cobra.Command {
	var fitted, inspected, status string
	cmd := &cobra.Command{
		Use:   "update <unit-id>",
		Short: "Update unit lifecycle fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				u, err := e.UpdateUnit(ctx, actor, args[0], engine.UnitUpdate{
					FittedDate:     fitted,
					InspectionDate: inspected,
					Status:         domain.UnitStatus(status),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&fitted, "fitted", "", "fitted date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&inspected, "inspected", "", "inspection date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "unit status")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCompleteCmd())
	return task
}

func taskAssignCmd() *cobra.Command {
	var unitID, assignee, role, remarks string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign work on a unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unitID == "" || assignee == "" || role == "" {
				return fmt.Errorf("--unit, --to and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				res, err := e.AssignTask(ctx, actor, unitID, assignee, domain.Role(role), remarks)
				if err != nil {
					return err
				}
				if res.AlertErr != nil {
					fmt.Printf("warning: task %d saved but alert failed: %v\n", res.Task.ID, res.AlertErr)
				}
				return printJSONOrTable(res.Task)
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "unit id")
	cmd.Flags().StringVar(&assignee, "to", "", "assignee username or role")
	cmd.Flags().StringVar(&role, "role", "", "assignee role")
	cmd.Flags().StringVar(&remarks, "remarks", "", "free-form remarks")
	return cmd
}

func taskListCmd() *cobra.Command {
	var unitID, status, assignedTo string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, repo.TaskFilters{
					UnitID:     unitID,
					Status:     domain.TaskStatus(status),
					AssignedTo: assignedTo,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Unit", "Assigned To", "Status", "Updated"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.UnitID, t.AssignedTo, t.Status, t.LastUpdate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "filter by unit id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "filter by assignee")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var fitted, inspected, status string
	cmd := &cobra.Command{
		Use:   "complete <unit-id>",
		Short: "Record field work and complete your pending tasks on a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				res, err := e.RecordWork(ctx, actor, args[0], engine.UnitUpdate{
					FittedDate:     fitted,
					InspectionDate: inspected,
					Status:         domain.UnitStatus(status),
				})
				if err != nil {
					return err
				}
				if res.Completed {
					fmt.Println("tasks completed")
					if res.SweepErr != nil {
						fmt.Fprintf(os.Stderr, "warning: expiry sweep failed: %v\n", res.SweepErr)
					} else if n := len(res.Sweep.Raised); n > 0 {
						fmt.Printf("%d expiry alert(s) raised\n", n)
					}
				} else {
					fmt.Println("no pending tasks for you on this unit")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fitted, "fitted", "", "fitted date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&inspected, "inspected", "", "inspection date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "unit status")
	return cmd
}

func alertCmd() *cobra.Command {
	alert := &cobra.Command{Use: "alert", Short: "Manage alerts"}
	alert.AddCommand(alertListCmd())
	alert.AddCommand(alertAckCmd())
	alert.AddCommand(alertSweepCmd())
	return alert
}

func alertListCmd() *cobra.Command {
	var unitID, typ, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				alerts, err := r.ListAlerts(ctx, repo.AlertFilters{
					UnitID: unitID,
					Type:   domain.AlertType(typ),
					Status: domain.AlertStatus(status),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(alerts)
				}
				renderAlerts(alerts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "filter by unit id")
	cmd.Flags().StringVar(&typ, "type", "", "filter by alert type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func alertAckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Mark an alert as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				ok, err := e.Acknowledge(ctx, actor, id)
				if err != nil {
					return err
				}
				if ok {
					fmt.Println("acknowledged")
				} else {
					fmt.Println("nothing to acknowledge")
				}
				return nil
			})
		},
	}
	return cmd
}

func alertSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the warranty expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				res, err := e.SweepExpiry(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"scanned":    res.Scanned,
					"raised":     res.Raised,
					"suppressed": res.Suppressed,
				})
			})
		},
	}
	return cmd
}

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Alerts addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Identity) error {
				alerts, err := e.Inbox(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(alerts)
				}
				renderAlerts(alerts)
				return nil
			})
		},
	}
	return cmd
}

func scanCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "scan [payload]",
		Short: "Resolve tag payload text to its unit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Identity) error {
				var payload string
				switch {
				case len(args) == 1:
					payload = args[0]
				case file != "":
					data, err := os.ReadFile(file)
					if err != nil {
						return err
					}
					payload = strings.TrimSpace(string(data))
				default:
					return fmt.Errorf("payload argument or --file required")
				}
				u, err := e.ResolvePayload(ctx, payload)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read payload from a tag artifact file")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Registry counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountUnitsByStatus(ctx)
				if err != nil {
					return err
				}
				pending, err := r.ListTasks(ctx, repo.TaskFilters{Status: domain.TaskPending})
				if err != nil {
					return err
				}
				active, err := r.ListAlerts(ctx, repo.AlertFilters{Status: domain.AlertActive})
				if err != nil {
					return err
				}
				out := map[string]any{
					"units":         counts,
					"pending_tasks": len(pending),
					"active_alerts": len(active),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Println("Units:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Printf("Pending tasks: %d\n", len(pending))
				fmt.Printf("Active alerts: %d\n", len(active))
				return nil
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userListCmd())
	user.AddCommand(userAddCmd())
	user.AddCommand(userRmCmd())
	return user
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Employer ID", "Username", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.EmployerID, u.Username, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userAddCmd() *cobra.Command {
	var employerID, username, password, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" || role == "" {
				return fmt.Errorf("--username, --password and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				err = r.InsertUser(ctx, tx, domain.User{
					EmployerID:   employerID,
					Username:     username,
					PasswordHash: repo.HashPassword(password),
					Role:         domain.Role(role),
				})
				if err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	cmd.Flags().StringVar(&employerID, "employer-id", "", "employer id")
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", "", "role")
	return cmd
}

func userRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <username>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteUser(ctx, args[0])
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRmCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var username, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, username); err != nil {
					return err
				}
				secret := "tfk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				err := r.InsertAPIKey(ctx, nil, domain.APIKey{
					ID:       uuid.NewString(),
					Username: username,
					Name:     name,
					KeyHash:  repo.HashAPIKey(secret),
				})
				if err != nil {
					return err
				}
				// the secret is shown once and never stored
				fmt.Println(secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Username, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "filter by account")
	return cmd
}

func apikeyRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			appCtx, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TRACKFIT_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TRACKFIT_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:  appCtx.Engine,
				Auth:    auth.Service{DB: appCtx.DB},
				AuthCfg: authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Trackfit API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Identity) error) error {
	workspace := viper.GetString("workspace")
	appCtx, err := app.Open(ctx, workspace)
	if err != nil {
		return err
	}
	defer appCtx.Close()
	actor, err := auth.Service{DB: appCtx.DB}.Resolve(ctx, viper.GetString("as"))
	if err != nil {
		return fmt.Errorf("resolve acting user: %w", err)
	}
	return fn(ctx, appCtx.Engine, actor)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	appCtx, err := app.Open(ctx, workspace)
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, repo.Repo{DB: appCtx.DB})
}

func renderAlerts(alerts []domain.Alert) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Unit", "Type", "To Role", "Status", "Notes"})
	for _, a := range alerts {
		tw.AppendRow(table.Row{a.ID, a.UnitID, a.Type, a.AssignedToRole, a.Status, a.Notes})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
