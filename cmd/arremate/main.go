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

	"arremate/internal/config"
	"arremate/internal/db"
	"arremate/internal/docqa"
	"arremate/internal/domain"
	"arremate/internal/engine"
	"arremate/internal/migrate"
	"arremate/internal/queue"
	"arremate/internal/repo"
	"arremate/internal/roi"
	"arremate/internal/server"
	"arremate/internal/stage"
)

var rootCmd = &cobra.Command{
	Use:   "arremate",
	Short: "Arremate governance CLI",
	Long: `Arremate governs judicial auction assets: a strict F0-F9 stage
lifecycle, due-diligence risk scoring, versioned ROI projections and a
trigger-based workflow engine. Every mutation lands in a tenant-scoped
audit trail.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("ARREMATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("tenant", "t", "", "tenant id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(emitCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() string  { return viper.GetString("actor-id") }
func tenantID() string { return viper.GetString("tenant") }

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	var platformID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config %s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(platformID)), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace at %s\n", workspace)
			return nil
		},
	}
	cmd.Flags().StringVar(&platformID, "id", "arremate", "platform id")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	var id, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTenant(ctx, id, name, actorID())
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "tenant id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "tenant name")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tenants, err := e.Repo.ListTenants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tenants)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, t := range tenants {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Status, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.AddCommand(create, list)
	return cmd
}

func checklistFromFlags(cmd *cobra.Command) (*domain.Checklist, error) {
	cl := domain.Checklist{}
	for flag, item := range map[string]*domain.ChecklistItem{
		"occupancy":   &cl.Occupancy,
		"debts":       &cl.Debts,
		"legal-risks": &cl.LegalRisks,
		"zoning":      &cl.Zoning,
	} {
		v, err := cmd.Flags().GetString(flag)
		if err != nil {
			return nil, err
		}
		item.Status = domain.ChecklistStatus(v)
	}
	return &cl, nil
}

func addChecklistFlags(cmd *cobra.Command) {
	for _, flag := range []string{"occupancy", "debts", "legal-risks", "zoning"} {
		cmd.Flags().String(flag, "pending", "checklist status (ok|pending|risk)")
	}
}

func assetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "asset", Short: "Manage auction assets"}
	cmd.AddCommand(assetCreateCmd())
	cmd.AddCommand(assetShowCmd())
	cmd.AddCommand(assetListCmd())
	cmd.AddCommand(assetTransitionCmd())
	cmd.AddCommand(assetChecklistCmd())
	cmd.AddCommand(assetROICmd())
	cmd.AddCommand(assetDocumentCmd())
	return cmd
}

func assetCreateCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			checklist, err := checklistFromFlags(cmd)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
					TenantID:    tenantID(),
					Title:       title,
					Description: desc,
					Checklist:   checklist,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "asset title")
	cmd.Flags().StringVar(&desc, "description", "", "asset description")
	addChecklistFlags(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func assetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <asset-id>",
		Short: "Show asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAsset(ctx, tenantID(), args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func assetListCmd() *cobra.Command {
	var stageFilter, riskFilter string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				assets, err := e.ListAssets(ctx, repo.AssetFilters{
					TenantID:  tenantID(),
					Stage:     stageFilter,
					RiskLevel: riskFilter,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Stage", "Risk", "Score", "Bidding"})
				for _, a := range assets {
					bidding := "open"
					if a.BiddingDisabled {
						bidding = "disabled"
					}
					tw.AppendRow(table.Row{a.ID, a.Title, a.CurrentStage, a.RiskLevel, a.RiskScore, bidding})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageFilter, "stage", "", "filter by stage (F0..F9)")
	cmd.Flags().StringVar(&riskFilter, "risk", "", "filter by risk level (LOW|MEDIUM|HIGH)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func assetTransitionCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "transition <asset-id>",
		Short: "Advance asset to the next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := to
				if target == "" {
					a, err := e.GetAsset(ctx, tenantID(), args[0])
					if err != nil {
						return err
					}
					next, ok := stage.Next(a.CurrentStage)
					if !ok {
						return fmt.Errorf("asset is at the terminal stage %s", a.CurrentStage)
					}
					target = next
				}
				a, res, err := e.TransitionStage(ctx, tenantID(), args[0], target, actorID())
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"asset": a, "result": res})
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target stage (defaults to the next one)")
	return cmd
}

func assetChecklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklist <asset-id>",
		Short: "Replace due-diligence checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checklist, err := checklistFromFlags(cmd)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateChecklist(ctx, tenantID(), args[0], *checklist, actorID())
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	addChecklistFlags(cmd)
	return cmd
}

func assetROICmd() *cobra.Command {
	cmd := &cobra.Command{Use: "roi", Short: "ROI projections"}

	var baseVersion int
	var acquisition, taxes, legal, renovation, resale int64
	var resaleDate string
	recompute := &cobra.Command{
		Use:   "recompute <asset-id>",
		Short: "Append a new ROI projection version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in := roi.Inputs{
					AcquisitionPrice:   acquisition,
					Taxes:              taxes,
					LegalCosts:         legal,
					RenovationEstimate: renovation,
					ExpectedResale:     resale,
				}
				if resaleDate != "" {
					in.ExpectedResaleDate = &resaleDate
				}
				rec, err := e.RecomputeROI(ctx, engine.ROIRecomputeOptions{
					TenantID:    tenantID(),
					AssetID:     args[0],
					BaseVersion: baseVersion,
					Inputs:      in,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	recompute.Flags().IntVar(&baseVersion, "base-version", 0, "version the inputs are based on")
	recompute.Flags().Int64Var(&acquisition, "acquisition", 0, "acquisition price, minor units")
	recompute.Flags().Int64Var(&taxes, "taxes", 0, "taxes, minor units")
	recompute.Flags().Int64Var(&legal, "legal", 0, "legal costs, minor units")
	recompute.Flags().Int64Var(&renovation, "renovation", 0, "renovation estimate, minor units")
	recompute.Flags().Int64Var(&resale, "resale", 0, "expected resale value, minor units")
	recompute.Flags().StringVar(&resaleDate, "resale-date", "", "expected resale date (YYYY-MM-DD)")

	show := &cobra.Command{
		Use:   "show <asset-id>",
		Short: "Show latest ROI projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.LatestROI(ctx, tenantID(), args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}

	history := &cobra.Command{
		Use:   "history <asset-id>",
		Short: "List ROI projection versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				recs, err := e.ROIHistory(ctx, tenantID(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Version", "Total", "Net", "ROI %", "Break-even", "By", "At"})
				for _, r := range recs {
					breakEven := ""
					if r.BreakEvenDate != nil {
						breakEven = *r.BreakEvenDate
					}
					tw.AppendRow(table.Row{r.VersionNumber, r.TotalCost, r.NetProfit,
						fmt.Sprintf("%.2f", roi.Percent(r.ROIBasisPoints)), breakEven, r.CreatedBy, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	cmd.AddCommand(recompute, show, history)
	return cmd
}

func assetDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "document", Short: "Asset documents"}

	var name string
	attach := &cobra.Command{
		Use:   "attach <asset-id>",
		Short: "Attach document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AttachDocument(ctx, tenantID(), args[0], name, actorID())
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	attach.Flags().StringVar(&name, "name", "", "document name")
	_ = attach.MarkFlagRequired("name")

	var dpi int
	var ocr float64
	process := &cobra.Command{
		Use:   "process <document-id>",
		Short: "Record extraction metrics and derive quality status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, verdict, err := e.ProcessDocument(ctx, tenantID(), args[0], docqa.Metrics{
					DPI:           dpi,
					OCRConfidence: ocr,
				}, actorID())
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"document": d, "verdict": verdict})
			})
		},
	}
	process.Flags().IntVar(&dpi, "dpi", 0, "scan resolution")
	process.Flags().Float64Var(&ocr, "ocr-confidence", 0, "OCR confidence percentage")

	list := &cobra.Command{
		Use:   "list <asset-id>",
		Short: "List documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				docs, err := e.ListDocuments(ctx, tenantID(), args[0])
				if err != nil {
					return err
				}
				return printJSON(docs)
			})
		},
	}

	cmd.AddCommand(attach, process, list)
	return cmd
}

func triggerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "trigger", Short: "Manage workflow triggers"}

	var name, eventType, condition, actionType, action string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTrigger(ctx, engine.TriggerOptions{
					TenantID:      tenantID(),
					Name:          name,
					EventType:     eventType,
					ConditionJSON: condition,
					ActionType:    actionType,
					ActionJSON:    action,
					ActorID:       actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "trigger name")
	add.Flags().StringVar(&eventType, "event", "", "event type to match")
	add.Flags().StringVar(&condition, "condition", "", "condition JSON")
	add.Flags().StringVar(&actionType, "action-type", "", "create_task|send_notification|block_transition")
	add.Flags().StringVar(&action, "action", "{}", "action config JSON")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("event")
	_ = add.MarkFlagRequired("condition")
	_ = add.MarkFlagRequired("action-type")

	list := &cobra.Command{
		Use:   "list",
		Short: "List triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				triggers, err := e.ListTriggers(ctx, tenantID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(triggers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Event", "Action", "Enabled"})
				for _, t := range triggers {
					tw.AppendRow(table.Row{t.ID, t.Name, t.EventType, t.ActionType, t.Enabled})
				}
				tw.Render()
				return nil
			})
		},
	}

	enable := triggerToggleCmd("enable", true)
	disable := triggerToggleCmd("disable", false)

	del := &cobra.Command{
		Use:   "delete <trigger-id>",
		Short: "Delete trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTrigger(ctx, tenantID(), args[0], actorID())
			})
		},
	}

	cmd.AddCommand(add, list, enable, disable, del)
	return cmd
}

func triggerToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <trigger-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetTriggerEnabled(ctx, tenantID(), args[0], enabled, actorID()); err != nil {
					return err
				}
				t, err := e.GetTrigger(ctx, tenantID(), args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func emitCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "emit <event-type>",
		Short: "Emit a domain event and dispatch triggers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &body); err != nil {
					return fmt.Errorf("invalid payload json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, eventID, err := e.EmitEvent(ctx, tenantID(), args[0], body, actorID())
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"event_id": eventID, "result": res})
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "event payload JSON")
	return cmd
}

func tasksCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List workflow tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, tenantID(), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Trigger", "Created"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Type, t.Title, t.TriggerID, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func notificationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List workflow notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				notes, err := e.Repo.ListNotifications(ctx, tenantID(), limit)
				if err != nil {
					return err
				}
				return printJSON(notes)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func jobsCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List queue jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.Repo.ListJobs(ctx, tenantID(), status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Event", "Status", "Attempts", "Run after"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.EventType, j.Status, j.Attempts, j.RunAfter})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|running|done|failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit trail"}
	var afterID int64
	var limit int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.ListAudit(ctx, repo.AuditFilters{
					TenantID:   tenantID(),
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					AfterID:    afterID,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.ID, entry.TS, entry.Type,
						entry.EntityKind + "/" + entry.EntityID, entry.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().Int64Var(&afterID, "after", 0, "only entries after this id")
	tail.Flags().IntVar(&limit, "limit", 50, "max rows")
	tail.Flags().StringVar(&evtType, "type", "", "filter by entry type")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	cmd.AddCommand(tail)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create API key (the raw key is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID() == "" {
				return engine.ErrTenantRequired
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw := "ak_" + uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					TenantID:  tenantID(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSON(map[string]any{"id": key.ID, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "key label")
	_ = create.MarkFlagRequired("actor")
	cmd.AddCommand(create)
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Println("queue worker running; Ctrl-C to stop")
				queue.NewWorker(e).Run(ctx)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ARREMATE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ARREMATE_JWT_SECRET is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:      e,
				BasePath:    basePath,
				Auth:        authCfg,
				StartWorker: withWorker,
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
			fmt.Printf("Serving Arremate API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	cmd.Flags().BoolVar(&withWorker, "worker", true, "run the queue worker in-process")
	return cmd
}
