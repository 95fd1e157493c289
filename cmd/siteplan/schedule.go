package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"siteplan/internal/app"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/gantt"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assign", Short: "Book artisans onto projects"}
	cmd.AddCommand(assignAddCmd())
	cmd.AddCommand(assignCheckCmd())
	cmd.AddCommand(assignListCmd())
	cmd.AddCommand(assignUpdateCmd())
	cmd.AddCommand(assignDeleteCmd())
	return cmd
}

var assignmentHeader = table.Row{"ID", "Artisan", "Project", "Start", "End", "Hours/day", "Status"}

func assignmentRows(assignments ...domain.Assignment) []table.Row {
	rows := make([]table.Row, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, table.Row{a.ID, a.ArtisanID, a.ProjectID, a.StartDate, a.EndDate, a.HoursPerDay, a.Status})
	}
	return rows
}

func assignmentFlags(cmd *cobra.Command, in *engine.AssignmentInput) {
	cmd.Flags().StringVar(&in.ArtisanID, "artisan", "", "artisan id")
	cmd.Flags().StringVar(&in.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&in.EndDate, "end", "", "last day YYYY-MM-DD (inclusive)")
	cmd.Flags().Float64Var(&in.HoursPerDay, "hours", 8, "hours per day (1-12)")
	for _, name := range []string{"artisan", "project", "start", "end"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func assignAddCmd() *cobra.Command {
	var in engine.AssignmentInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Book an artisan; rejected if it overlaps another booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				a, err := ws.Engine.CreateAssignment(ctx, actor, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(a, assignmentHeader, assignmentRows(a))
			})
		},
	}
	assignmentFlags(cmd, &in)
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&in.Status, "status", "", "Planned, In Progress, Completed or Cancelled")
	cmd.Flags().IntVar(&in.Priority, "priority", 0, "priority")
	return cmd
}

func assignCheckCmd() *cobra.Command {
	var in engine.AssignmentInput
	var excluding string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether a booking would be accepted, without writing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				err := ws.Engine.CheckAssignment(ctx, actor, in, excluding)
				rej, rejected := schedule.AsRejection(err)
				if err != nil && !rejected {
					return err
				}
				if viper.GetBool("json") {
					if rejected {
						return printJSON(map[string]any{"ok": false, "reason": rej.Reason, "detail": rej.Detail, "conflicts": rej.Conflicts})
					}
					return printJSON(map[string]any{"ok": true})
				}
				if rejected {
					return rej
				}
				fmt.Println("ok")
				return nil
			})
		},
	}
	assignmentFlags(cmd, &in)
	cmd.Flags().StringVar(&excluding, "excluding", "", "assignment being edited")
	return cmd
}

func assignListCmd() *cobra.Command {
	var q engine.AssignmentQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				assignments, err := ws.Engine.ListAssignments(ctx, actor, q)
				if err != nil {
					return err
				}
				return printJSONOrTable(assignments, assignmentHeader, assignmentRows(assignments...))
			})
		},
	}
	cmd.Flags().StringVar(&q.ArtisanID, "artisan", "", "artisan filter")
	cmd.Flags().StringVar(&q.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&q.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&q.From, "from", "", "only assignments ending on or after this date")
	cmd.Flags().StringVar(&q.To, "to", "", "only assignments starting on or before this date")
	return cmd
}

func assignUpdateCmd() *cobra.Command {
	var artisanID, projectID, start, end, notes, status string
	var hours, completed float64
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an assignment; date or artisan changes are re-validated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := engine.AssignmentUpdate{
				ID:             args[0],
				ArtisanID:      changed(cmd, "artisan", artisanID),
				ProjectID:      changed(cmd, "project", projectID),
				StartDate:      changed(cmd, "start", start),
				EndDate:        changed(cmd, "end", end),
				HoursPerDay:    changed(cmd, "hours", hours),
				CompletedHours: changed(cmd, "completed", completed),
				Notes:          changed(cmd, "notes", notes),
				Status:         changed(cmd, "status", status),
				Priority:       changed(cmd, "priority", priority),
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				a, err := ws.Engine.UpdateAssignment(ctx, actor, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(a, assignmentHeader, assignmentRows(a))
			})
		},
	}
	cmd.Flags().StringVar(&artisanID, "artisan", "", "artisan id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&start, "start", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day YYYY-MM-DD")
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours per day (1-12)")
	cmd.Flags().Float64Var(&completed, "completed", 0, "completed hours")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&status, "status", "", "Planned, In Progress, Completed or Cancelled")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority")
	return cmd
}

func assignDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				return ws.Engine.DeleteAssignment(ctx, actor, args[0])
			})
		},
	}
}

func windowStart(from string) (time.Time, error) {
	if from == "" {
		return time.Now().UTC(), nil
	}
	t, err := schedule.ParseDate(from)
	if err != nil {
		return time.Time{}, fmt.Errorf("--from: %q is not a YYYY-MM-DD date", from)
	}
	return t, nil
}

func ganttCmd() *cobra.Command {
	var from string
	var days int
	cmd := &cobra.Command{
		Use:   "gantt",
		Short: "Show the project timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := windowStart(from)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				chart, err := ws.Engine.Gantt(ctx, actor, start, days)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(chart)
				}
				fmt.Printf("%s .. %s\n", chart.From, chart.To)
				return printJSONOrTable(chart, table.Row{"Project", "Team", "Artisan", "Dates", "Timeline"}, ganttRows(chart))
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&days, "days", 0, "window length (default schedule.window_days)")
	return cmd
}

// ganttRows renders one line per bar: '#' on booked days, ':' on weekends
// and holidays, '.' otherwise.
func ganttRows(chart gantt.Chart) []table.Row {
	var rows []table.Row
	for _, r := range chart.Rows {
		for i, b := range r.Bars {
			var sb strings.Builder
			for d, day := range chart.Days {
				switch {
				case d >= b.Offset && d < b.Offset+b.Span:
					sb.WriteByte('#')
				case day.Weekend || day.Holiday:
					sb.WriteByte(':')
				default:
					sb.WriteByte('.')
				}
			}
			project, team := r.ProjectName, r.Team
			if i > 0 {
				project, team = "", ""
			}
			rows = append(rows, table.Row{project, team, b.ArtisanName, b.StartDate + " .. " + b.EndDate, sb.String()})
		}
	}
	return rows
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "export", Short: "Export the schedule"}
	cmd.AddCommand(exportXLSXCmd())
	cmd.AddCommand(exportICSCmd())
	return cmd
}

// openOut returns stdout for "-" and a created file otherwise.
func openOut(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportXLSXCmd() *cobra.Command {
	var from, out string
	var days int
	cmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Write the Gantt window as a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := windowStart(from)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				w, err := openOut(out)
				if err != nil {
					return err
				}
				if err := ws.Engine.ExportXLSX(ctx, actor, w, start, days); err != nil {
					w.Close()
					return err
				}
				return w.Close()
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "schedule.xlsx", "output file, - for stdout")
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&days, "days", 0, "window length (default schedule.window_days)")
	return cmd
}

func exportICSCmd() *cobra.Command {
	var artisanID, out string
	cmd := &cobra.Command{
		Use:   "ics",
		Short: "Write assignments as an iCalendar feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				w, err := openOut(out)
				if err != nil {
					return err
				}
				n, err := ws.Engine.ExportICS(ctx, actor, w, artisanID)
				if err != nil {
					w.Close()
					return err
				}
				if err := w.Close(); err != nil {
					return err
				}
				if out != "-" {
					fmt.Fprintf(os.Stderr, "wrote %d events to %s\n", n, out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "assignments.ics", "output file, - for stdout")
	cmd.Flags().StringVar(&artisanID, "artisan", "", "only this artisan's assignments")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	cmd.AddCommand(auditTailCmd())
	return cmd
}

func auditTailCmd() *cobra.Command {
	var f repo.AuditFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				entries, err := ws.Engine.ListAudit(ctx, actor, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, table.Row{e.ID, e.TS, e.Username, e.Action, e.EntityKind, e.EntityID, e.Details})
				}
				return printJSONOrTable(entries, table.Row{"#", "Time", "User", "Action", "Kind", "Entity", "Details"}, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}
