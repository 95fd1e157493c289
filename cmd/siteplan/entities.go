package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"siteplan/internal/app"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
)

func teamCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "team", Short: "Manage teams"}
	cmd.AddCommand(teamAddCmd())
	cmd.AddCommand(teamListCmd())
	cmd.AddCommand(teamUpdateCmd())
	cmd.AddCommand(teamDeleteCmd())
	return cmd
}

var teamHeader = table.Row{"ID", "Name", "Manager", "Description"}

func teamRows(teams ...domain.Team) []table.Row {
	rows := make([]table.Row, 0, len(teams))
	for _, t := range teams {
		rows = append(rows, table.Row{t.ID, t.Name, deref(t.ManagerID), t.Description})
	}
	return rows
}

func teamAddCmd() *cobra.Command {
	var in engine.TeamInput
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				t, err := ws.Engine.CreateTeam(ctx, actor, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(t, teamHeader, teamRows(t))
			})
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.ManagerID, "manager-id", "", "managing user id")
	return cmd
}

func teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				teams, err := ws.Engine.ListTeams(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(teams, teamHeader, teamRows(teams...))
			})
		},
	}
}

func teamUpdateCmd() *cobra.Command {
	var name, description, managerID string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := engine.TeamUpdate{
				ID:          args[0],
				Name:        changed(cmd, "name", name),
				Description: changed(cmd, "description", description),
				ManagerID:   changed(cmd, "manager-id", managerID),
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				t, err := ws.Engine.UpdateTeam(ctx, actor, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(t, teamHeader, teamRows(t))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&managerID, "manager-id", "", "managing user id (empty clears)")
	return cmd
}

func teamDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a team; its artisans become unassigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				return ws.Engine.DeleteTeam(ctx, actor, args[0])
			})
		},
	}
}

func artisanCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "artisan", Short: "Manage artisans"}
	cmd.AddCommand(artisanAddCmd())
	cmd.AddCommand(artisanListCmd())
	cmd.AddCommand(artisanShowCmd())
	cmd.AddCommand(artisanUpdateCmd())
	cmd.AddCommand(artisanDeleteCmd())
	return cmd
}

var artisanHeader = table.Row{"ID", "Name", "Skill", "Availability", "Team", "Rate"}

func artisanRows(artisans ...domain.Artisan) []table.Row {
	rows := make([]table.Row, 0, len(artisans))
	for _, a := range artisans {
		rows = append(rows, table.Row{a.ID, a.Name, a.Skill, a.Availability, deref(a.TeamID), fmt.Sprintf("%.2f", a.HourlyRate)})
	}
	return rows
}

func artisanAddCmd() *cobra.Command {
	var in engine.ArtisanInput
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an artisan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				a, err := ws.Engine.CreateArtisan(ctx, actor, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(a, artisanHeader, artisanRows(a))
			})
		},
	}
	cmd.Flags().StringVar(&in.Skill, "skill", "", "trade, e.g. Carpenter")
	cmd.Flags().StringVar(&in.Availability, "availability", "Full-time", "Full-time, Part-time or On-call")
	cmd.Flags().StringVar(&in.TeamID, "team-id", "", "team id")
	cmd.Flags().Float64Var(&in.HourlyRate, "rate", 0, "hourly rate")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone")
	return cmd
}

func artisanListCmd() *cobra.Command {
	var q engine.ArtisanQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artisans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				artisans, err := ws.Engine.ListArtisans(ctx, actor, q)
				if err != nil {
					return err
				}
				return printJSONOrTable(artisans, artisanHeader, artisanRows(artisans...))
			})
		},
	}
	cmd.Flags().StringVar(&q.TeamID, "team-id", "", "team filter")
	cmd.Flags().StringVar(&q.Skill, "skill", "", "skill filter")
	cmd.Flags().StringVar(&q.Availability, "availability", "", "availability filter")
	return cmd
}

func artisanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an artisan and their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				a, err := ws.Engine.GetArtisan(ctx, actor, args[0])
				if err != nil {
					return err
				}
				assignments, err := ws.Engine.ListAssignments(ctx, actor, engine.AssignmentQuery{ArtisanID: a.ID})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"artisan": a, "assignments": assignments})
				}
				if err := printJSONOrTable(a, artisanHeader, artisanRows(a)); err != nil {
					return err
				}
				return printJSONOrTable(assignments, assignmentHeader, assignmentRows(assignments...))
			})
		},
	}
}

func artisanUpdateCmd() *cobra.Command {
	var name, teamID, skill, availability, email, phone string
	var rate float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an artisan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := engine.ArtisanUpdate{
				ID:           args[0],
				Name:         changed(cmd, "name", name),
				TeamID:       changed(cmd, "team-id", teamID),
				Skill:        changed(cmd, "skill", skill),
				Availability: changed(cmd, "availability", availability),
				HourlyRate:   changed(cmd, "rate", rate),
				Email:        changed(cmd, "email", email),
				Phone:        changed(cmd, "phone", phone),
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				a, err := ws.Engine.UpdateArtisan(ctx, actor, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(a, artisanHeader, artisanRows(a))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&teamID, "team-id", "", "team id (empty removes from team)")
	cmd.Flags().StringVar(&skill, "skill", "", "trade")
	cmd.Flags().StringVar(&availability, "availability", "", "Full-time, Part-time or On-call")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	return cmd
}

func artisanDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an artisan and their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				return ws.Engine.DeleteArtisan(ctx, actor, args[0])
			})
		},
	}
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}
	cmd.AddCommand(projectAddCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectUpdateCmd())
	cmd.AddCommand(projectDeleteCmd())
	cmd.AddCommand(projectStaffCmd())
	return cmd
}

var projectHeader = table.Row{"ID", "Name", "Job", "Start", "End", "Status", "Budget"}

func projectRows(projects ...domain.Project) []table.Row {
	rows := make([]table.Row, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, table.Row{p.ID, p.Name, p.JobNumber, p.StartDate, p.EndDate, p.Status, fmt.Sprintf("%.2f", p.Budget)})
	}
	return rows
}

func projectFlags(cmd *cobra.Command, in *engine.ProjectInput) {
	cmd.Flags().StringVar(&in.JobNumber, "job", "", "job number")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&in.EndDate, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&in.Status, "status", "Active", "Active, Pending, Completed or Cancelled")
	cmd.Flags().Float64Var(&in.Budget, "budget", 0, "budget")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func projectAddCmd() *cobra.Command {
	var in engine.ProjectInput
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				p, err := ws.Engine.CreateProject(ctx, actor, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p, projectHeader, projectRows(p))
			})
		},
	}
	projectFlags(cmd, &in)
	return cmd
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				projects, err := ws.Engine.ListProjects(ctx, actor, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(projects, projectHeader, projectRows(projects...))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project and its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				p, err := ws.Engine.GetProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				assignments, err := ws.Engine.ListAssignments(ctx, actor, engine.AssignmentQuery{ProjectID: p.ID})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "assignments": assignments})
				}
				if err := printJSONOrTable(p, projectHeader, projectRows(p)); err != nil {
					return err
				}
				return printJSONOrTable(assignments, assignmentHeader, assignmentRows(assignments...))
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, job, description, start, end, status string
	var budget float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := engine.ProjectUpdate{
				ID:          args[0],
				Name:        changed(cmd, "name", name),
				JobNumber:   changed(cmd, "job", job),
				Description: changed(cmd, "description", description),
				StartDate:   changed(cmd, "start", start),
				EndDate:     changed(cmd, "end", end),
				Status:      changed(cmd, "status", status),
				Budget:      changed(cmd, "budget", budget),
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				p, err := ws.Engine.UpdateProject(ctx, actor, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(p, projectHeader, projectRows(p))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&job, "job", "", "job number")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&status, "status", "", "Active, Pending, Completed or Cancelled")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				return ws.Engine.DeleteProject(ctx, actor, args[0])
			})
		},
	}
}

func projectStaffCmd() *cobra.Command {
	var in engine.StaffInput
	cmd := &cobra.Command{
		Use:   "staff <name>",
		Short: "Create a project and book artisans for its whole duration",
		Long: `Creates the project and one assignment per --artisan over the project's dates
in a single transaction. If any artisan is already booked, nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Project.Name = args[0]
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				res, err := ws.Engine.StaffProject(ctx, actor, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if err := printJSONOrTable(res.Project, projectHeader, projectRows(res.Project)); err != nil {
					return err
				}
				if res.Team != nil {
					fmt.Printf("Team %s (%s) created\n", res.Team.Name, res.Team.ID)
				}
				return printJSONOrTable(res.Assignments, assignmentHeader, assignmentRows(res.Assignments...))
			})
		},
	}
	projectFlags(cmd, &in.Project)
	cmd.Flags().StringSliceVar(&in.ArtisanIDs, "artisan", nil, "artisan id (repeatable)")
	cmd.Flags().Float64Var(&in.HoursPerDay, "hours", 8, "hours per day")
	cmd.Flags().StringVar(&in.TeamName, "team", "", "create a team with these artisans")
	_ = cmd.MarkFlagRequired("artisan")
	return cmd
}
