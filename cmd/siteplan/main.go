package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"siteplan/internal/app"
	"siteplan/internal/domain"
)

const envFile = ".env"

var rootCmd = &cobra.Command{
	Use:   "siteplan",
	Short: "Construction site scheduling",
	Long: `siteplan books artisans onto construction projects and refuses any booking
that would put one artisan on two sites on the same day.

Concepts:
- Workspace: a directory holding siteplan.db and siteplan.yml.
- Artisan: a tradesperson with a skill and an availability (Full-time, Part-time, On-call).
- Project: a site with inclusive start and end dates and a status.
- Assignment: an artisan on a project for an inclusive date range at 1-12 hours a day.
  A new or edited assignment is rejected when it overlaps another one for the same artisan.
- Roles: Construction Manager (everything), Manager (scheduling and audit), Viewer (read only).
- Audit log: every accepted write, view with 'siteplan audit tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(filepath.Join(viper.GetString("workspace"), envFile))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SITEPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/siteplan.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "username performing the command")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(artisanCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(ganttCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(configCmd())
}

func workspaceOptions() app.Options {
	return app.Options{
		Dir:        viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
	}
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, workspaceOptions())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

// withActor opens the workspace and resolves --actor before running fn.
func withActor(ctx context.Context, fn func(context.Context, *app.Workspace, domain.User) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		actor, err := ws.Actor(ctx, viper.GetString("actor"))
		if err != nil {
			return err
		}
		return fn(ctx, ws, actor)
	})
}

// printJSONOrTable prints v as JSON with --json, otherwise as a table.
func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// changed returns &v when the flag was set, so updates only touch given fields.
func changed[T any](cmd *cobra.Command, flag string, v T) *T {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// loadEnvFile exports KEY=VALUE lines from path that are not already set in
// the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
	return scanner.Err()
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
