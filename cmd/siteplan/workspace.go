package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"siteplan/internal/app"
	"siteplan/internal/domain"
	"siteplan/internal/engine/auth"
	"siteplan/internal/obs"
	"siteplan/internal/server"
)

func passwordValue(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv("SITEPLAN_PASSWORD"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("--password or SITEPLAN_PASSWORD is required")
}

func initCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a workspace and its first Construction Manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordValue(password)
			if err != nil {
				return err
			}
			ws, u, err := app.Init(cmd.Context(), workspaceOptions(), username, pw)
			if err != nil {
				return err
			}
			defer ws.Close()
			if err := setEnvValue(filepath.Join(ws.Dir, envFile), "SITEPLAN_ACTOR", u.Username); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(u)
			}
			fmt.Printf("Initialized workspace %s; acting as %s (%s)\n", ws.Dir, u.Username, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Construction Manager username")
	cmd.Flags().StringVar(&password, "password", "", "password (or SITEPLAN_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo users and artisans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				res, err := app.Seed(ctx, ws.Engine, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Seeded %d users and %d artisans (%d already present)\n", len(res.Users), len(res.Artisans), res.Skipped)
				return nil
			})
		},
	}
	return cmd
}

func loginCmd() *cobra.Command {
	var password string
	var printToken bool
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Verify credentials and act as this user in the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordValue(password)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				u, err := ws.Engine.Authenticate(ctx, args[0], pw)
				if err != nil {
					return err
				}
				if err := setEnvValue(filepath.Join(ws.Dir, envFile), "SITEPLAN_ACTOR", u.Username); err != nil {
					return err
				}
				if printToken {
					secret := os.Getenv("SITEPLAN_JWT_SECRET")
					if secret == "" {
						return fmt.Errorf("SITEPLAN_JWT_SECRET is required to issue a token")
					}
					token, exp, err := auth.Tokens{Secret: []byte(secret), TTL: ws.Config.Session.TTL}.Issue(u)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(map[string]any{"token": token, "expires_at": exp, "user": u})
					}
					fmt.Println(token)
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Logged in as %s (%s); set SITEPLAN_ACTOR in %s\n", u.Username, u.Role, filepath.Join(ws.Dir, envFile))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (or SITEPLAN_PASSWORD)")
	cmd.Flags().BoolVar(&printToken, "token", false, "print an API bearer token")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, environment string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				secret := os.Getenv("SITEPLAN_JWT_SECRET")
				if secret == "" {
					return fmt.Errorf("SITEPLAN_JWT_SECRET is required for bearer auth")
				}
				if !cmd.Flags().Changed("addr") {
					addr = ws.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") {
					basePath = ws.Config.Server.BasePath
				}
				if !isLoopback(addr) {
					ws.Logger.Warn("API listening on a non-loopback address", zap.String("addr", addr))
				}

				shutdownTracing, err := obs.InitTracing(ctx, ws.Logger, "siteplan", environment)
				if err != nil {
					return fmt.Errorf("init tracing: %w", err)
				}
				defer shutdownTracing(context.Background())

				handler, err := server.New(server.Config{
					Engine:   ws.Engine,
					BasePath: basePath,
					Logger:   ws.Logger,
					Auth: server.AuthConfig{
						Tokens: auth.Tokens{Secret: []byte(secret), TTL: ws.Config.Session.TTL},
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				ws.Logger.Info("serving siteplan API",
					zap.String("url", "http://"+addr+basePath),
					zap.String("openapi", basePath+"/openapi.json"),
					zap.String("metrics", "/metrics"),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().StringVar(&environment, "environment", "local", "deployment environment reported in traces")
	return cmd
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	cmd.AddCommand(userAddCmd())
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userRoleCmd())
	cmd.AddCommand(userPasswordCmd())
	cmd.AddCommand(userDeleteCmd())
	return cmd
}

func userRows(users ...domain.User) []table.Row {
	rows := make([]table.Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, table.Row{u.ID, u.Username, u.Role, u.CreatedAt})
	}
	return rows
}

var userHeader = table.Row{"ID", "Username", "Role", "Created"}

func userAddCmd() *cobra.Command {
	var password, role string
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordValue(password)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				u, err := ws.Engine.CreateUser(ctx, actor, args[0], pw, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(u, userHeader, userRows(u))
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (or SITEPLAN_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", "Viewer", "Construction Manager, Manager or Viewer")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				users, err := ws.Engine.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(users, userHeader, userRows(users...))
			})
		},
	}
}

func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <username> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				target, err := ws.Engine.Actor(ctx, args[0])
				if err != nil {
					return err
				}
				u, err := ws.Engine.SetUserRole(ctx, actor, target.ID, args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(u, userHeader, userRows(u))
			})
		},
	}
}

func userPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "password <username>",
		Short: "Set a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordValue(password)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				target, err := ws.Engine.Actor(ctx, args[0])
				if err != nil {
					return err
				}
				return ws.Engine.ChangePassword(ctx, actor, target.ID, pw)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (or SITEPLAN_PASSWORD)")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, ws *app.Workspace, actor domain.User) error {
				target, err := ws.Engine.Actor(ctx, args[0])
				if err != nil {
					return err
				}
				return ws.Engine.DeleteUser(ctx, actor, target.ID)
			})
		},
	}
}
