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

	"openlms/internal/config"
	"openlms/internal/db"
	"openlms/internal/domain"
	"openlms/internal/events"
	"openlms/internal/migrate"
	"openlms/internal/query"
	"openlms/internal/repo"
	"openlms/internal/schema"
	"openlms/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lms",
	Short: "openlms CLI",
	Long: `openlms serves a hierarchical learning-content catalog over HTTP:
courses contain sections, sections contain lessons, memberships and access
plans sell access, and enrollments record who can take what. The workspace
is a .openlms directory holding the SQLite database.`,
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
	viper.SetEnvPrefix("OPENLMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(courseCmd())
	rootCmd.AddCommand(studentCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath, cfgFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			var cfg *config.Config
			var err error
			if cfgFile != "" {
				cfg, err = config.FromFile(cfgFile)
			} else {
				cfg, err = config.Load(workspace)
			}
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			secret := os.Getenv("OPENLMS_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("OPENLMS_JWT_SECRET is required for bearer auth")
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			registry, err := schema.DefaultRegistry()
			if err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			handler, err := server.New(server.Config{
				Repo:     r,
				Registry: registry,
				Events:   &events.Writer{DB: conn},
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
				Limits: query.Limits{
					PerPage:    cfg.Pagination.PerPage,
					MaxPerPage: cfg.Pagination.MaxPerPage,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving openlms API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
	return cmd
}

func courseCmd() *cobra.Command {
	course := &cobra.Command{Use: "course", Short: "Browse catalog courses"}
	course.AddCommand(courseListCmd())
	return course
}

func courseListCmd() *cobra.Command {
	var status string
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filters := map[string]string{}
				if status != "" {
					filters["status"] = status
				}
				d, aerr := query.Translate(schema.Course(), query.Params{Page: page, PerPage: perPage, Filters: filters}, query.Limits{})
				if aerr != nil {
					return aerr
				}
				items, total, err := r.ListResources(ctx, "course", d)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Updated"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Title, c.Status, c.UpdatedAt})
				}
				tw.Render()
				fmt.Printf("%d total\n", total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&page, "page", 1, "page")
	cmd.Flags().IntVar(&perPage, "per-page", 20, "page size")
	return cmd
}

func studentCmd() *cobra.Command {
	student := &cobra.Command{Use: "student", Short: "Manage students"}
	student.AddCommand(studentListCmd())
	student.AddCommand(studentCreateCmd())
	return student
}

func studentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List students",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStudents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Created"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Email, s.Name, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func studentCreateCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create student",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.InsertStudent(ctx, domain.Student{Email: email, Name: name})
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "student email")
	cmd.Flags().StringVar(&name, "name", "", "student name")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var subject, name string
	var perms []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key (the raw key is printed once and never stored)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw, key, err := newAPIKey(ctx, r, subject, name, perms)
				if err != nil {
					return err
				}
				fmt.Printf("API key %s created for %s\n", key.ID, key.Subject)
				fmt.Printf("key: %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "capability to grant (repeatable), e.g. course.create or *")
	return cmd
}

func newAPIKey(ctx context.Context, r repo.Repo, subject, name string, perms []string) (string, domain.APIKey, error) {
	raw := server.NewRawAPIKey()
	key := domain.APIKey{
		ID:          uuid.New().String(),
		Subject:     subject,
		Name:        name,
		KeyHash:     repo.HashAPIKey(raw),
		Permissions: perms,
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

func apikeyListCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, subject)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Subject", "Name", "Permissions", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Subject, k.Name, strings.Join(k.Permissions, ","), k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke API key",
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
	log := &cobra.Command{Use: "log", Short: "Activity log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Latest activity entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, e := range items {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += "/" + e.EntityID
					}
					tw.AppendRow(table.Row{e.TS, e.Type, entity, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo catalog content for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return seed(ctx, r)
			})
		},
	}
	return cmd
}

func seed(ctx context.Context, r repo.Repo) error {
	course, err := r.InsertResource(ctx, domain.Resource{
		Type:   "course",
		Title:  "Getting Started with openlms",
		Status: "publish",
	})
	if err != nil {
		return err
	}
	if err := r.ReplaceMeta(ctx, course.ID, map[string]any{"price": 0.0, "catalog_visibility": "catalog_search"}); err != nil {
		return err
	}
	section, err := r.InsertResource(ctx, domain.Resource{
		Type:     "section",
		Title:    "Introduction",
		Status:   "publish",
		ParentID: &course.ID,
	})
	if err != nil {
		return err
	}
	lesson, err := r.InsertResource(ctx, domain.Resource{
		Type:     "lesson",
		Title:    "Welcome",
		Content:  "Welcome to the course.",
		Status:   "publish",
		ParentID: &section.ID,
	})
	if err != nil {
		return err
	}
	if err := r.ReplaceMeta(ctx, lesson.ID, map[string]any{"course_id": course.ID}); err != nil {
		return err
	}
	student, err := r.InsertStudent(ctx, domain.Student{Email: "demo@example.com", Name: "Demo Student"})
	if err != nil {
		return err
	}
	if _, err := r.AppendEnrollmentEvent(ctx, student.ID, course.ID, domain.EnrollmentStatusKey, domain.EnrollmentEnrolled); err != nil {
		return err
	}
	if _, err := r.AppendEnrollmentEvent(ctx, student.ID, course.ID, domain.EnrollmentTriggerKey, "seed"); err != nil {
		return err
	}
	fmt.Printf("seeded course %d, section %d, lesson %d, student %d\n", course.ID, section.ID, lesson.ID, student.ID)
	return nil
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
