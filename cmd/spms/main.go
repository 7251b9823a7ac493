package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"spms/internal/app"
	"spms/internal/db"
	"spms/internal/engine"
	"spms/internal/migrate"
	"spms/internal/notify"
	"spms/internal/repo"
	"spms/internal/server"
)

var (
	logger     = zap.NewNop()
	mailLogger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "spms",
	Short: "SPMS document approval CLI",
	Long: `SPMS routes project documents through a three stage review.
- Stages: a document is reviewed by the project lead, then the business area lead, then the directorate.
- Actions: approve moves a document forward, recall and send_back move it back, reopen withdraws a project closure.
- Notifications: every transition emails the next reviewer; a missing recipient blocks the transition.
- Workspace: a directory holding the SQLite database; system config is stored in the database.
- Event log: every change is recorded, view with 'spms log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		// Values already in the environment win over .env.
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		app, mail, err := newLoggers(viper.GetBool("verbose"))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger, mailLogger = app, mail
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
		_ = mailLogger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

// newLoggers builds the application logger, quiet unless verbose, and the logger
// the log email sender writes to, which always shows sends.
func newLoggers(verbose bool) (*zap.Logger, *zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	app, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	mailCfg := zap.NewProductionConfig()
	mailCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	mail, err := mailCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return app, mail.Named("mail"), nil
}

func initConfig() {
	viper.SetEnvPrefix("SPMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides SPMS_DEFAULT_PROJECT)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "project", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(areaCmd())
	rootCmd.AddCommand(directorateCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg := e.CurrentConfig(ctx)
				if relayURL := viper.GetString("email-relay-url"); relayURL != "" {
					e.Sender = notify.RelaySender{
						URL:    relayURL,
						Secret: viper.GetString("email-relay-secret"),
						From:   cfg.Notifications.From,
						Logger: logger,
					}
				} else {
					e.Sender = notify.LogSender{Logger: mailLogger}
				}
				authCfg := server.AuthConfig{
					JWTSecret:             viper.GetString("jwt-secret"),
					AllowLegacyUserHeader: viper.GetBool("allow-user-header"),
					Logger:                logger,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("SPMS_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				dispatcher := server.NewWebhookDispatcher(e, cfg.Webhooks, logger)

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					fmt.Printf("Serving SPMS API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					return dispatcher.Run(gctx)
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (SPMS_JWT_SECRET)")
	cmd.Flags().Bool("allow-user-header", false, "trust X-User-Id without credentials (local use only)")
	cmd.Flags().String("email-relay-url", "", "HTTP email relay endpoint (SPMS_EMAIL_RELAY_URL)")
	cmd.Flags().String("email-relay-secret", "", "shared secret sent to the relay")
	for _, name := range []string{"jwt-secret", "allow-user-header", "email-relay-url", "email-relay-secret"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

// --- helpers ---

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
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Sender = notify.LogSender{Logger: mailLogger}
	return fn(ctx, e)
}

func actorID() (string, error) {
	id := strings.TrimSpace(viper.GetString("actor-id"))
	if id == "" {
		return "", fmt.Errorf("actor not specified; use --actor-id or set SPMS_ACTOR_ID")
	}
	return id, nil
}

func projectID(ctx context.Context, e engine.Engine) (string, error) {
	override := strings.TrimSpace(viper.GetString("project"))
	if override == "" {
		override = strings.TrimSpace(viper.GetString("default-project"))
	}
	return app.ResolveProject(ctx, override, e.Repo)
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

// printRows renders a table, or items as JSON with --json.
func printRows(items any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	for _, r := range rows {
		tw.AppendRow(r)
	}
	tw.Render()
	return nil
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
	return os.WriteFile(path, []byte(content), 0o644)
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
