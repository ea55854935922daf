// Package main is the entrypoint for the practice XP backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/metal-master/backend/internal/auth"
	"github.com/metal-master/backend/internal/config"
	"github.com/metal-master/backend/internal/database"
	"github.com/metal-master/backend/internal/gamification"
	"github.com/metal-master/backend/internal/rules"
)

const defaultConfigPath = "config.toml"

var configPath string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "metal-master",
		Short:         "Practice XP and badge backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the TOML server config")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newEvaluateCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

// loadRuleset returns the ruleset at path, or the embedded default when
// path is empty.
func loadRuleset(path string) (*rules.Ruleset, error) {
	if path == "" {
		return rules.Default()
	}
	return rules.Load(path)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// An invalid ruleset stops startup before anything listens.
	rs, err := loadRuleset(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("load ruleset: %w", err)
	}
	log.Printf("[server] Loaded ruleset %s (%d lessons, %d badges)", rs.Version, len(rs.Lessons), len(rs.Badges))

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := []byte(cfg.Auth.JWTSecret)
	gamStore := gamification.NewStore(db)
	gamService := gamification.NewService(gamStore, gamification.NewEngine(rs))
	go gamService.StartWeeklyResetWorker(ctx)

	r := newRouter(auth.NewHandler(db, gamStore, rs, secret), gamification.NewHandler(gamService), secret)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] Server starting on :%s", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Println("[server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
