package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/integrity"
	"github.com/yeremiapane/pos-integrity/router"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pos-integrity",
		Short:         "POS data-integrity service",
		Long:          "Reconciles the POS store and manages merged-bill table groups.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newReconcileCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the reconciliation monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
}

func serve(a *app) error {
	if err := database.Migrate(a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if a.cfg.App.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if a.cfg.Reconcile.MonitorEnabled {
		monitor := services.NewReconciliationMonitor(a.reconciliation, a.cfg.Reconcile.Interval)
		monitor.Start()
		defer monitor.Stop()
	}

	r := router.SetupRouter(router.Deps{
		DB:             a.db,
		Pos:            a.pos,
		Groups:         a.groups,
		Reconciliation: a.reconciliation,
		Hub:            a.hub,
		Gatherer:       a.registry,
		HTTP:           a.cfg.HTTP,
		Reconcile:      a.cfg.Reconcile,
		Production:     a.cfg.App.Env == "production",
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.Infof("Listening on port %s", a.cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	utils.InfoLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return nil
		},
	}
}

func newReconcileCommand() *cobra.Command {
	var check string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the integrity checks once and print the report",
		Example: `  pos-integrity reconcile
  pos-integrity reconcile --check totals`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx := cmd.Context()
			run := func() (*integrity.Report, error) {
				if check == "" {
					return a.reconciliation.RunAll(ctx, services.TriggerCLI)
				}
				return a.reconciliation.RunCheck(ctx, services.TriggerCLI, check)
			}
			report, err := run()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&check, "check", "", "run only this check")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		userID   uint
		tenantID uint
		role     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}

			token, err := utils.GenerateToken(userID, tenantID, role, cfg.JWT.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	cmd.Flags().UintVar(&tenantID, "tenant", 0, "tenant id, 0 for an unscoped token")
	cmd.Flags().StringVar(&role, "role", "staff", "role (staff|admin)")
	return cmd
}
