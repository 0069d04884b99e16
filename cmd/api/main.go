package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fkhayef/bankroll/internal/config"
	"github.com/fkhayef/bankroll/pkg/logger"
	"github.com/fkhayef/bankroll/pkg/middleware"
)

var rootCmd = &cobra.Command{
	Use:          "bankroll",
	Short:        "Bankroll group membership API",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue invitations once and exit",
	RunE:  runSweep,
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign a bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var (
	migrateOnStart bool
	tokenTTL       time.Duration
)

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply the schema before serving")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel, cfg.LogProduction)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if migrateOnStart {
		if err := st.migrate(ctx); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, log, st)
	if err != nil {
		return err
	}

	a.sweeper.Start()
	defer a.sweeper.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	// Let background notifications drain before the stores close
	a.dispatcher.Wait()
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	st, err := openStores(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info("schema up to date", zap.String("store", cfg.StoreDriver))
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	st, err := openStores(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := newApp(cmd.Context(), cfg, log, st)
	if err != nil {
		return err
	}
	n, err := a.resolver.SweepExpired(cmd.Context())
	if err != nil {
		return err
	}
	a.dispatcher.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "expired %d invitations\n", n)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	cfg := config.Load()
	token, err := middleware.NewAuthenticator(cfg.JWTSecret).IssueToken(userID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
