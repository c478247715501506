package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/supervisor"
)

type runFlags struct {
	dataSet     int
	mode        string
	output      string
	cookies     string
	concurrent  int
	retries     int
	start       uint64
	end         uint64
	baseURL     string
	fileURLBase string
	prefix      string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover and download every document in a collection",
		Long: `Starts a discovery-and-download pipeline for one collection, tracking
per-document progress in the local database so an interrupted run
resumes exactly where it left off. SIGINT/SIGTERM trigger a graceful
drain: in-flight transfers are allowed to finish or abort cleanly
before the process exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunCommand(cmd, flags)
		},
	}

	cmd.Flags().IntVar(&flags.dataSet, "data-set", 0, "registered collection ID (see config datasets)")
	cmd.Flags().StringVar(&flags.mode, "mode", "hybrid", "discovery mode: scraper, brute, or hybrid")
	cmd.Flags().StringVar(&flags.output, "output", "", "output directory (overrides collection default)")
	cmd.Flags().StringVar(&flags.cookies, "cookies", "", "Netscape-format cookie file")
	cmd.Flags().IntVar(&flags.concurrent, "concurrent", 0, "max concurrent downloads (0 keeps the config default)")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "max retry attempts (0 keeps the config default)")
	cmd.Flags().Uint64Var(&flags.start, "start", 0, "first document ID for brute-force enumeration")
	cmd.Flags().Uint64Var(&flags.end, "end", 0, "last document ID for brute-force enumeration")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "collection index base URL (manual, unregistered collections)")
	cmd.Flags().StringVar(&flags.fileURLBase, "file-url-base", "", "document download base URL (manual, unregistered collections)")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "document filename prefix (manual, unregistered collections)")

	return cmd
}

func parseMode(raw string) (supervisor.Mode, error) {
	mode := supervisor.Mode(raw)
	switch mode {
	case supervisor.ModeScraper, supervisor.ModeBrute, supervisor.ModeHybrid:
		return mode, nil
	default:
		return "", fmt.Errorf("--mode must be one of scraper, brute, hybrid, got %q", raw)
	}
}

func runRunCommand(cmd *cobra.Command, flags runFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	mode, err := parseMode(flags.mode)
	if err != nil {
		return err
	}

	cc, err := resolveCollectionConfig(a, flags)
	if err != nil {
		return err
	}

	if flags.cookies != "" {
		if err := a.Jar.LoadNetscapeFileInto(flags.cookies); err != nil {
			return fmt.Errorf("loading cookie file: %w", err)
		}
	}

	if flags.retries > 0 {
		a.Config.Scheduler.MaxRetryAttempts = flags.retries
	}
	sup, err := a.NewSupervisor(cc, mode)
	if err != nil {
		return fmt.Errorf("building supervisor: %w", err)
	}
	if flags.concurrent > 0 {
		sup.SetMaxConcurrentDownloads(flags.concurrent)
	}

	srv := a.NewServer(sup)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.Logger.Info("status server started", zap.Int("port", a.Config.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("status server error", zap.Error(err))
		}
	}()

	if err := sup.Start(ctx, cc, mode); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}

	go func() {
		<-ctx.Done()
		a.Logger.Info("shutdown signal received, draining")
		sup.Stop()
	}()

	runErr := sup.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("status server shutdown error", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}
