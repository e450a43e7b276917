package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/callspec/packages/core/config"
	"github.com/abdul-hamid-achik/callspec/packages/notify"
)

var (
	serveListenFlag      string
	serveHostingFlag     bool
	serveDefinitionsFlag string
	serveReportsDBFlag   string
	serveRetentionFlag   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the callback receiver and control API",
	Long: `Start a long-running server that receives callbacks and accepts
test plans over HTTP.

  POST   /api/outbound/template/{traceID}?dfspId=<id>   start a run
  DELETE /api/outbound/template/{traceID}               terminate a run
  GET    /api/outbound/status/{traceID}                 run state

Any other path is treated as a callback.

Examples:
  callspec serve
  callspec serve --listen :5050 --hosting --reports-db sqlite://reports.db`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenFlag, "listen", getEnvString("CALLSPEC_LISTEN", ""), "Listen address (env: CALLSPEC_LISTEN)")
	serveCmd.Flags().BoolVar(&serveHostingFlag, "hosting", getEnvBool("CALLSPEC_HOSTING", false), "Enable hosting mode (env: CALLSPEC_HOSTING)")
	serveCmd.Flags().StringVar(&serveDefinitionsFlag, "definitions", getEnvString("CALLSPEC_DEFINITIONS", ""), "API definitions index file (env: CALLSPEC_DEFINITIONS)")
	serveCmd.Flags().StringVar(&serveReportsDBFlag, "reports-db", getEnvString("CALLSPEC_REPORTS_DB", ""), "Reports database, e.g. sqlite://reports.db (env: CALLSPEC_REPORTS_DB)")
	serveCmd.Flags().IntVar(&serveRetentionFlag, "status-retention", getEnvInt("CALLSPEC_STATUS_RETENTION", 60), "Minutes to keep the status of finished runs (env: CALLSPEC_STATUS_RETENTION)")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return err
	}
	override := &config.Config{
		ListenAddr:      serveListenFlag,
		DefinitionsPath: serveDefinitionsFlag,
		ReportsDB:       serveReportsDBFlag,
	}
	if serveHostingFlag {
		override.HostingEnabled = config.BoolPtr(true)
	}
	cfg := fileConfig.Merge(override)

	svc, err := buildServices(cfg, logger, notify.NewLogNotifier(logger))
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if svc.definitions != nil {
		go func() {
			if err := svc.definitions.Watch(ctx); err != nil {
				logger.Warn().Err(err).Msg("API definitions will not be reloaded")
			}
		}()
	}
	go forgetFinishedRuns(ctx, svc, time.Duration(serveRetentionFlag)*time.Minute)

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Bool("hosting", cfg.GetHostingEnabled()).
		Msg("callspec server starting")
	return svc.receiver(true).ListenAndServe(ctx)
}

// forgetFinishedRuns drops old run statuses until ctx is done.
func forgetFinishedRuns(ctx context.Context, svc *services, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.engine.Registry().Forget(retention); n > 0 {
				svc.logger.Debug().Int("runs", n).Msg("forgot finished runs")
			}
		}
	}
}
