package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/callspec/packages/core/config"
	"github.com/abdul-hamid-achik/callspec/packages/core/env"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/core/runner"
	"github.com/abdul-hamid-achik/callspec/packages/notify"
	"github.com/abdul-hamid-achik/callspec/packages/output"
	"github.com/abdul-hamid-achik/callspec/packages/report"
)

var runCmd = &cobra.Command{
	Use:   "run <plan>",
	Short: "Run a test plan",
	Long: `Run a JSON or YAML test plan. Requests are sent in id order within
each test case; callbacks are received on the listen address.

Examples:
  callspec run plan.json
  callspec run plan.yaml --inputs-file .env --counterpart dfsp1
  callspec run plan.json -o junit --output-file report.xml
  callspec run plan.json -o excel --output-file report.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

var (
	inputsFileFlag       string
	traceIDFlag          string
	counterpartFlag      string
	callbackEndpointFlag string
	listenFlag           string
	verboseFlag          bool
	noColorFlag          bool
	outputFlag           string
	outputFileFlag       string
	proxyFlag            string
	insecureFlag         bool
	hostingFlag          bool
	progressFlag         bool
)

func init() {
	runCmd.Flags().StringVar(&inputsFileFlag, "inputs-file", getEnvString("CALLSPEC_INPUTS_FILE", ""), "Path to .env file with extra input values (env: CALLSPEC_INPUTS_FILE)")
	runCmd.Flags().StringVar(&traceIDFlag, "trace-id", "", "Trace id of the run (default: a fresh custom trace id)")
	runCmd.Flags().StringVar(&counterpartFlag, "counterpart", getEnvString("CALLSPEC_COUNTERPART", ""), "Counterpart (DFSP) id the run is executed for (env: CALLSPEC_COUNTERPART)")
	runCmd.Flags().StringVar(&callbackEndpointFlag, "callback-endpoint", getEnvString("CALLSPEC_CALLBACK_ENDPOINT", ""), "Base URL of the system under test (env: CALLSPEC_CALLBACK_ENDPOINT)")
	runCmd.Flags().StringVar(&listenFlag, "listen", getEnvString("CALLSPEC_LISTEN", ""), "Callback receiver address, empty disables it (env: CALLSPEC_LISTEN)")
	runCmd.Flags().BoolVar(&hostingFlag, "hosting", getEnvBool("CALLSPEC_HOSTING", false), "Enable hosting mode (env: CALLSPEC_HOSTING)")

	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("CALLSPEC_VERBOSE", false), "Show every assertion (env: CALLSPEC_VERBOSE)")
	runCmd.Flags().BoolVar(&progressFlag, "progress", getEnvBool("CALLSPEC_PROGRESS", false), "Stream per-request progress to stderr (env: CALLSPEC_PROGRESS)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("CALLSPEC_NO_COLOR", false), "Disable colored output (env: CALLSPEC_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("CALLSPEC_OUTPUT", "console"), "Output format: console, json, junit, excel (env: CALLSPEC_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("CALLSPEC_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: CALLSPEC_OUTPUT_FILE)")

	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("CALLSPEC_PROXY", ""), "Proxy URL for HTTP requests (env: CALLSPEC_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("CALLSPEC_INSECURE", false), "Disable SSL certificate validation (env: CALLSPEC_INSECURE)")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatReport(rep *report.Report)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush() error
}

func runCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "config error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	p, err := loadPlan(args[0])
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		os.Exit(ExitParseError)
	}

	var outWriter io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" && !strings.EqualFold(outputFlag, "excel") {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return errors.Wrap(err, "cannot create output file")
		}
		defer f.Close()
		outWriter = f
	}
	formatter := newFormatter(outputFlag, outWriter, cfg)
	formatter.FormatHeader(version)

	var progress *progressStream
	var extra []notify.Notifier
	if progressFlag {
		progress = startProgress(cmd.ErrOrStderr())
		extra = append(extra, progress.channel)
	}

	svc, err := buildServices(cfg, logger, extra...)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			formatter.FormatError(errors.Wrap(err, "starting callback receiver"))
			os.Exit(ExitNetworkError)
		}
		receiver := svc.receiver(false)
		go func() {
			if err := receiver.Serve(ctx, ln); err != nil {
				logger.Error().Err(err).Msg("callback receiver stopped")
			}
		}()
	}

	traceID := traceIDFlag
	if traceID == "" {
		traceID = runner.NewTraceID()
	}

	rep, err := svc.engine.Run(ctx, p, traceID, counterpartFlag)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		formatter.FormatError(err)
		if flushable, ok := formatter.(Flushable); ok {
			_ = flushable.Flush()
		}
		if errors.Is(err, runner.ErrTerminated) || errors.Is(err, context.Canceled) {
			os.Exit(ExitTestFailure)
		}
		return err
	}

	formatter.FormatReport(rep)
	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(); err != nil {
			return errors.Wrap(err, "error writing output")
		}
	}

	if rep.Failed() {
		os.Exit(ExitTestFailure)
	}
	return nil
}

// loadRunConfig reads the config file and applies the flags that were set.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	override := &config.Config{
		CallbackEndpoint: callbackEndpointFlag,
		Proxy:            proxyFlag,
	}
	if insecureFlag {
		override.ValidateSSL = config.BoolPtr(false)
	}
	if hostingFlag {
		override.HostingEnabled = config.BoolPtr(true)
	}
	if verboseFlag {
		override.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		override.NoColor = config.BoolPtr(true)
	}

	cfg := fileConfig.Merge(override)
	// an explicit empty --listen disables the receiver
	if cmd.Flags().Changed("listen") || listenFlag != "" {
		cfg.ListenAddr = listenFlag
	}
	return cfg, nil
}

// loadPlan reads and checks a plan, folding in values from --inputs-file.
func loadPlan(path string) (*plan.TestPlan, error) {
	p, err := plan.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	if errs := p.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, errors.Errorf("invalid plan %s: %s", path, strings.Join(msgs, "; "))
	}

	if inputsFileFlag != "" {
		extra, err := env.LoadDotEnv(inputsFileFlag)
		if err != nil {
			return nil, errors.Wrapf(err, "loading inputs from %s", inputsFileFlag)
		}
		p.InputValues = env.MergeInputs(p.InputValues, extra)
	}
	return p, nil
}

func newFormatter(format string, w io.Writer, cfg *config.Config) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w))
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w))
	case "excel":
		path := outputFileFlag
		if path == "" {
			path = filepath.Join(cfg.OutputDir, "callspec-report.xlsx")
		}
		return output.NewExcelFormatter(path)
	default: // "console"
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
		)
	}
}
