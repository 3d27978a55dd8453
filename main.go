package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/sammcj/docflow/internal/adapters"
	"github.com/sammcj/docflow/internal/batch"
	"github.com/sammcj/docflow/internal/config"
	"github.com/sammcj/docflow/internal/discovery"
	"github.com/sammcj/docflow/internal/docproc"
	"github.com/sammcj/docflow/internal/output"
	"github.com/sammcj/docflow/internal/report"
	"github.com/sammcj/docflow/internal/watch"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the
// appropriate logrus level. Defaults to InfoLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func main() {
	// A local .env is a convenience for development; absence is not an error
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:    "docflow",
		Usage:   "Batch document processing: structure extraction and OCR with per-file failure isolation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a YAML configuration file"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Input directory to scan"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory for artifacts"},
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Value: true, Usage: "Recurse into subdirectories"},
			&cli.StringFlag{Name: "mode", Usage: "Processing mode: combined, structure-only, ocr-only"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: json, csv, text"},
			&cli.StringFlag{Name: "task", Usage: "OCR task type: reading, detection, localized_reading, conditional_detection"},
			&cli.StringFlag{Name: "ocr-format", Usage: "OCR output format: TEXT, TEXT2D, LINES, WORDS, PARAGRAPHS, LATEX, BOX"},
			&cli.BoolFlag{Name: "no-structure", Usage: "Skip document structure extraction"},
			&cli.BoolFlag{Name: "no-tables", Usage: "Skip table extraction"},
			&cli.IntFlag{Name: "max-tokens", Usage: "Maximum tokens generated per OCR call"},
			&cli.StringFlag{Name: "engine", Usage: "OCR engine: gutenocr, tesseract"},
			&cli.StringSliceFlag{Name: "lang", Usage: "Recognition language (repeatable)"},
			&cli.IntFlag{Name: "concurrency", Aliases: []string{"c"}, Usage: "Number of files processed at once"},
			&cli.BoolFlag{Name: "individual", Usage: "Also write one artifact per input file"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep running and reprocess on input changes"},
		},
		Action: func(cCtx *cli.Context) error {
			cfg, err := loadConfig(cCtx)
			if err != nil {
				return err
			}
			return run(cCtx.Context, cfg, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "capabilities",
				Usage: "Probe the configured collaborators and report availability",
				Action: func(cCtx *cli.Context) error {
					cfg, err := loadConfig(cCtx)
					if err != nil {
						return err
					}
					return capabilities(cfg, logger)
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.WithError(err).Error("docflow failed")
		os.Exit(1)
	}
}

// loadConfig layers CLI flags over file, environment and defaults
func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String("config"))
	if err != nil {
		return nil, err
	}

	if cCtx.IsSet("input") {
		cfg.InputDir = cCtx.String("input")
	}
	if cCtx.IsSet("output") {
		cfg.OutputDir = cCtx.String("output")
	}
	if cCtx.IsSet("recursive") {
		cfg.Recursive = cCtx.Bool("recursive")
	}
	if cCtx.IsSet("mode") {
		cfg.Mode = docproc.Mode(cCtx.String("mode"))
	}
	if cCtx.IsSet("format") {
		cfg.OutputFormat = output.Format(strings.ToLower(cCtx.String("format")))
	}
	if cCtx.IsSet("task") {
		cfg.TaskType = docproc.TaskType(cCtx.String("task"))
	}
	if cCtx.IsSet("ocr-format") {
		cfg.OCRFormat = docproc.OCRFormat(strings.ToUpper(cCtx.String("ocr-format")))
	}
	if cCtx.Bool("no-structure") {
		cfg.ExtractStructure = false
	}
	if cCtx.Bool("no-tables") {
		cfg.ExtractTables = false
	}
	if cCtx.IsSet("max-tokens") {
		cfg.MaxTokens = cCtx.Int("max-tokens")
	}
	if cCtx.IsSet("engine") {
		cfg.Engine = strings.ToLower(cCtx.String("engine"))
	}
	if cCtx.IsSet("lang") {
		cfg.Languages = cCtx.StringSlice("lang")
	}
	if cCtx.IsSet("concurrency") {
		cfg.Concurrency = cCtx.Int("concurrency")
	}
	if cCtx.Bool("individual") {
		cfg.Individual = true
	}
	if cCtx.Bool("watch") {
		cfg.Watch = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run executes one batch, or keeps watching the input root when watch mode
// is on. Collaborators are constructed once and reused across watch runs.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	scanner, err := discovery.NewScanner(cfg.InputDir, cfg.Recursive, logger)
	if err != nil {
		return err
	}

	// Discovery failures surface before any collaborator is constructed, so
	// an empty input directory never pays the model start-up cost.
	files, err := scanner.Discover()
	if err != nil && !(cfg.Watch && errors.Is(err, discovery.ErrNoInput)) {
		return err
	}

	structure, ocr := buildAdapters(cfg, logger)
	runner := batch.New(structure, ocr, logger, batch.Options{
		Concurrency: cfg.Concurrency,
		RateLimit:   rateLimiter(cfg),
		Progress:    progressPrinter(),
	})
	writer, err := output.NewWriter(cfg.OutputDir, logger)
	if err != nil {
		return err
	}

	runOnce := func(ctx context.Context, files []docproc.InputFile) error {
		records, runErr := runner.Run(ctx, files, cfg.Request())
		if len(records) > 0 {
			// Cancelled batches still report over the completed prefix
			if err := persist(records, cfg, writer); err != nil {
				return err
			}
		}
		return runErr
	}

	if !cfg.Watch {
		return runOnce(ctx, files)
	}

	// Watch mode processes the existing files first, then follows changes
	if len(files) > 0 {
		if err := runOnce(ctx, files); err != nil {
			return err
		}
	}

	watcher := watch.New(scanner.Root(), cfg.Recursive, 0, logger)
	return watcher.Run(ctx, func(ctx context.Context) {
		files, err := scanner.Discover()
		if err != nil {
			logger.WithError(err).Warn("Discovery failed, skipping run")
			return
		}
		if err := runOnce(ctx, files); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Batch run failed")
		}
	})
}

// persist writes the combined artifact, optional per-file artifacts, and the
// summary report, all sharing one batch timestamp.
func persist(records []docproc.MergedRecord, cfg *config.Config, writer *output.Writer) error {
	ts := time.Now()

	combinedPath, err := writer.WriteCombined(records, cfg.OutputFormat, ts)
	if err != nil {
		return err
	}
	if cfg.Individual {
		format := cfg.OutputFormat
		if format == output.FormatCSV {
			format = output.FormatJSON
		}
		if _, err := writer.WriteIndividual(records, format, ts); err != nil {
			return err
		}
	}

	stats := report.Summarize(records)
	rep := report.Build(records, stats)
	summaryPath, err := writer.WriteSummary(rep, ts)
	if err != nil {
		return err
	}

	printOutcome(stats, combinedPath, summaryPath)
	return nil
}

func buildAdapters(cfg *config.Config, logger *logrus.Logger) (structure, ocr adapters.Adapter) {
	req := cfg.Request()
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	if req.WantsStructure() {
		structure = adapters.NewDocling(cfg.PythonPath, cfg.DoclingScript, timeout, logger)
	}
	if req.WantsOCR() {
		if cfg.Engine == config.EngineTesseract {
			ocr = adapters.NewTesseract(logger)
		} else {
			ocr = adapters.NewGutenOCR(cfg.PythonPath, cfg.GutenOCRScript, cfg.Model, timeout, logger)
		}
	}
	return structure, ocr
}

func rateLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
}

func progressPrinter() batch.ProgressFunc {
	cyan := color.New(color.FgCyan)
	return func(index, total int, path string) {
		_, _ = cyan.Fprintf(os.Stderr, "[%d/%d] %s\n", index+1, total, filepath.Base(path))
	}
}

func printOutcome(stats report.BatchStatistics, combinedPath, summaryPath string) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Println()
	_, _ = green.Printf("Processed %d files: %d succeeded", stats.TotalFiles, stats.Succeeded)
	if stats.Partial > 0 {
		_, _ = yellow.Printf(", %d partial", stats.Partial)
	}
	if stats.Failed > 0 {
		_, _ = red.Printf(", %d failed", stats.Failed)
	}
	fmt.Printf(" (%.1f%% success)\n", stats.SuccessRate*100)
	fmt.Printf("Results: %s\n", combinedPath)
	fmt.Printf("Summary: %s\n", summaryPath)
}

// capabilities probes each configured collaborator and prints its status
func capabilities(cfg *config.Config, logger *logrus.Logger) error {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	probes := []adapters.Adapter{
		adapters.NewDocling(cfg.PythonPath, cfg.DoclingScript, timeout, logger),
		adapters.NewGutenOCR(cfg.PythonPath, cfg.GutenOCRScript, cfg.Model, timeout, logger),
		adapters.NewTesseract(logger),
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Printf("Python interpreter: %s\n", orNone(cfg.PythonPath))
	for _, probe := range probes {
		status := red.Sprint("unavailable")
		if probe.Available() {
			status = green.Sprint("available")
		}
		fmt.Printf("%-10s (%s): %s\n", probe.Name(), probe.Stage(), status)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(not found)"
	}
	return s
}
