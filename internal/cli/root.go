package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/acumba/internal/control"
	"github.com/vietddude/acumba/internal/core/config"
	"github.com/vietddude/acumba/internal/resilience"
)

const defaultConfigPath = "config.yaml"

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "acumba",
	Short: "Resilient Acumbamail client",
	Long: `acumba talks to the Acumbamail email marketing API through input validation,
exponential backoff retries and a circuit breaker, and runs bulk jobs, campaign
analytics and automated workflows on top of it.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if hint := diagnosisHint(err); hint != "" {
			_, _ = fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

// diagnosisHint tells the operator what to do about a failed command.
func diagnosisHint(err error) string {
	switch resilience.Diagnose(err) {
	case resilience.InvalidInput:
		return "hint: the request was rejected as invalid, fix the input before retrying"
	case resilience.TemporarilyUnavailable:
		return "hint: the service is throttling or failing, try again later"
	case resilience.PersistentlyFailing:
		return "hint: the circuit breaker is open, wait for the cool-down before retrying"
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, "config file")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads the config file. A missing default config file falls
// back to defaults and the environment.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if cfgPath == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default logger for cfg.
func setupLogging(cfg *config.AppConfig) {
	slogLevel, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		slogLevel = slog.LevelInfo
	}
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// newApp loads the config, sets up logging and builds the application.
func newApp(ctx context.Context) (*control.App, *config.AppConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		stylelog.InitDefault()
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)

	app, err := control.NewApp(ctx, cfg, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return app, cfg, nil
}

// withApp runs fn against a freshly built app and closes it afterwards.
func withApp(fn func(ctx context.Context, app *control.App) error) error {
	ctx := context.Background()
	app, _, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()
	return fn(ctx, app)
}
