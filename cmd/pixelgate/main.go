// Command pixelgate is the image-generation gateway CLI.
//
// Usage:
//
//	pixelgate generate --provider openai --prompt "a red fox"
//	pixelgate batch --file requests.json
//	pixelgate providers
//	pixelgate version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pixelgate/pixelgate/config"
	"github.com/pixelgate/pixelgate/gateway"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(os.Args[2:])
	case "batch":
		runBatch(os.Args[2:])
	case "providers":
		runProviders(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	provider := fs.String("provider", "", "Provider name")
	prompt := fs.String("prompt", "", "Generation prompt")
	size := fs.String("size", "", "Image size, e.g. 1024x1024")
	quality := fs.String("quality", "", "Image quality")
	style := fs.String("style", "", "Image style")
	seed := fs.Int64("seed", 0, "Generation seed")
	count := fs.Int("n", 1, "Number of images")
	fs.Parse(args)

	if *provider == "" || *prompt == "" {
		fmt.Fprintln(os.Stderr, "generate requires --provider and --prompt")
		os.Exit(1)
	}

	app := mustBootstrap(*configPath)
	defer app.shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := app.dispatcher.Generate(ctx, &gateway.GenerationRequest{
		Provider: *provider,
		Prompt:   *prompt,
		Size:     *size,
		Quality:  *quality,
		Style:    *style,
		Seed:     *seed,
		Count:    *count,
	})
	printResults([]*gateway.GenerationResult{result})
	if err != nil {
		os.Exit(1)
	}
}

func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "JSON file with an array of requests")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "batch requires --file")
		os.Exit(1)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read batch file: %v\n", err)
		os.Exit(1)
	}
	var requests []gateway.GenerationRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse batch file: %v\n", err)
		os.Exit(1)
	}

	app := mustBootstrap(*configPath)
	defer app.shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results := app.dispatcher.BatchGenerate(ctx, requests)
	printResults(results)
	for _, r := range results {
		if !r.Success {
			os.Exit(1)
		}
	}
}

func runProviders(args []string) {
	fs := flag.NewFlagSet("providers", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	app := mustBootstrap(*configPath)
	defer app.shutdown()

	for _, name := range app.dispatcher.ListProviders() {
		profile, err := app.dispatcher.GetProviderProfile(name)
		if err != nil {
			continue
		}
		fmt.Printf("%s\n", name)
		fmt.Printf("  endpoint:  %s\n", profile.Endpoint)
		fmt.Printf("  sizes:     %v\n", profile.SupportedSizes)
		fmt.Printf("  qualities: %v\n", profile.SupportedQualities)
		fmt.Printf("  styles:    %v\n", profile.SupportedStyles)
		fmt.Printf("  rate:      %d req/min\n", profile.RateLimit.RequestsPerMinute)
	}
}

func printResults(results []*gateway.GenerationResult) {
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode results: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func printVersion() {
	fmt.Printf("pixelgate %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`pixelgate - multi-provider image generation gateway

Usage:
  pixelgate <command> [options]

Commands:
  generate    Run a single generation request
  batch       Run a batch of requests from a JSON file
  providers   List configured providers and their capabilities
  version     Show version information
  help        Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Examples:
  pixelgate generate --provider openai --prompt "a red fox" --size 1024x1024
  pixelgate batch --file requests.json --config pixelgate.yaml
  pixelgate providers`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// metricsServer exposes the Prometheus registry when metrics are enabled.
func startMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", cfg.Addr))
	return srv
}
