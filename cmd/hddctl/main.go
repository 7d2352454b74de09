// Command hddctl runs the refresh engine once from the command line.
//
// Usage:
//
//	hddctl refresh [-baseline 2024-01-10/00z]
//	hddctl classify -indicator AO -- -2.5
//	hddctl validate
//
// Configuration is read from the environment exactly as the service reads it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/hdd-momentum-service/internal/app"
	"github.com/couchcryptid/hdd-momentum-service/internal/config"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: hddctl <refresh|classify|validate> [flags]")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	// Logs go to stderr so stdout stays machine-readable.
	level := slog.LevelWarn
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	switch args[0] {
	case "refresh":
		return runRefresh(ctx, cfg, args[1:], logger, stdout, stderr)
	case "classify":
		return runClassify(ctx, cfg, args[1:], logger, stdout, stderr)
	case "validate":
		return runValidate(ctx, cfg, logger, stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func runRefresh(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseline := fs.String("baseline", "", "pin the reference to an archived cycle, e.g. 2024-01-10/00z")
	publish := fs.Bool("publish", false, "publish the snapshot to Kafka when KAFKA_ENABLED is set")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var opts pipeline.RefreshOptions
	if *baseline != "" {
		key, err := domain.ParseKey(*baseline)
		if err != nil {
			fmt.Fprintf(stderr, "baseline: %v\n", err)
			return 2
		}
		opts.Baseline = &key
	}

	a, err := app.New(ctx, cfg, app.Options{Publish: *publish}, logger, observability.NewMetricsWith(prometheus.NewRegistry()))
	if err != nil {
		fmt.Fprintf(stderr, "build: %v\n", err)
		return 1
	}
	defer a.Close(logger)

	sess, err := a.Engine.Refresh(ctx, opts)
	if err != nil {
		fmt.Fprintf(stderr, "refresh: %v\n", err)
		if errors.Is(err, pipeline.ErrBaselineNotFound) {
			return 3
		}
		return 1
	}
	return writeJSON(stdout, stderr, sess)
}

func runClassify(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	indicator := fs.String("indicator", string(domain.IndicatorHDDDelta), "indicator whose threshold table applies")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: hddctl classify [-indicator NAME] VALUE")
		return 2
	}
	value, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil {
		fmt.Fprintf(stderr, "value: %v\n", err)
		return 2
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		fmt.Fprintf(stderr, "value: %q is not a finite number\n", fs.Arg(0))
		return 2
	}

	_, tables, err := config.LoadRegistry(ctx, cfg.RegistryPath, app.NewGeocoder(cfg, logger), logger)
	if err != nil {
		fmt.Fprintf(stderr, "registry: %v\n", err)
		return 1
	}
	classifier, err := domain.NewClassifier(tables)
	if err != nil {
		fmt.Fprintf(stderr, "threshold tables: %v\n", err)
		return 1
	}

	sentiment, err := classifier.Classify(value, domain.Indicator(*indicator))
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
	fmt.Fprintln(stdout, sentiment)
	return 0
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}
