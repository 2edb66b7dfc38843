// Command gpm-apd builds daily precipitation series for a set of stations
// from the NASA GPM IMERG half-hourly archive.
//
// Usage:
//
//	gpm-apd jane.doe@example.org 2020-01-01 2020-01-31 ./stations.csv [-d] [--stream]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/archive"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/gdal"
	httpadapter "github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/kafka"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/config"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/pipeline"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/series"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/source"
)

var validate = validator.New()

// args are the positional arguments of the root command.
type args struct {
	Email    string `validate:"required,email"`
	IniDate  string `validate:"required"`
	EndDate  string `validate:"required"`
	Stations string `validate:"required"`
}

type flags struct {
	keep   bool
	stream bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "gpm-apd email ini_date end_date filepath_csv",
		Short: "Create daily precipitation from NASA/GPM (" + domain.DefaultHost + ")",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, pos []string) error {
			a := args{Email: pos[0], IniDate: pos[1], EndDate: pos[2], Stations: pos[3]}
			if err := checkArgs(a); err != nil {
				return err
			}
			return run(cmd.Context(), a, f)
		},
		SilenceUsage: true,
	}
	cmd.Flags().BoolVarP(&f.keep, "download-keep", "d", false, "Keep downloads")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Open images remotely instead of downloading them")
	return cmd
}

func checkArgs(a args) error {
	err := validate.Struct(a)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	if fe.Field() == "Email" {
		return fmt.Errorf("'%s' is not a valid email", a.Email)
	}
	return fmt.Errorf("%s is required", fe.Field())
}

func run(parent context.Context, a args, f flags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.stream {
		cfg.Mode = source.ModeStream
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat).With("run_id", runID)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener := gdal.NewOpener(cfg.FetchTimeout)
	src, err := source.New(cfg.Mode, source.Options{
		Archive:       cfg.Archive,
		Email:         a.Email,
		CacheDir:      filepath.Dir(a.Stations),
		KeepDownloads: f.keep,
		Timeout:       cfg.FetchTimeout,
	}, archive.NewMux(cfg.FetchTimeout), opener, logger, metrics)
	if err != nil {
		return err
	}

	plan, err := pipeline.Preflight(ctx, a.IniDate, a.EndDate, a.Stations, src)
	if err != nil {
		var pe *pipeline.PreconditionError
		if errors.As(err, &pe) {
			fmt.Fprintln(os.Stdout, pe.Message)
			return nil
		}
		return err
	}

	var sinks []series.RowSink
	if cfg.KafkaEnabled() {
		kw := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, runID, logger, metrics)
		defer func() {
			if err := kw.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, kw)
		logger.Info("publishing rows to kafka", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	w, err := series.Create(plan.OutputPath, plan.ErrorPath, logger, sinks...)
	if err != nil {
		return err
	}

	agg := pipeline.NewAggregator(src, opener, plan.Stations, cfg.SampleWorkers, logger, metrics)
	p := pipeline.New(agg, w, len(plan.Stations), os.Stdout, clockwork.NewRealClock(), logger, metrics)

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, p, prometheus.DefaultGatherer, logger)
		if _, err := srv.Start(); err != nil {
			logger.Error("metrics server not started", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("metrics server shutdown error", "error", err)
				}
			}()
		}
	}

	logger.Info("run starting",
		"mode", cfg.Mode, "ini", a.IniDate, "end", a.EndDate,
		"stations", len(plan.Stations), "workers", cfg.SampleWorkers)

	_, err = p.Run(ctx, plan.Ini, plan.End)
	return err
}
