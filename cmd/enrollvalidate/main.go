// Command enrollvalidate reconciles a batch of enrollment activity and
// census records against the state-change matrix in internal/reconcile,
// emitting synthetic events for every detected gap.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/enrollvalidate/internal/config"
	"github.com/malbeclabs/enrollvalidate/internal/driver"
	"github.com/malbeclabs/enrollvalidate/internal/ingest"
	"github.com/malbeclabs/enrollvalidate/internal/output"
	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "enrollvalidate",
	Short: "Reconcile course enrollment activity against periodic census dumps",
	Long: `enrollvalidate replays a course's enrollment activity stream and
periodic census dumps backward in time, synthesizing the missing
activation, deactivation, and mode-change events implied by gaps between
what the activity stream recorded and what later validation observed.`,
	RunE: runReconcile,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.ActivityPath, "activity", "", "path to the newline-delimited activity log (edx.course.enrollment.* stream)")
	flags.StringVar(&cfg.CensusRowsPath, "census-rows", "", "path to a \\x01-delimited census dump")
	flags.StringVar(&cfg.CensusMetaPath, "census-metadata", "", "path to the census dump's sibling .metadata JSON file")
	flags.StringVar(&cfg.OutputDir, "output-dir", "", "directory to write per-day gzipped output files into")

	flags.BoolVar(&cfg.EventOutput, "event-output", false, "emit full synthetic event records instead of flat TSV tuples")
	flags.BoolVar(&cfg.IncludeNonstateChanges, "include-nonstate-changes", false, "synthesize cancelling event pairs for ambiguous sentinel/validation cases")
	flags.BoolVar(&cfg.GenerateBefore, "generate-before", false, "permit synthesis of events timestamped before --lower-bound")
	flags.StringVar(&cfg.LowerBoundDateString, "lower-bound", "", "ISO date (YYYY-MM-DD): start of the processing interval")
	flags.StringVar(&cfg.EarliestTimestamp, "earliest-timestamp", "", "ISO-8601 timestamp: hard floor for any synthesized timestamp")

	flags.IntVar(&cfg.Workers, "workers", config.DefaultWorkers(), "number of keys to reconcile concurrently")

	flags.StringVar(&cfg.S3Bucket, "s3-bucket", "", "optional S3 bucket to upload finished daily output files to")
	flags.StringVar(&cfg.S3Region, "s3-region", "", "AWS region for --s3-bucket")
	flags.StringVar(&cfg.S3KeyPrefix, "s3-key-prefix", "", "optional key prefix for uploaded objects")
	flags.StringVar(&cfg.S3AccessKeyID, "s3-access-key-id", "", "optional static AWS access key ID (defaults to the SDK's credential chain)")
	flags.StringVar(&cfg.S3SecretAccessKey, "s3-secret-access-key", "", "optional static AWS secret access key")

	flags.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg.EnvOverrides()

	log := newLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := cfg.ReconcileOptions()
	if err != nil {
		return err
	}

	events := make(map[ingest.Key][]reconcile.EnrollmentEvent)
	collect := func(k ingest.Key, e reconcile.EnrollmentEvent) {
		events[k] = append(events[k], e)
	}

	if cfg.ActivityPath != "" {
		f, err := os.Open(cfg.ActivityPath)
		if err != nil {
			return fmt.Errorf("open activity log: %w", err)
		}
		ingest.ScanActivity(f, log, collect)
		f.Close()
	}

	if cfg.CensusRowsPath != "" {
		rows, err := os.Open(cfg.CensusRowsPath)
		if err != nil {
			return fmt.Errorf("open census rows: %w", err)
		}
		meta, err := os.Open(cfg.CensusMetaPath)
		if err != nil {
			rows.Close()
			return fmt.Errorf("open census metadata: %w", err)
		}
		ingest.ScanCensus(rows, meta, log, collect)
		rows.Close()
		meta.Close()
	}

	log.Info("loaded enrollment events", "keys", len(events))

	driverCfg := driver.Config{
		Options: opts,
		Workers: cfg.Workers,
		Log:     log,
		Emitter: func(courseID string, userID int64) reconcile.Emitter {
			if cfg.EventOutput {
				return reconcile.EventEmitter{CourseID: courseID, UserID: userID}
			}
			return reconcile.TupleEmitter{CourseID: courseID, UserID: userID}
		},
	}

	gaps := driver.Run(driverCfg, events)
	log.Info("reconciliation complete", "gaps", len(gaps))

	bucket := output.NewBucket()
	bucket.AddAll(gaps)

	ctx := context.Background()
	uploader, err := output.NewS3Uploader(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3KeyPrefix,
		output.S3Credentials{AccessKeyID: cfg.S3AccessKeyID, SecretAccessKey: cfg.S3SecretAccessKey}, log)
	if err != nil {
		return fmt.Errorf("configure s3 uploader: %w", err)
	}

	for _, datestamp := range bucket.Datestamps() {
		path, err := output.WriteDay(bucket, cfg.OutputDir, datestamp, cfg.EventOutput)
		if err != nil {
			return fmt.Errorf("write output for %s: %w", datestamp, err)
		}
		log.Info("wrote daily output", "datestamp", datestamp, "path", path)
	}

	if err := uploader.UploadDay(ctx, cfg.OutputDir); err != nil {
		return fmt.Errorf("upload output to s3: %w", err)
	}

	return nil
}
