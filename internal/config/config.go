// Package config resolves the enrollvalidate CLI's run configuration from
// flags and environment variables, the way
// controlplane/internet-latency-collector/cmd/collector/main.go declares
// package-level flag variables bound to a cobra command, with a Validate
// method analogous to controlplane/s3-uploader/internal/config.Config.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
)

// Config is the resolved, validated configuration for one enrollvalidate
// run. Every field corresponds to a CLI flag. The S3 bucket, region and
// static key fields can also come from an ENROLLVALIDATE_* environment
// variable (see EnvOverrides), which only fills a field the flags left
// empty; no other field reads the environment.
type Config struct {
	ActivityPath   string
	CensusRowsPath string
	CensusMetaPath string
	OutputDir      string

	EventOutput            bool
	IncludeNonstateChanges bool
	GenerateBefore         bool
	LowerBoundDateString   string
	EarliestTimestamp      string

	Workers int

	S3Bucket          string
	S3Region          string
	S3KeyPrefix       string
	S3AccessKeyID     string
	S3SecretAccessKey string

	LogLevel string
}

// DefaultWorkers is runtime.NumCPU(): the driver's concurrency defaults to
// one worker per core unless Config.Workers overrides it.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// EnvOverrides applies environment-variable overrides to fields left at
// their zero value by flag parsing, following the ENROLLVALIDATE_* naming
// convention the way controlplane/s3-uploader/internal/config.Load applies
// its S3_UPLOADER_* variables.
func (c *Config) EnvOverrides() {
	if v := os.Getenv("ENROLLVALIDATE_S3_BUCKET"); v != "" && c.S3Bucket == "" {
		c.S3Bucket = v
	}
	if v := os.Getenv("ENROLLVALIDATE_S3_REGION"); v != "" && c.S3Region == "" {
		c.S3Region = v
	}
	if v := os.Getenv("ENROLLVALIDATE_S3_ACCESS_KEY_ID"); v != "" && c.S3AccessKeyID == "" {
		c.S3AccessKeyID = v
	}
	if v := os.Getenv("ENROLLVALIDATE_S3_SECRET_ACCESS_KEY"); v != "" && c.S3SecretAccessKey == "" {
		c.S3SecretAccessKey = v
	}
}

// Validate checks required fields and parses the date/timestamp-shaped
// flags, returning an error describing the first problem found.
func (c *Config) Validate() error {
	if c.ActivityPath == "" && c.CensusRowsPath == "" {
		return fmt.Errorf("at least one of --activity or --census-rows must be set")
	}
	if c.CensusRowsPath != "" && c.CensusMetaPath == "" {
		return fmt.Errorf("--census-metadata is required when --census-rows is set")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}
	if c.LowerBoundDateString == "" {
		return fmt.Errorf("--lower-bound is required")
	}
	if _, err := time.Parse("2006-01-02", c.LowerBoundDateString); err != nil {
		return fmt.Errorf("--lower-bound must be an ISO date (YYYY-MM-DD): %w", err)
	}
	if c.EarliestTimestamp != "" {
		if _, err := reconcile.ParseTimestamp(c.EarliestTimestamp); err != nil {
			return fmt.Errorf("--earliest-timestamp: %w", err)
		}
	}
	if c.Workers <= 0 {
		return fmt.Errorf("--workers must be positive")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("--s3-region is required when --s3-bucket is set")
	}
	return nil
}

// ReconcileOptions builds the reconcile.Options this config describes.
// Validate must have already succeeded.
func (c *Config) ReconcileOptions() (reconcile.Options, error) {
	lowerBound, err := time.ParseInLocation("2006-01-02", c.LowerBoundDateString, time.UTC)
	if err != nil {
		return reconcile.Options{}, fmt.Errorf("parse lower bound: %w", err)
	}

	opts := reconcile.Options{
		EventOutput:            c.EventOutput,
		IncludeNonstateChanges: c.IncludeNonstateChanges,
		GenerateBefore:         c.GenerateBefore,
		LowerBound:             lowerBound,
	}

	if c.EarliestTimestamp != "" {
		ts, err := reconcile.ParseTimestamp(c.EarliestTimestamp)
		if err != nil {
			return reconcile.Options{}, fmt.Errorf("parse earliest timestamp: %w", err)
		}
		opts.EarliestTimestamp = &ts
	}

	return opts, nil
}
