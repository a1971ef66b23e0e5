// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// assemble sends a request to the document service and stores the result.
// Multipart results are split into one file per document under --out.
//
// Credentials and service settings come from MPDEMUX_CLOUD_* environment
// variables, optionally loaded from a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/mpdemux"
	"github.com/absmach/mpdemux/pkg/breaker"
	"github.com/absmach/mpdemux/pkg/cloud"
	"github.com/absmach/mpdemux/pkg/ratelimit"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const envPrefix = "MPDEMUX_CLOUD_"

type options struct {
	request    string
	packageID  string
	pkg        string
	template   string
	answers    string
	format     string
	billingRef string
	settings   map[string]string
	out        string
	verbose    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env file is optional
	_ = godotenv.Load()

	cfg, err := mpdemux.NewCloudConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	var opts options
	flagSet := pflag.NewFlagSet("assemble", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.request, "request", "r", "assemble", "request: assemble, interview or componentinfo")
	flagSet.StringVar(&opts.packageID, "package-id", "", "template package ID")
	flagSet.StringVarP(&opts.pkg, "package", "p", "", "package file uploaded when the service does not have it")
	flagSet.StringVarP(&opts.template, "template", "t", "", "template name within the package")
	flagSet.StringVarP(&opts.answers, "answers", "a", "", "answer file")
	flagSet.StringVarP(&opts.format, "format", "f", "", "output or interview format")
	flagSet.StringVar(&opts.billingRef, "billing-ref", "", "billing reference")
	flagSet.StringToStringVar(&opts.settings, "setting", nil, "extra setting as key=value, repeatable")
	flagSet.StringVarP(&opts.out, "out", "o", "", "output file, or directory for multipart results")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.packageID == "" {
		return errors.New("--package-id is required")
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	req, err := newRequest(opts)
	if err != nil {
		return err
	}

	client, err := cloud.New(cloud.Config{
		SubscriberID: cfg.SubscriberID,
		SigningKey:   cfg.SigningKey,
		Address:      cfg.Address,
		Scheme:       cfg.Scheme,
		Proxy:        cfg.Proxy,
		Timeout:      cfg.Timeout,
		BufferSize:   cfg.BufferSize,
		Breaker: breaker.New(breaker.Config{
			MaxFailures:  cfg.BreakerMaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout,
		}),
		Limiter: ratelimit.NewTokenBucket(cfg.RateCapacity, cfg.RateRefill),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.out == "" {
		body, err := client.Send(ctx, req)
		if err != nil {
			return err
		}
		fmt.Print(body)
		return nil
	}

	status, err := client.SendTo(ctx, req, opts.out)
	if err != nil {
		return err
	}
	logger.Info("result stored", slog.Int("status", status), slog.String("path", opts.out))
	return nil
}

func newRequest(opts options) (cloud.Request, error) {
	pkg := cloud.Package{ID: opts.packageID}
	if opts.pkg != "" {
		pkg.Source = cloud.FileSource(opts.pkg)
	}

	answers := ""
	if opts.answers != "" {
		data, err := os.ReadFile(opts.answers)
		if err != nil {
			return nil, fmt.Errorf("failed to read answers: %w", err)
		}
		answers = string(data)
	}

	switch opts.request {
	case "assemble":
		var format cloud.OutputFormat
		if opts.format != "" {
			f, err := cloud.ParseOutputFormat(opts.format)
			if err != nil {
				return nil, err
			}
			format = f
		}
		return &cloud.AssembleDocument{
			Package:    pkg,
			Template:   opts.template,
			BillingRef: opts.billingRef,
			Answers:    answers,
			Format:     format,
			Settings:   opts.settings,
		}, nil
	case "interview":
		var format cloud.InterviewFormat
		if opts.format != "" {
			f, err := cloud.ParseInterviewFormat(opts.format)
			if err != nil {
				return nil, err
			}
			format = f
		}
		return &cloud.GetInterview{
			Package:    pkg,
			Template:   opts.template,
			BillingRef: opts.billingRef,
			Answers:    answers,
			Format:     format,
			Settings:   opts.settings,
		}, nil
	case "componentinfo":
		return &cloud.GetComponentInfo{
			Package:        pkg,
			Template:       opts.template,
			BillingRef:     opts.billingRef,
			IncludeDialogs: true,
		}, nil
	default:
		return nil, fmt.Errorf("unknown request %q", opts.request)
	}
}
