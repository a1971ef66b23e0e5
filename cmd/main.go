// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// mpdemux splits a MIME multipart stream read from a file or stdin into its
// parts. Parts that name a file are written to --out; without --out every
// part is only logged.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/mpdemux"
	"github.com/absmach/mpdemux/examples/simple"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/parser/multipart"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "MPDEMUX_"

type options struct {
	boundary       string
	contentType    string
	input          string
	out            string
	bufferSize     int
	maxHeaderBytes int
	perSession     bool
	logLevel       string
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

	cfg, err := mpdemux.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	var opts options
	flagSet := pflag.NewFlagSet("mpdemux", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.boundary, "boundary", "b", "", "multipart boundary token")
	flagSet.StringVarP(&opts.contentType, "content-type", "t", "", "Content-Type header to take the boundary from")
	flagSet.StringVarP(&opts.input, "input", "i", "-", "multipart stream to read, - for stdin")
	flagSet.StringVarP(&opts.out, "out", "o", "", "directory for parts that name a file (default: log parts only)")
	flagSet.IntVar(&opts.bufferSize, "buffer-size", cfg.BufferSize, "read window size in bytes")
	flagSet.IntVar(&opts.maxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "maximum size of one part's headers")
	flagSet.BoolVar(&opts.perSession, "per-session", false, "write parts into a per-run subdirectory of --out")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level(opts.logLevel)}))

	boundary := opts.boundary
	if boundary == "" {
		if opts.contentType == "" {
			return errors.New("either --boundary or --content-type is required")
		}
		if boundary, err = multipart.Boundary(opts.contentType); err != nil {
			return err
		}
	}

	src, closeSrc, err := open(opts.input)
	if err != nil {
		return err
	}
	defer closeSrc()

	var h handler.Handler = simple.New(logger)
	if opts.out != "" {
		dir := handler.NewDir(opts.out)
		dir.PerSession = opts.perSession
		h = dir
	}

	p, err := multipart.New(multipart.Config{
		BufferSize:     opts.bufferSize,
		MaxHeaderBytes: opts.maxHeaderBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	hctx := &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: opts.input,
		Boundary:   boundary,
	}
	g.Go(func() error {
		defer cancel()
		if err := p.Parse(ctx, src, h, hctx); err != nil {
			return err
		}
		logger.Info("stream demultiplexed",
			slog.String("session", hctx.SessionID),
			slog.Int("parts", hctx.Part+1))
		return nil
	})
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	return g.Wait()
}

func open(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func level(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
