// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pool provides a bounded pool of multipart parsers.
//
// Every parser owns a fixed read window, so MaxActive parsers of BufferSize
// bytes cap the memory spent on demultiplexing no matter how many requests
// arrive at once.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/mpdemux/pkg/parser/multipart"
)

var (
	// ErrPoolClosed is returned when the pool is closed.
	ErrPoolClosed = errors.New("parser pool is closed")
	// ErrPoolExhausted is returned when no parser is available.
	ErrPoolExhausted = errors.New("parser pool exhausted")
)

// Config holds parser pool configuration.
type Config struct {
	// MaxIdle is the maximum number of idle parsers kept for reuse.
	MaxIdle int
	// MaxActive is the maximum number of parsers in use.
	// If 0, there is no limit.
	MaxActive int
	// WaitTimeout is the maximum time to wait for a parser when the pool is
	// exhausted. If 0, Get fails immediately.
	WaitTimeout time.Duration
	// Parser configures every parser the pool creates.
	Parser multipart.Config
}

// Pool hands out multipart parsers.
type Pool struct {
	mu       sync.Mutex
	idle     []*multipart.Parser
	active   int
	config   Config
	closed   bool
	waitChan chan struct{}
}

// New creates a new parser pool. The parser configuration is validated by
// creating the first idle parser.
func New(cfg Config) (*Pool, error) {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 10
	}

	first, err := multipart.New(cfg.Parser)
	if err != nil {
		return nil, err
	}

	return &Pool{
		idle:     []*multipart.Parser{first},
		config:   cfg,
		waitChan: make(chan struct{}, 1),
	}, nil
}

// Get retrieves an idle parser or creates a new one. When MaxActive parsers
// are in use it waits up to WaitTimeout for one to be returned.
func (p *Pool) Get(ctx context.Context) (*multipart.Parser, error) {
	var timer *time.Timer
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if p.config.MaxActive <= 0 || p.active < p.config.MaxActive {
			p.active++
			var parser *multipart.Parser
			if n := len(p.idle); n > 0 {
				parser = p.idle[n-1]
				p.idle = p.idle[:n-1]
			}
			p.mu.Unlock()

			if parser != nil {
				return parser, nil
			}
			parser, err := multipart.New(p.config.Parser)
			if err != nil {
				p.release()
				return nil, fmt.Errorf("failed to create parser: %w", err)
			}
			return parser, nil
		}
		p.mu.Unlock()

		if p.config.WaitTimeout <= 0 {
			return nil, ErrPoolExhausted
		}
		if timer == nil {
			timer = time.NewTimer(p.config.WaitTimeout)
			defer timer.Stop()
		}

		select {
		case <-p.waitChan:
		case <-timer.C:
			return nil, ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a parser obtained from Get.
func (p *Pool) Put(parser *multipart.Parser) {
	p.mu.Lock()
	if !p.closed && len(p.idle) < p.config.MaxIdle {
		p.idle = append(p.idle, parser)
	}
	p.mu.Unlock()

	p.release()
}

func (p *Pool) release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()

	// Notify waiting goroutines
	select {
	case p.waitChan <- struct{}{}:
	default:
	}
}

// Close closes the pool and drops idle parsers. Parsers in use may still be
// returned with Put.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.idle = nil
	return nil
}

// Stats returns pool statistics.
func (p *Pool) Stats() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.active
}
