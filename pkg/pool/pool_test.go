// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"testing"
	"time"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/absmach/mpdemux/pkg/parser/multipart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidParser(t *testing.T) {
	_, err := New(Config{Parser: multipart.Config{BufferSize: -1}})
	assert.ErrorIs(t, err, mperrors.ErrInvalidInput)
}

func TestPool_Reuse(t *testing.T) {
	p, err := New(Config{Parser: multipart.Config{BufferSize: 64}})
	require.NoError(t, err)

	idle, active := p.Stats()
	assert.Equal(t, 1, idle)
	assert.Equal(t, 0, active)

	first, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, first.BufferSize())

	second, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, active = p.Stats()
	assert.Equal(t, 2, active)

	p.Put(first)
	got, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, got)

	p.Put(got)
	p.Put(second)
	idle, active = p.Stats()
	assert.Equal(t, 2, idle)
	assert.Equal(t, 0, active)
}

func TestPool_MaxIdle(t *testing.T) {
	p, err := New(Config{MaxIdle: 1})
	require.NoError(t, err)

	a, err := p.Get(context.Background())
	require.NoError(t, err)
	b, err := p.Get(context.Background())
	require.NoError(t, err)

	p.Put(a)
	p.Put(b)
	idle, _ := p.Stats()
	assert.Equal(t, 1, idle)
}

func TestPool_Exhausted(t *testing.T) {
	p, err := New(Config{MaxActive: 1})
	require.NoError(t, err)

	parser, err := p.Get(context.Background())
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)

	p.Put(parser)
	_, err = p.Get(context.Background())
	assert.NoError(t, err)
}

func TestPool_Wait(t *testing.T) {
	p, err := New(Config{MaxActive: 1, WaitTimeout: 5 * time.Second})
	require.NoError(t, err)

	parser, err := p.Get(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Put(parser)
	}()

	got, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, parser, got)
}

func TestPool_WaitTimeout(t *testing.T) {
	p, err := New(Config{MaxActive: 1, WaitTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPool_WaitCancelled(t *testing.T) {
	p, err := New(Config{MaxActive: 1, WaitTimeout: time.Minute})
	require.NoError(t, err)

	_, err = p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_Closed(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	parser, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Put(parser)
	idle, active := p.Stats()
	assert.Equal(t, 0, idle)
	assert.Equal(t, 0, active)
}
