// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.NoError(t, New("demux", "body", 0, "", nil))

	err := New("demux", "body", 2, "s1", ErrPatternNotFound)
	assert.EqualError(t, err, "demux body [s1] part 2: pattern not found")
	assert.ErrorIs(t, err, ErrPatternNotFound)

	var de *DemuxError
	if assert.True(t, errors.As(err, &de)) {
		assert.Equal(t, "body", de.State)
		assert.Equal(t, 2, de.Part)
	}

	err = New("demux", "preamble", 0, "", ErrEndOfStream)
	assert.EqualError(t, err, "demux preamble part 0: unexpected end of stream")
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
	err := Wrap(io.ErrUnexpectedEOF, "read part")
	assert.EqualError(t, err, "read part: unexpected EOF")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSink(t *testing.T) {
	assert.NoError(t, Sink(nil))

	err := Sink(io.ErrClosedPipe)
	assert.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	// Already classified errors are not wrapped twice.
	assert.Equal(t, err, Sink(err))
}
