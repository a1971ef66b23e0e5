// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundary(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
		err         error
	}{
		{name: "quoted", contentType: `multipart/mixed; boundary="BOUNDARY1"`, want: "BOUNDARY1"},
		{name: "unquoted", contentType: "multipart/form-data; boundary=abc123", want: "abc123"},
		{name: "upper case type", contentType: "Multipart/Related; boundary=x", want: "x"},
		{name: "not multipart", contentType: "application/json", err: ErrNotMultipart},
		{name: "unparsable", contentType: "", err: ErrNotMultipart},
		{name: "no boundary", contentType: "multipart/mixed", err: ErrMissingBoundary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Boundary(tt.contentType)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsMultipart(t *testing.T) {
	assert.True(t, IsMultipart("multipart/mixed; boundary=b"))
	assert.True(t, IsMultipart("multipart/form-data"))
	assert.False(t, IsMultipart("text/plain"))
	assert.False(t, IsMultipart("not a media type;;"))
}
