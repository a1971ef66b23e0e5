// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package hmac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type format int

func (f format) String() string {
	return [...]string{"Native", "PDF"}[f]
}

func TestCanonicalize(t *testing.T) {
	ts := time.Date(2013, 4, 5, 6, 7, 8, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name   string
		params []any
		want   string
	}{
		{name: "empty", params: nil, want: ""},
		{name: "single string", params: []any{"a"}, want: "a"},
		{name: "string with newline", params: []any{"a\nb", "c"}, want: "a\nb\nc"},
		{name: "integers", params: []any{0, 42, int64(-7), uint32(9)}, want: "0\n42\n-7\n9"},
		{name: "bools", params: []any{true, false}, want: "True\nFalse"},
		{name: "time in utc", params: []any{ts}, want: "2013-04-05T05:07:08Z"},
		{name: "enum", params: []any{format(1)}, want: "PDF"},
		{name: "nil and unknown", params: []any{nil, 1.5, "x"}, want: "\n\nx"},
		{name: "empty strings", params: []any{"", ""}, want: "\n"},
		{name: "sorted map", params: []any{"p", map[string]string{"b": "2", "a": "1"}}, want: "p\na=1\nb=2"},
		{name: "map in the middle", params: []any{map[string]string{"k": "v"}, "z"}, want: "k=v\nz"},
		{name: "empty map", params: []any{"p", map[string]string{}, "z"}, want: "p\n\nz"},
		{name: "trailing empty map", params: []any{"p", map[string]string{}}, want: "p\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.params...))
		})
	}
}

func TestSign(t *testing.T) {
	ts := time.Date(2013, 4, 5, 5, 7, 8, 0, time.UTC)

	tests := []struct {
		name   string
		key    string
		params []any
		want   string
	}{
		{
			name:   "request parameters",
			key:    "key",
			params: []any{"pkg", "", false, "", format(0), map[string]string{"b": "2", "a": "1"}},
			want:   "0/NAOuZ8svYPU/WtL9Ff4cN0d+Q=",
		},
		{
			name:   "timestamped",
			key:    "12345",
			params: []any{ts, "subscriber", "helloworld", "template.docx", false, "ref", format(1)},
			want:   "z73pTTr7sJVl5wU9zaubZEL/3CU=",
		},
		{
			name: "empty",
			want: "+9sdGxiqbAgyS31ktx+3Y3BpDh0=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sign(tt.key, tt.params...))
		})
	}
}
