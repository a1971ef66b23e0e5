// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Health(t *testing.T) {
	c := NewChecker(time.Minute)
	c.Register("ok", func(ctx context.Context) error { return nil })

	status, checks := c.Health(context.Background())
	assert.Equal(t, StatusHealthy, status)
	require.Len(t, checks, 1)
	assert.Equal(t, "ok", checks[0].Name)

	c.Register("flaky", func(ctx context.Context) error { return errors.New("slow disk") })
	status, checks = c.Health(context.Background())
	assert.Equal(t, StatusDegraded, status)
	require.Len(t, checks, 2)
	assert.Equal(t, "flaky", checks[0].Name)
	assert.Equal(t, "slow disk", checks[0].Message)

	c.RegisterCritical("output", func(ctx context.Context) error { return errors.New("read-only") })
	status, _ = c.Health(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
}

func TestChecker_Cache(t *testing.T) {
	calls := 0
	c := NewChecker(time.Hour)
	c.Register("counted", func(ctx context.Context) error {
		calls++
		return nil
	})

	c.Health(context.Background())
	c.Health(context.Background())
	assert.Equal(t, 1, calls)
}

func TestHandlers(t *testing.T) {
	c := NewChecker(time.Minute)
	c.Register("degraded", func(ctx context.Context) error { return errors.New("x") })

	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    int
		status  string
	}{
		{name: "health", handler: c.HTTPHandler(), code: http.StatusOK, status: "degraded"},
		{name: "ready", handler: c.ReadinessHandler(), code: http.StatusServiceUnavailable, status: "degraded"},
		{name: "live", handler: LivenessHandler(), code: http.StatusOK, status: "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}
