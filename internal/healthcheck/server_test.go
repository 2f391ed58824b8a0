// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestNewServerDefaults(t *testing.T) {
	assert.Equal(t, DefaultPort, NewServer(Config{}).port)
	assert.Equal(t, 9090, NewServer(Config{Port: 9090}).port)

	s := NewServer(Config{})
	assert.Equal(t, StatusStarting, s.GetStatus())
	assert.False(t, s.IsReady())
}

func TestProbeEndpoints(t *testing.T) {
	s := NewServer(Config{})
	h := s.Handler()

	tests := []struct {
		name            string
		status          Status
		ready           bool
		endpoint        string
		expectedStatus  int
		expectedHealthy bool
	}{
		{"healthz starting", StatusStarting, false, "/healthz", http.StatusServiceUnavailable, false},
		{"healthz healthy", StatusHealthy, true, "/healthz", http.StatusOK, true},
		{"healthz unhealthy", StatusUnhealthy, true, "/healthz", http.StatusServiceUnavailable, false},
		{"readyz not subscribed", StatusHealthy, false, "/readyz", http.StatusServiceUnavailable, false},
		{"readyz subscribed", StatusHealthy, true, "/readyz", http.StatusOK, true},
		{"readyz unhealthy", StatusUnhealthy, true, "/readyz", http.StatusServiceUnavailable, false},
		{"livez starting", StatusStarting, false, "/livez", http.StatusOK, true},
		{"livez unhealthy", StatusUnhealthy, false, "/livez", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetStatus(tt.status)
			s.SetReady(tt.ready)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.endpoint, nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedHealthy, response.Healthy)
		})
	}
}

func TestStatusz(t *testing.T) {
	s := NewServer(Config{Stats: func(st *PipelineStats) {
		st.InFlight = 3
		st.QuarantineBytes = 1024
		st.WatchFreeBytes = 1 << 30
	}})
	s.SetStatus(StatusHealthy)
	s.SetReady(true)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/statusz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got PipelineStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "healthy", got.Status)
	assert.True(t, got.Ready)
	assert.Equal(t, 3, got.InFlight)
	assert.Equal(t, int64(1024), got.QuarantineBytes)
	assert.Equal(t, uint64(1<<30), got.WatchFreeBytes)
	assert.NotEmpty(t, got.Uptime)
}

func TestStartStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewServer(Config{Port: port})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}

func TestStartReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	s := NewServer(Config{Port: ln.Addr().(*net.TCPAddr).Port})
	err = s.Start(t.Context())
	assert.Error(t, err)
}
