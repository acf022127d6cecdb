package monitor

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return n
}

func TestProbeClassifiesResponses(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedPort := serverPort(t, closed)
	closed.Close()

	p := NewProber(time.Second, nil).WithServices([]Service{
		{Name: "Prometheus", Port: serverPort(t, up)},
		{Name: "Grafana", Port: serverPort(t, broken)},
		{Name: "Node Exporter", Port: closedPort},
	})

	results := p.Probe(context.Background(), "127.0.0.1")
	require.Len(t, results, 3)

	assert.True(t, results[0].Up())
	assert.Equal(t, "Error (status 503)", results[1].Status)
	assert.Equal(t, 503, results[1].Code)
	assert.Equal(t, StatusUnreachable, results[2].Status)
	assert.Error(t, results[2].Err)

	var buf bytes.Buffer
	Report(&buf, results)
	assert.Contains(t, buf.String(), "Prometheus")
	assert.Contains(t, buf.String(), "Unreachable")
	assert.Contains(t, buf.String(), "Grafana (http://127.0.0.1:")
	assert.Contains(t, buf.String(), "[monitor] 1/3 services up\n")
}

func TestProbeHonoursTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	p := NewProber(50*time.Millisecond, nil).WithServices([]Service{{Name: "Grafana", Port: serverPort(t, slow)}})
	results := p.Probe(context.Background(), "127.0.0.1")
	assert.Equal(t, StatusUnreachable, results[0].Status)
}

func TestDashboard(t *testing.T) {
	var buf bytes.Buffer
	Dashboard(&buf, "203.0.113.7")
	out := buf.String()
	assert.Contains(t, out, "http://203.0.113.7:9090")
	assert.Contains(t, out, "http://203.0.113.7:3000")
	assert.Contains(t, out, "http://203.0.113.7:9100")
}
