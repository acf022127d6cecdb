// Package monitor checks the standing Prometheus/Grafana/Node Exporter host.
package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 5 * time.Second

// Service is one endpoint on the monitoring host.
type Service struct {
	Name string
	Port int
}

// Services are the endpoints of the monitoring stack, in display order.
var Services = []Service{
	{Name: "Prometheus", Port: 9090},
	{Name: "Grafana", Port: 3000},
	{Name: "Node Exporter", Port: 9100},
}

const (
	StatusUp          = "UP"
	StatusUnreachable = "Unreachable"
)

// Result is the outcome of probing one service.
type Result struct {
	Service Service
	URL     string
	Status  string
	Code    int
	Err     error
}

// Up reports whether the service answered 200.
func (r Result) Up() bool {
	return r.Status == StatusUp
}

// URL is the dashboard address of s on host.
func URL(host string, s Service) string {
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// Prober issues one GET per service. Failures never abort the run.
type Prober struct {
	client   *http.Client
	services []Service
	logger   *zap.Logger
}

// NewProber returns a prober with the given per-request timeout.
func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		client:   &http.Client{Timeout: timeout},
		services: Services,
		logger:   logger,
	}
}

// WithServices overrides the probed services.
func (p *Prober) WithServices(services []Service) *Prober {
	p.services = services
	return p
}

// Probe checks every service on host.
func (p *Prober) Probe(ctx context.Context, host string) []Result {
	results := make([]Result, 0, len(p.services))
	for _, s := range p.services {
		results = append(results, p.probeOne(ctx, host, s))
	}
	return results
}

func (p *Prober) probeOne(ctx context.Context, host string, s Service) Result {
	r := Result{Service: s, URL: URL(host, s)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		r.Status, r.Err = StatusUnreachable, err
		return r
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", zap.String("service", s.Name), zap.Error(err))
		r.Status, r.Err = StatusUnreachable, err
		return r
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	r.Code = resp.StatusCode
	if resp.StatusCode == http.StatusOK {
		r.Status = StatusUp
	} else {
		r.Status = fmt.Sprintf("Error (status %d)", resp.StatusCode)
	}
	return r
}

// Report writes one line per result and a summary of how many services are up.
func Report(w io.Writer, results []Result) {
	up := 0
	for _, r := range results {
		if r.Up() {
			up++
			fmt.Fprintf(w, "[monitor] %s (%s): %s\n", r.Service.Name, r.URL, r.Status)
			continue
		}
		if r.Err != nil {
			fmt.Fprintf(w, "[monitor] %s (%s): %s: %v\n", r.Service.Name, r.URL, r.Status, r.Err)
			continue
		}
		fmt.Fprintf(w, "[monitor] %s (%s): %s\n", r.Service.Name, r.URL, r.Status)
	}
	fmt.Fprintf(w, "[monitor] %d/%d services up\n", up, len(results))
}

// Dashboard writes the service URLs for host without probing them.
func Dashboard(w io.Writer, host string) {
	for _, s := range Services {
		fmt.Fprintf(w, "[monitor] %-14s %s\n", s.Name+":", URL(host, s))
	}
}
