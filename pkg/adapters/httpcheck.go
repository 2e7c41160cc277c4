package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gantryctl/gantry/pkg/orchestrator"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPCheckAdapter verifies readiness by polling an HTTP endpoint. Apply is
// a no-op that passes the configured URL through as an output, so a unit can
// gate on an endpoint provisioned out of band.
type HTTPCheckAdapter struct {
	url      string
	urlFrom  string
	expected int
	client   *http.Client
}

// NewHTTPCheckAdapter builds an httpcheck adapter from manifest
// configuration. Recognized keys: url or url_from (one required), status
// (default 200), timeout.
func NewHTTPCheckAdapter(config map[string]string) (*HTTPCheckAdapter, error) {
	url := config["url"]
	urlFrom := config["url_from"]
	if url == "" && urlFrom == "" {
		return nil, fmt.Errorf("httpcheck adapter: url or url_from is required")
	}

	expected := http.StatusOK
	if raw, ok := config["status"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("httpcheck adapter: invalid status %q: %w", raw, err)
		}
		expected = parsed
	}

	timeout := defaultHTTPTimeout
	if raw, ok := config["timeout"]; ok {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("httpcheck adapter: invalid timeout %q: %w", raw, err)
		}
		timeout = parsed
	}

	return &HTTPCheckAdapter{
		url:      url,
		urlFrom:  urlFrom,
		expected: expected,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Apply passes the configured URL through as the "url" output.
func (a *HTTPCheckAdapter) Apply(_ context.Context, inputs map[string]string) (map[string]string, error) {
	url, err := a.resolveURL(inputs)
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": url}, nil
}

// Verify performs one GET and reports ready when the status code matches.
// Connection errors are transient; the gate keeps polling through them.
func (a *HTTPCheckAdapter) Verify(ctx context.Context, outputs map[string]string) (bool, error) {
	url, err := a.resolveURL(outputs)
	if err != nil {
		return false, orchestrator.Permanent(err)
	}

	code, err := a.get(ctx, url)
	if err != nil {
		return false, orchestrator.Transient(err)
	}
	return code == a.expected, nil
}

// resolveURL picks the static URL or looks it up in the value map.
func (a *HTTPCheckAdapter) resolveURL(values map[string]string) (string, error) {
	if a.url != "" {
		return a.url, nil
	}
	url, ok := values[a.urlFrom]
	if !ok || url == "" {
		return "", fmt.Errorf("httpcheck: no value for url_from key %q", a.urlFrom)
	}
	return url, nil
}

func (a *HTTPCheckAdapter) get(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// HTTPProbe reads steady state from an HTTP health endpoint. The workload is
// considered stable after a run of consecutive healthy responses; a failure
// after stability was reached reports degraded.
type HTTPProbe struct {
	check     *HTTPCheckAdapter
	threshold int

	mu        sync.Mutex
	healthy   int
	wasStable bool
}

// NewHTTPProbe builds an httpcheck probe. Recognized keys are those of the
// httpcheck adapter plus healthy_count (default 3).
func NewHTTPProbe(config map[string]string) (*HTTPProbe, error) {
	check, err := NewHTTPCheckAdapter(config)
	if err != nil {
		return nil, err
	}

	threshold := 3
	if raw, ok := config["healthy_count"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("httpcheck probe: invalid healthy_count %q", raw)
		}
		threshold = parsed
	}

	return &HTTPProbe{check: check, threshold: threshold}, nil
}

// Observe performs one GET and folds it into the consecutive-healthy count.
func (p *HTTPProbe) Observe(ctx context.Context, outputs map[string]string) (orchestrator.Observation, error) {
	url, err := p.check.resolveURL(outputs)
	if err != nil {
		return orchestrator.Observation{}, orchestrator.Permanent(err)
	}

	code, err := p.check.get(ctx, url)

	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := err == nil && code == p.check.expected
	if healthy {
		p.healthy++
		if p.healthy >= p.threshold {
			p.wasStable = true
			return orchestrator.Observation{State: orchestrator.StabilityStable}, nil
		}
		return orchestrator.Observation{
			State:  orchestrator.StabilityConverging,
			Detail: fmt.Sprintf("%d/%d consecutive healthy responses", p.healthy, p.threshold),
		}, nil
	}

	p.healthy = 0
	detail := fmt.Sprintf("unexpected status %d", code)
	if err != nil {
		detail = err.Error()
	}

	if p.wasStable {
		return orchestrator.Observation{State: orchestrator.StabilityDegraded, Detail: detail}, nil
	}
	return orchestrator.Observation{State: orchestrator.StabilityConverging, Detail: detail}, nil
}
