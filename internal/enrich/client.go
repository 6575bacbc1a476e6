// Package enrich calls an external enrichment service that proposes
// additional attributes for an entity. Calls are rate limited and run
// behind a circuit breaker so a failing service degrades to a fast
// error instead of stalling callers.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/latticekb/lattice/pkg/types"
)

// ErrCircuitOpen is returned while the breaker rejects calls after
// repeated failures.
var ErrCircuitOpen = errors.New("enrichment circuit is open")

// Config holds the client settings.
type Config struct {
	// URL is the enrichment endpoint, required.
	URL string

	// Timeout bounds one HTTP call. Default 10s.
	Timeout time.Duration

	// MaxFailures is the consecutive-failure count that opens the
	// circuit. Default 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before probing
	// again. Default 30s.
	OpenTimeout time.Duration

	// RequestsPerSecond and Burst bound the call rate. Defaults 2 and 4.
	RequestsPerSecond float64
	Burst             int
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
}

// Client talks to the enrichment service. Results are plain attribute
// proposals; applying them is the caller's decision.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewClient creates a client for the given endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("enrichment URL is required")
	}
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:    "enrichment",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// enrichRequest is the wire shape sent to the service.
type enrichRequest struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Attributes map[string]types.Value `json:"attributes"`
}

// enrichResponse is the wire shape returned by the service.
type enrichResponse struct {
	Attributes map[string]types.Value `json:"attributes"`
}

// Enrich posts the entity to the service and returns the proposed
// attributes. It blocks on the rate limiter, honors ctx cancellation,
// and returns ErrCircuitOpen while the breaker is tripped.
func (c *Client) Enrich(ctx context.Context, entity *types.Entity) (map[string]types.Value, error) {
	if entity == nil {
		return nil, errors.New("entity is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, entity)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(map[string]types.Value), nil
}

func (c *Client) post(ctx context.Context, entity *types.Entity) (map[string]types.Value, error) {
	body, err := json.Marshal(enrichRequest{
		ID:         entity.ID,
		Type:       entity.Type,
		Attributes: entity.Attributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode enrichment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("enrichment service returned %s", resp.Status)
	}

	var decoded enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment response: %w", err)
	}
	return decoded.Attributes, nil
}
