// Package pygeoapi is the typed client for the remote geoprocessing
// endpoint. It is the only place in the service that performs outbound
// HTTP; calls run through a circuit breaker and retry once on transient
// transport failures.
package pygeoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/telemetry"
)

// Point is a lon/lat pair returned by the flowtrace process.
type Point struct {
	Lon float64
	Lat float64
}

// Client calls the pygeoapi process endpoints.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.Metrics
	log     *zap.Logger
}

// New builds a pygeoapi client from configuration.
func New(cfg config.Pygeoapi, metrics *telemetry.Metrics, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Client{
		base:    cfg.URL,
		http:    &http.Client{Timeout: 2 * timeout},
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "pygeoapi",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		metrics: metrics,
		log:     log.Named("pygeoapi"),
	}
}

// Ping reports whether the remote endpoint is reachable. Any HTTP answer
// counts; only transport failures mark it down.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "building ping request")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.RemoteServiceError, err, "pygeoapi unreachable")
	}
	res.Body.Close()
	return nil
}

type processInput struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type processRequest struct {
	Inputs []processInput `json:"inputs"`
}

type processFeature struct {
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties struct {
		IntersectionPoint []float64 `json:"intersection_point"`
	} `json:"properties"`
}

type processResponse struct {
	Features []processFeature `json:"features"`
}

func textInput(id, value string) processInput {
	return processInput{ID: id, Type: "text/plain", Value: value}
}

func coordInputs(lon, lat float64) []processInput {
	return []processInput{
		textInput("lon", strconv.FormatFloat(lon, 'f', -1, 64)),
		textInput("lat", strconv.FormatFloat(lat, 'f', -1, 64)),
	}
}

// Flowtrace returns the point where a raindrop path from the given
// coordinates intersects the flowline network.
func (c *Client) Flowtrace(ctx context.Context, lon, lat float64) (Point, error) {
	body := processRequest{Inputs: append(coordInputs(lon, lat), textInput("direction", "none"))}

	resp, err := c.execute(ctx, "nldi-flowtrace", body, c.timeout)
	if err != nil {
		return Point{}, err
	}
	if len(resp.Features) == 0 || len(resp.Features[0].Properties.IntersectionPoint) < 2 {
		return Point{}, errs.New(errs.RemoteServiceError, "flowtrace returned no intersection point")
	}
	pt := resp.Features[0].Properties.IntersectionPoint
	return Point{Lon: pt[0], Lat: pt[1]}, nil
}

// SplitCatchment returns the geometry of the merged upstream catchment
// split at the given coordinates. The process is slow; it runs with
// double the configured timeout.
func (c *Client) SplitCatchment(ctx context.Context, lon, lat float64) (json.RawMessage, error) {
	body := processRequest{Inputs: append(coordInputs(lon, lat), textInput("upstream", "true"))}

	resp, err := c.execute(ctx, "nldi-splitcatchment", body, 2*c.timeout)
	if err != nil {
		return nil, err
	}
	for _, feat := range resp.Features {
		// The upstream process renamed the feature from mergedCatchment to
		// drainageBasin in 2024; accept both.
		if feat.ID == "mergedCatchment" || feat.ID == "drainageBasin" {
			return feat.Geometry, nil
		}
	}
	return nil, errs.New(errs.RemoteServiceError, "splitcatchment returned no drainage basin")
}

func (c *Client) execute(ctx context.Context, process string, body processRequest, timeout time.Duration) (*processResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encoding %s request", process)
	}
	url := fmt.Sprintf("%s/processes/%s/execution", c.base, process)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *processResponse
	_, err = c.breaker.Execute(func() (any, error) {
		return nil, retry.Do(
			func() error {
				var callErr error
				resp, callErr = c.post(ctx, url, payload)
				return callErr
			},
			retry.Attempts(2),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.RetryIf(isTransient),
		)
	})
	if err != nil {
		err = c.classify(process, err)
		c.record(process, err)
		return nil, err
	}

	c.record(process, nil)
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) (*processResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &statusError{code: res.StatusCode, body: string(raw)}
	}

	var decoded processResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &decoded, nil
}

// statusError is a non-2xx upstream answer; never retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	msg := e.body
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("upstream status %d: %s", e.code, msg)
}

func isTransient(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (c *Client) classify(process string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return errs.Wrap(errs.RemoteTimeout, err, "%s timed out", process)
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return errs.Wrap(errs.RemoteServiceError, err, "%s temporarily unavailable", process)
	default:
		return errs.Wrap(errs.RemoteServiceError, err, "%s failed", process)
	}
}

func (c *Client) record(process string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errs.Is(err, errs.RemoteTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRemoteCall(process, outcome)
	}
	if err != nil {
		c.log.Warn("remote call failed", zap.String("process", process), zap.Error(err))
	}
}
