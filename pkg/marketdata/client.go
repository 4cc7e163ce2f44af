package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrTickerNotFound is returned when the provider does not know the ticker.
var ErrTickerNotFound = errors.New("ticker not found by market data provider")

// statusError is a non-2xx provider response that should not trip the breaker.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("market data provider error (%d): %s", e.code, e.message)
}

// Client represents the market data HTTP client
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	bars       BarStore
	logger     *logrus.Logger
}

// NewClient creates a new market data client. bars may be nil to disable bar caching.
func NewClient(cfg *config.MarketDataConfig, bars BarStore, logger *logrus.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL: strings.TrimSuffix(cfg.ServiceURL, "/"),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		bars:    bars,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "market-data",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || errors.Is(err, ErrTickerNotFound) || errors.As(err, &se)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// HealthCheck checks if the provider is healthy
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/health", &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetDailyBars returns up to limit daily bars for ticker, oldest first.
// A 404 from the provider is reported as ErrTickerNotFound; transport failures,
// 5xx responses and an open breaker wrap utils.ErrUpstreamUnavailable.
func (c *Client) GetDailyBars(ctx context.Context, ticker string, limit int) ([]Bar, error) {
	cacheKey := ticker + ":" + strconv.Itoa(limit)
	if c.bars != nil {
		var cached []Bar
		if c.bars.Get(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	path := "/api/bars/" + url.PathEscape(ticker)
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var response BarsResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}

	bars := response.Bars
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })

	if c.bars != nil && len(bars) > 0 {
		c.bars.Set(ctx, cacheKey, bars)
	}
	return bars, nil
}

// BreakerState reports the circuit breaker state for health output.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Close releases idle connections
func (c *Client) Close() error {
	c.HTTPClient.CloseIdleConnections()
	return nil
}

// makeRequest throttles, then runs one GET through the breaker.
func (c *Client) makeRequest(ctx context.Context, method, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w: %w", utils.ErrUpstreamUnavailable, err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, result)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("market data circuit open: %w: %w", utils.ErrUpstreamUnavailable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Stock-Monitor/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w: %w", utils.ErrUpstreamUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w: %w", utils.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		message := string(respBody)
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			message = errorResp.Error
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrTickerNotFound, message)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("market data provider error (%d): %w: %s", resp.StatusCode, utils.ErrUpstreamUnavailable, message)
		default:
			return &statusError{code: resp.StatusCode, message: message}
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w: %w", utils.ErrUpstreamUnavailable, err)
		}
	}
	return nil
}
