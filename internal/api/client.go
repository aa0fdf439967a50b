package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"petshop/internal/config"
	"petshop/internal/metrics"
	"petshop/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	endpointServices = "/services"
	endpointOccupied = "/occupied-slots"
	endpointBookings = "/bookings"
	endpointLogin    = "/auth/login"
	endpointRegister = "/auth/register"
	endpointVerify   = "/auth/verify"

	servicesCacheKey = "petshop:cache:services"
)

// Client talks to the remote booking API over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client from the api config section.
func NewClient(cfg config.APIConfig, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RefreshRPS > 0 {
		limit = rate.Limit(cfg.RefreshRPS)
	}
	burst := cfg.RefreshBurst
	if burst <= 0 {
		burst = 5
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry:      RetryPolicy{MaxRetries: cfg.MaxRetries, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching of the service catalog.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Services fetches the service catalog.
func (c *Client) Services(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	if c.readCache(ctx, servicesCacheKey, &services) {
		return services, nil
	}

	if err := c.getWithRetry(ctx, endpointServices, "", &services); err != nil {
		return nil, err
	}
	c.writeCache(ctx, servicesCacheKey, services)
	return services, nil
}

// OccupiedSlots fetches the ISO instants already claimed by bookings.
// Calls wait on the refresh limiter.
func (c *Client) OccupiedSlots(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "occupied slots throttled")
	}
	var instants []string
	if err := c.getWithRetry(ctx, endpointOccupied, "", &instants); err != nil {
		return nil, err
	}
	return instants, nil
}

// CreateBooking submits a booking. It is sent exactly once.
// A 2xx whose body cannot be decoded is still a saved booking.
func (c *Client) CreateBooking(ctx context.Context, token string, req models.BookingRequest) (*models.BookingResponse, error) {
	var raw []byte
	if err := c.send(ctx, http.MethodPost, endpointBookings, token, req, &raw); err != nil {
		return nil, err
	}

	var resp models.BookingResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.logger.Warn().Err(err).Msg("booking accepted with unreadable body")
			return &models.BookingResponse{}, nil
		}
	}
	return &resp, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	return c.auth(ctx, endpointLogin, body)
}

// Register creates an account and returns a session token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*models.AuthResult, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.auth(ctx, endpointRegister, body)
}

// Verify checks that the token is still accepted by the API.
func (c *Client) Verify(ctx context.Context, token string) error {
	return c.send(ctx, http.MethodGet, endpointVerify, token, nil, nil)
}

func (c *Client) auth(ctx context.Context, endpoint string, body any) (*models.AuthResult, error) {
	var result models.AuthResult
	err := c.send(ctx, http.MethodPost, endpoint, "", body, &result)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status < 500 {
		return &models.AuthResult{Success: false, Message: httpErr.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint, token string, out any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.send(ctx, http.MethodGet, endpoint, token, nil, out)
		if err == nil || !Retryable(err) || attempt >= c.retry.MaxRetries {
			return err
		}
		delay := c.retry.NextDelay(attempt + 1)
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying remote read")
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

func (c *Client) send(ctx context.Context, method, endpoint, token string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	metrics.IncRemote(endpoint)
	return classify(c.do(req, out))
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if body, ok := out.(*[]byte); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*body = data
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &HTTPError{Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	return &HTTPError{Status: resp.StatusCode, Message: payload.Message}
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache entry")
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
