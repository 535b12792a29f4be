// Package zapform is the order API client: paginated order listing, order
// detail, workflow configuration and configuration names, with rotating
// logins, retries with backoff and a circuit breaker around every call
package zapform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
)

const (
	baseURLDefault   = "https://api.zapform.com.br"
	defaultTimeout   = 30 * time.Second
	defaultUA        = "slaledger"
	defaultMaxRetry  = 5
	defaultRetryBase = 500 * time.Millisecond
	maxBackoff       = 30 * time.Second
	loginPath        = "/api/auth/login/"
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Logins rotate per the Rotation policy; empty means unauthenticated
	Logins      []Credential
	RotateEvery int

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration

	// Breaker trips after BreakerFailures consecutive failed calls and
	// half-opens after BreakerCooldown
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// OnRequest observes the outcome of every logical call by endpoint name
	OnRequest func(endpoint string, err error)
	// OnBreaker observes breaker transitions (0 closed, 1 half-open, 2 open)
	OnBreaker func(name string, state int)
	// OnRotate observes every login handover
	OnRotate func()
}

// Client talks to the order API
type Client struct {
	http    *http.Client
	opts    Options
	rot     *Rotation
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("zapform"),
		now:   time.Now,
		sleep: sleepCtx,
	}
	c.rot = NewRotation(o.Logins, o.RotateEvery, c.login)
	c.rot.OnRotate = func(from, to string) {
		if o.OnRotate != nil {
			o.OnRotate()
		}
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "zapform",
		MaxRequests: 1,
		Timeout:     o.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			if o.OnBreaker != nil {
				o.OnBreaker(name, int(to))
			}
		},
	})
	return c
}

// Rotation exposes the credential policy
func (c *Client) Rotation() *Rotation { return c.rot }

// getJSON runs one logical GET through the breaker and decodes the body into
// out. A missing resource is a healthy answer and does not count against the breaker
func (c *Client) getJSON(ctx context.Context, endpoint, url string, out any) error {
	res, err := c.breaker.Execute(func() (any, error) {
		body, err := c.do(ctx, http.MethodGet, url)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return err, nil
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "zapform decode %s", endpoint)
		}
		return nil, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		err = perr.Wrapf(err, perr.ErrorCodeUnavailable, "zapform %s: circuit breaker open", endpoint)
	case err == nil && res != nil:
		err, _ = res.(error)
	}
	if c.opts.OnRequest != nil {
		c.opts.OnRequest(endpoint, err)
	}
	return err
}

// do issues a request with the active token, retrying throttled and
// transient responses with backoff and rotating the login on each of them
func (c *Client) do(ctx context.Context, method, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.opts.BaseURL + url
	}
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := c.rot.Token(ctx)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "zapform new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		if tok != "" {
			req.Header.Set("Authorization", "Token "+tok)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.rot.Fail(ctx, tok, "network")
			if !c.shouldRetry(attempts) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "zapform do failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempts).Msg("zapform transport error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			attempts++
			continue
		}

		c.log.Debug().
			Str("method", method).
			Str("url", url).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("zapform http response")

		switch resp.StatusCode {
		case http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "zapform read body")
			}
			c.rot.Success(ctx)
			return body, nil
		case http.StatusTooManyRequests, http.StatusForbidden:
			_ = drainAndClose(resp.Body)
			c.rot.Fail(ctx, tok, http.StatusText(resp.StatusCode))
			if !c.shouldRetry(attempts) {
				return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "zapform rate limited (%d)", resp.StatusCode)
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("sleep", back).Int("status", resp.StatusCode).Msg("zapform rate limited backing off")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			attempts++
			continue
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			_ = drainAndClose(resp.Body)
			c.rot.Fail(ctx, tok, http.StatusText(resp.StatusCode))
			if !c.shouldRetry(attempts) {
				return nil, perr.Newf(perr.ErrorCodeUnavailable, "zapform transient server error (%d)", resp.StatusCode)
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("zapform transient error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			attempts++
			continue
		case http.StatusNotFound:
			_ = drainAndClose(resp.Body)
			return nil, perr.NotFoundf("zapform %s not found", url)
		case http.StatusUnauthorized:
			_ = drainAndClose(resp.Body)
			return nil, perr.Unauthorizedf("zapform rejected token for %s", c.rot.Current())
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUnknown, "zapform unexpected status %d body %s", resp.StatusCode, string(body))
		}
	}
}

// login posts one credential and returns the token key
func (c *Client) login(ctx context.Context, cred Credential) (string, error) {
	payload, _ := json.Marshal(map[string]string{"username": cred.Username, "password": cred.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "zapform login request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnavailable, "zapform login")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = drainAndClose(resp.Body)
		return "", perr.Unauthorizedf("zapform login %s: status %d", cred.Username, resp.StatusCode)
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeJSON, "zapform login decode")
	}
	return strings.TrimSpace(out.Key), nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase << uint(attempt)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepCtx waits d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}
