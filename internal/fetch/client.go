package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"optionflow/config"
	ratemetrics "optionflow/internal/metrics/rate"
	"optionflow/logger"
)

// Response is the fully-buffered result of a fetch. No connection or session
// handle escapes the client.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the anti-ban HTTP layer every vendor-facing component calls
// through. It owns the session pool, per-host rate limiters, per-host circuit
// breakers and the retry/backoff policy; nothing else touches that state.
type Client struct {
	httpClient *http.Client
	pool       *SessionPool
	cfg        config.FetchConfig
	log        *logger.Log

	limiters *hostMap[*rate.Limiter]
	breakers *hostMap[*gobreaker.CircuitBreaker]
}

func NewClient(cfg config.FetchConfig, log *logger.Log) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout.Std()},
		pool:       NewSessionPool(cfg.Profiles, cfg.Session.MaxRequests, cfg.Session.MaxAge.Std()),
		cfg:        cfg,
		log:        log,
	}
	c.limiters = newHostMap(func(host string) *rate.Limiter {
		return rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
	})
	c.breakers = newHostMap(func(host string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: uint32(cfg.CircuitBreaker.HalfOpenMaxRequests),
			Timeout:     cfg.CircuitBreaker.RecoveryTimeout.Std(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.CircuitBreaker.FailureThreshold)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithComponent("fetch").WithFields(logger.Fields{
					"host": name, "from": from.String(), "to": to.String(),
				}).Warn("circuit breaker state change")
			},
		})
	})
	return c
}

// RenewSession retires the host's current session so the next request mints a
// fresh fingerprint. The paginated fetcher calls this between page batches.
func (c *Client) RenewSession(host string) {
	c.pool.Retire(host)
}

// Get fetches rawURL with the given query parameters through the full
// anti-ban path.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &Error{Kind: KindTransport, Err: err}
		}
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}
	return c.Do(ctx, http.MethodGet, rawURL, nil)
}

// Do issues the request with fingerprint rotation, cooperative per-host rate
// limiting and exponential backoff. Transport failures, 429 and 403 are
// retried up to the attempt ceiling; 429 additionally retires the session
// before the next try. Context cancellation aborts at the next suspension
// point and is returned unwrapped so callers can distinguish it.
func (c *Client) Do(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	host := u.Host

	limiter := c.limiters.get(host)
	breaker := c.breakers.get(host)
	backoff := NewBackoff(c.cfg.Retry.BaseDelay.Std(), c.cfg.Retry.MaxDelay.Std(), c.cfg.Retry.JitterPct)

	var lastErr error
	var lastStatus int
	var cooldown time.Duration

	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.Next()
			// A vendor cooldown hint overrides a shorter backoff step.
			if cooldown > delay {
				delay = cooldown
			}
			cooldown = 0
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, &Error{Kind: KindTimeout, Host: host, Attempts: attempt + 1, Err: ctx.Err()}
				}
				return nil, ctx.Err()
			}
			// Wait also fails when the required delay would outlive the
			// deadline, before the context itself expires.
			return nil, &Error{Kind: KindTimeout, Host: host, Attempts: attempt + 1, Err: err}
		}

		session := c.pool.Acquire(host)

		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return nil, &Error{Kind: KindTransport, Host: host, Attempts: attempt + 1, Err: err}
		}
		req.Header.Set("User-Agent", session.UserAgent())
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Session-Token", session.Token)
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			return c.httpClient.Do(req)
		})
		if err != nil {
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, &Error{Kind: KindTimeout, Host: host, Attempts: attempt + 1, Err: ctx.Err()}
				}
				return nil, ctx.Err()
			}
			lastErr = err
			lastStatus = 0
			c.log.WithComponent("fetch").WithError(err).WithFields(logger.Fields{
				"host": host, "attempt": attempt + 1, "profile": session.Profile,
			}).Warn("request failed")
			if isTimeoutErr(err) {
				lastErr = &Error{Kind: KindTimeout, Host: host, Attempts: attempt + 1, Err: err}
			}
			continue
		}

		resp := result.(*http.Response)
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			// rate limited: retire the session outright and back off
			c.pool.RecordRejection(session)
			c.pool.Retire(host)
			lastStatus = resp.StatusCode
			lastErr = nil
			cooldown = ratemetrics.RetryAfterHint(resp.Header)
			ratemetrics.ReportFromStatus(c.log, host, session.Profile, u.Path, resp.StatusCode)
			c.log.WithComponent("fetch").WithFields(logger.Fields{
				"host": host, "attempt": attempt + 1, "profile": session.Profile,
			}).Warn("rate limited, renewing session")
			continue

		case resp.StatusCode == http.StatusForbidden:
			retired := c.pool.RecordRejection(session)
			lastStatus = resp.StatusCode
			lastErr = nil
			ratemetrics.ReportFromStatus(c.log, host, session.Profile, u.Path, resp.StatusCode)
			c.log.WithComponent("fetch").WithFields(logger.Fields{
				"host": host, "attempt": attempt + 1, "profile": session.Profile, "session_retired": retired,
			}).Warn("request rejected")
			continue

		case resp.StatusCode >= 500:
			lastStatus = resp.StatusCode
			lastErr = nil
			continue

		case resp.StatusCode >= 400:
			return nil, &Error{Kind: KindTransport, Host: host, Attempts: attempt + 1, Status: resp.StatusCode}

		default:
			if readErr != nil {
				lastErr = readErr
				continue
			}
			c.pool.RecordSuccess(session)
			return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
		}
	}

	if lastErr != nil {
		var fe *Error
		if errors.As(lastErr, &fe) && fe.Kind == KindTimeout {
			return nil, &Error{Kind: KindTimeout, Host: host, Attempts: c.cfg.Retry.MaxAttempts, Err: fe.Err}
		}
	}
	if lastStatus == http.StatusForbidden {
		return nil, &Error{Kind: KindSessionRejected, Host: host, Attempts: c.cfg.Retry.MaxAttempts, Status: lastStatus}
	}
	return nil, &Error{Kind: KindExhausted, Host: host, Attempts: c.cfg.Retry.MaxAttempts, Status: lastStatus, Err: lastErr}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
