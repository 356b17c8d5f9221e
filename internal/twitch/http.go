package twitch

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// LimitedHTTPClient performs throttled requests against the REST API. The zero
// value is not valid for use.
type LimitedHTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewLimitedHTTPClient wraps client with a token bucket of perSecond requests
// and the given burst. A nil client uses a default http.Client.
func NewLimitedHTTPClient(client *http.Client, perSecond float64, burst int) *LimitedHTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &LimitedHTTPClient{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Do waits until the client is within rate limits and then performs the request.
// Waiting respects the request context.
func (c *LimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	r := c.limiter.Reserve()
	if !r.OK() {
		return nil, errors.New("invalid limiter configuration")
	}
	delay := r.Delay()
	if delay == 0 {
		return c.client.Do(req)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		r.Cancel()
		return nil, req.Context().Err()
	case <-timer.C:
		return c.client.Do(req)
	}
}
