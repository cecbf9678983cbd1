// Package broker serializes every outbound API call through one worker loop
// that enforces the provider's request spacing and backs off on 429s.
package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fleetops/internal/logging"
)

// ErrClosed is returned by Submit once the worker loop has stopped.
var ErrClosed = errors.New("broker closed")

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Request is one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the buffered result of a call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// State is a copy of the broker's rate-limit bookkeeping.
type State struct {
	LastRequest  time.Time     `json:"last_request"`
	BackoffUntil time.Time     `json:"backoff_until"`
	Backoff      time.Duration `json:"backoff"`
	Sent         uint64        `json:"sent"`
	RateLimited  uint64        `json:"rate_limited"`
	Queued       int           `json:"queued"`
}

type result struct {
	resp *Response
	err  error
}

type job struct {
	ctx   context.Context
	req   Request
	reply chan result
}

// Broker owns the single queue all API traffic goes through.
type Broker struct {
	transport   Doer
	minInterval time.Duration
	floor       time.Duration
	ceiling     time.Duration
	maxRetries  int
	burst       *rate.Limiter
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	queue chan job
	done  chan struct{}

	// loop-owned
	lastRequest  time.Time
	backoffUntil time.Time
	backoff      time.Duration

	mu    sync.Mutex
	state State
}

// Option configures a Broker.
type Option func(*Broker)

// WithMinInterval sets the minimum spacing between two sends.
func WithMinInterval(d time.Duration) Option { return func(b *Broker) { b.minInterval = d } }

// WithBackoff sets the 429 backoff floor and cap.
func WithBackoff(floor, ceiling time.Duration) Option {
	return func(b *Broker) { b.floor, b.ceiling = floor, ceiling }
}

// WithMaxRateRetries bounds how often one request is resent after a 429.
func WithMaxRateRetries(n int) Option { return func(b *Broker) { b.maxRetries = n } }

// WithBurst adds a sustained-rate limiter consulted after the spacing wait.
func WithBurst(l *rate.Limiter) Option { return func(b *Broker) { b.burst = l } }

// WithQueueSize sets the request queue capacity.
func WithQueueSize(n int) Option { return func(b *Broker) { b.queue = make(chan job, n) } }

// WithClock replaces the time source and sleep used by the loop.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(b *Broker) {
		b.now = now
		b.sleep = sleep
	}
}

// New creates a Broker sending through transport. Call Run to start it.
func New(transport Doer, opts ...Option) *Broker {
	b := &Broker{
		transport:   transport,
		minInterval: 600 * time.Millisecond,
		floor:       time.Second,
		ceiling:     60 * time.Second,
		maxRetries:  5,
		now:         time.Now,
		sleep:       sleepCtx,
		queue:       make(chan job, 1024),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	b.backoff = b.floor
	b.state.Backoff = b.floor
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues req and waits for its response. It is safe for concurrent use.
func (b *Broker) Submit(ctx context.Context, req Request) (*Response, error) {
	j := job{ctx: ctx, req: req, reply: make(chan result, 1)}
	select {
	case b.queue <- j:
	case <-b.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.reply:
		return r.resp, r.err
	case <-b.done:
		// the loop may have answered just before stopping
		select {
		case r := <-j.reply:
			return r.resp, r.err
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns a snapshot of the rate-limit bookkeeping.
func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state
	s.Queued = len(b.queue)
	return s
}

// Run drains the queue until ctx is done. It must be called exactly once.
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)
	log := logging.FromContext(ctx).With("component", "broker")
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.queue:
			resp, err := b.handle(ctx, j)
			if err != nil && ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Debug("request failed", "method", j.req.Method, "url", j.req.URL, "err", err)
			}
			// reply is buffered; a caller that gave up is never waited on
			j.reply <- result{resp: resp, err: err}
		}
	}
}

func (b *Broker) handle(ctx context.Context, j job) (*Response, error) {
	log := logging.FromContext(ctx).With("component", "broker")
	for attempt := 0; ; attempt++ {
		if err := j.ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.wait(ctx); err != nil {
			return nil, err
		}
		b.lastRequest = b.now()
		resp, err := b.send(j)
		if err != nil {
			// transport failures belong to the caller and leave backoff as is
			return nil, err
		}
		b.record(resp)
		if resp.Status != http.StatusTooManyRequests {
			return resp, nil
		}
		if attempt >= b.maxRetries {
			return resp, nil
		}
		if ra := retryAfter(resp.Header); ra > 0 && b.lastRequest.Add(ra).After(b.backoffUntil) {
			b.backoffUntil = b.lastRequest.Add(ra)
			b.publish()
		}
		log.Warn("rate limited, backing off", "until", b.backoffUntil, "attempt", attempt+1)
	}
}

// wait blocks for an active backoff window, then for the minimum spacing,
// then for the optional burst limiter.
func (b *Broker) wait(ctx context.Context) error {
	if d := b.backoffUntil.Sub(b.now()); d > 0 {
		if err := b.sleep(ctx, d); err != nil {
			return err
		}
	}
	if !b.lastRequest.IsZero() {
		if d := b.minInterval - b.now().Sub(b.lastRequest); d > 0 {
			if err := b.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	if b.burst != nil {
		if err := b.burst.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) send(j job) (*Response, error) {
	var body io.Reader
	if j.req.Body != nil {
		body = bytes.NewReader(j.req.Body)
	}
	httpReq, err := http.NewRequestWithContext(j.ctx, j.req.Method, j.req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range j.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpResp, err := b.transport.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", j.req.Method, j.req.URL, err)
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// record updates backoff after a send. A 429 arms a window of the current
// backoff and doubles it up to the cap; anything else resets it.
func (b *Broker) record(resp *Response) {
	limited := resp.Status == http.StatusTooManyRequests
	if limited {
		b.backoffUntil = b.now().Add(b.backoff)
		b.backoff *= 2
		if b.backoff > b.ceiling {
			b.backoff = b.ceiling
		}
	} else {
		b.backoff = b.floor
	}
	b.mu.Lock()
	b.state.Sent++
	if limited {
		b.state.RateLimited++
	}
	b.mu.Unlock()
	b.publish()
}

func (b *Broker) publish() {
	b.mu.Lock()
	b.state.LastRequest = b.lastRequest
	b.state.BackoffUntil = b.backoffUntil
	b.state.Backoff = b.backoff
	b.mu.Unlock()
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
