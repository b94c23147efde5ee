// Package report forwards grid activity to the dashboard backend. Delivery
// is best effort: events wait in a bounded queue and are dropped when it is
// full, so a slow or unreachable backend never stalls trading.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/journal"
	"github.com/rustyeddy/gridscalp/logger"
)

const (
	TradePath     = "/api/bot/trade"
	HeartbeatPath = "/api/bot/heartbeat"
)

var ErrQueueFull = errors.New("report queue full")

type Config struct {
	BaseURL           string
	APIKey            string
	Version           string
	Timeout           time.Duration
	QueueSize         int
	HeartbeatInterval time.Duration
}

// Reporter implements journal.Journal.
type Reporter struct {
	client   *resty.Client
	queue    chan journal.Event
	interval time.Duration
	status   func() Heartbeat
	log      *logrus.Entry
	started  time.Time
	version  string

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ journal.Journal = (*Reporter)(nil)

// New builds a reporter. status supplies heartbeat bodies; with a nil
// status or a zero interval no heartbeat is sent.
func New(c Config, status func() Heartbeat) *Reporter {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(c.BaseURL, "/")).
		SetTimeout(c.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "gridscalp/"+c.Version)
	if c.APIKey != "" {
		client.SetAuthToken(c.APIKey)
	}

	return &Reporter{
		client:   client,
		queue:    make(chan journal.Event, c.QueueSize),
		interval: c.HeartbeatInterval,
		status:   status,
		log:      logger.WithComponent("report"),
		started:  time.Now(),
		version:  c.Version,
	}
}

// Start runs the delivery worker until ctx ends or Close is called.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Record queues trade events (open, close, update). Other kinds are
// ignored. It never blocks.
func (r *Reporter) Record(ev journal.Event) error {
	switch ev.Kind {
	case journal.KindOpen, journal.KindClose, journal.KindUpdate:
	default:
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	select {
	case r.queue <- ev:
		return nil
	default:
		r.log.WithFields(logrus.Fields{"account": ev.Account, "kind": ev.Kind, "ticket": ev.Ticket}).Warn("report dropped, queue full")
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queued ones to be sent.
func (r *Reporter) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

func (r *Reporter) run(ctx context.Context) {
	defer r.wg.Done()

	var beat <-chan time.Time
	if r.interval > 0 && r.status != nil {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		beat = t.C
	}

	for {
		select {
		case ev, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.SendTrade(ctx, ev); err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{"account": ev.Account, "kind": ev.Kind}).Warn("report trade")
			}
		case <-beat:
			if err := r.SendHeartbeat(ctx, r.status()); err != nil {
				r.log.WithError(err).Warn("heartbeat")
			}
		case <-ctx.Done():
			return
		}
	}
}

// SendTrade posts one event synchronously.
func (r *Reporter) SendTrade(ctx context.Context, ev journal.Event) error {
	return r.post(ctx, TradePath, tradeFromEvent(ev))
}

// SendHeartbeat posts one heartbeat synchronously, filling in version and
// uptime when unset.
func (r *Reporter) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	if hb.Version == "" {
		hb.Version = r.version
	}
	if hb.UptimeSeconds == 0 {
		hb.UptimeSeconds = int64(time.Since(r.started).Seconds())
	}
	return r.post(ctx, HeartbeatPath, hb)
}

func (r *Reporter) post(ctx context.Context, path string, body any) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post %s: %s: %s", path, resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}
