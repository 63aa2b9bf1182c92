package alerts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/observ"
)

var (
	ErrRateLimited = errors.New("slack: rate limited")
	ErrQueueFull   = errors.New("slack: queue full")
	ErrClosed      = errors.New("slack: client closed")
)

const (
	dedupeWindow = 10 * time.Minute
	maxPayload   = 4000
)

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Fields []SlackField `json:"fields"`
}

type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type AlertMetrics struct {
	AlertsSentTotal    int64
	WebhookErrorsTotal int64
	RateLimitHitsTotal int64
	DedupedTotal       int64
	QueueDroppedTotal  int64
}

// SlackClient posts alerts to an incoming webhook from a background worker. Send only
// enqueues; Close drains the queue.
type SlackClient struct {
	cfg        config.Slack
	httpClient *http.Client
	limiter    *rate.Limiter
	queue      chan Alert
	backoff    time.Duration

	mu      sync.Mutex
	dedupe  map[string]time.Time
	metrics AlertMetrics
	closed  bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSlackClient(cfg config.Slack) *SlackClient {
	ctx, cancel := context.WithCancel(context.Background())
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 20
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &SlackClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		queue:      make(chan Alert, 256),
		backoff:    time.Second,
		dedupe:     make(map[string]time.Time),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *SlackClient) Name() string { return "slack" }

// Send queues a for delivery. Duplicates of a recent alert are dropped silently.
func (s *SlackClient) Send(_ context.Context, a Alert) error {
	if !s.cfg.Enabled {
		return nil
	}
	hash := alertHash(a)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if last, ok := s.dedupe[hash]; ok && time.Since(last) < dedupeWindow {
		s.metrics.DedupedTotal++
		return nil
	}
	if !s.limiter.Allow() {
		s.metrics.RateLimitHitsTotal++
		return ErrRateLimited
	}
	select {
	case s.queue <- a:
		s.dedupe[hash] = time.Now()
		return nil
	default:
		s.metrics.QueueDroppedTotal++
		return ErrQueueFull
	}
}

func alertHash(a Alert) string {
	sum := sha256.Sum256([]byte(a.Key + "|" + a.Level.String() + "|" + a.Title + "|" + a.Message))
	return fmt.Sprintf("%x", sum)[:16]
}

func (s *SlackClient) worker() {
	defer s.wg.Done()
	for a := range s.queue {
		s.deliver(a)
		s.pruneDedupe()
	}
}

func (s *SlackClient) deliver(a Alert) {
	attempts := s.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			// exponential backoff with 10% jitter
			wait := s.backoff << (i - 1)
			wait += time.Duration(rand.Float64() * float64(wait) * 0.1)
			select {
			case <-time.After(wait):
			case <-s.ctx.Done():
				return
			}
		}
		if err = s.post(a); err == nil {
			s.mu.Lock()
			s.metrics.AlertsSentTotal++
			s.mu.Unlock()
			return
		}
	}
	s.mu.Lock()
	s.metrics.WebhookErrorsTotal++
	s.mu.Unlock()
	observ.Error("slack_webhook_failed", err, map[string]any{"key": a.Key, "attempts": attempts})
}

func (s *SlackClient) post(a Alert) error {
	payload, err := json.Marshal(s.formatMessage(a))
	if err != nil {
		return err
	}
	if len(payload) > maxPayload {
		short := s.formatMessage(Alert{Level: a.Level, Title: a.Title, Message: truncate(a.Message, 1000), Timestamp: a.Timestamp})
		if payload, err = json.Marshal(short); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackClient) formatMessage(a Alert) SlackMessage {
	emoji, color := "ℹ️", "good"
	switch a.Level {
	case LevelWarning:
		emoji, color = "⚠️", "warning"
	case LevelCritical:
		emoji, color = "🚨", "danger"
	}
	fields := []SlackField{
		{Title: "Level", Value: a.Level.String(), Short: true},
		{Title: "Source", Value: a.Source, Short: true},
	}
	if !a.Timestamp.IsZero() {
		fields = append(fields, SlackField{Title: "Time", Value: a.Timestamp.Format("2006-01-02 15:04 MST"), Short: true})
	}
	keys := make([]string, 0, len(a.Details))
	for k := range a.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, SlackField{Title: k, Value: fmt.Sprint(a.Details[k]), Short: true})
	}
	return SlackMessage{
		Channel:  s.cfg.Channel,
		Username: s.cfg.Username,
		Text:     fmt.Sprintf("%s *%s*\n%s", emoji, a.Title, a.Message),
		Attachments: []SlackAttachment{{
			Color:  color,
			Fields: fields,
		}},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (s *SlackClient) pruneDedupe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-dedupeWindow)
	for h, t := range s.dedupe {
		if t.Before(cutoff) {
			delete(s.dedupe, h)
		}
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (s *SlackClient) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
	s.cancel()
}

func (s *SlackClient) GetMetrics() AlertMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}
