package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// Namespace is the bucket holding pending play sessions, one list per user.
const Namespace = "offline.sessions"

// SessionDeliverer sends one play session report.
type SessionDeliverer interface {
	Deliver(ctx context.Context, user string, session models.PlaySession) error
}

// Recorder reports play sessions, deferring them while offline.
type Recorder struct {
	queue     *ActionQueue[models.PlaySession]
	deliverer SessionDeliverer
	gate      Gate
	logger    *log.Logger

	mu    sync.Mutex
	armed bool // a flush is waiting for the next online transition
}

func NewRecorder(bucket kv.Bucket, deliverer SessionDeliverer, gate Gate, logger *log.Logger) *Recorder {
	logger = shared.WithLogger(logger, "component", "telemetry")
	return &Recorder{
		queue:     NewActionQueue(bucket, deliverer.Deliver, logger),
		deliverer: deliverer,
		gate:      gate,
		logger:    logger,
	}
}

// Queue exposes the pending sessions.
func (r *Recorder) Queue() *ActionQueue[models.PlaySession] { return r.queue }

// Record sends session now when online. Offline, or on delivery failure, it is
// queued under user and a flush is scheduled for the next online transition.
// Only a failure to queue is returned.
func (r *Recorder) Record(ctx context.Context, user string, session models.PlaySession) error {
	if r.gate == nil || r.gate.IsOnline() {
		err := r.deliverer.Deliver(ctx, user, session)
		if err == nil {
			return nil
		}
		r.logger.Warn("session report failed, deferring", "user", user, "game", session.Identity, "err", err)
	}

	if err := r.queue.RecordIfFailed(user, session); err != nil {
		return err
	}
	if r.gate != nil && !r.gate.IsOnline() {
		r.scheduleFlush(ctx)
	}
	return nil
}

// scheduleFlush arms at most one pending flush however many sessions are deferred.
func (r *Recorder) scheduleFlush(ctx context.Context) {
	r.mu.Lock()
	if r.armed {
		r.mu.Unlock()
		return
	}
	r.armed = true
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	r.gate.RunOnceWhenOnline(func() {
		r.mu.Lock()
		r.armed = false
		r.mu.Unlock()
		r.queue.flushLogged(ctx)
	})
}

// Flush replays every pending session.
func (r *Recorder) Flush(ctx context.Context) (int, error) {
	return r.queue.FlushAll(ctx)
}

// sessionReport is the JSON body posted for one session.
type sessionReport struct {
	User      string    `json:"user"`
	AppName   string    `json:"app_name"`
	Backend   string    `json:"backend"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Seconds   int64     `json:"seconds"`
}

// HTTPDeliverer posts sessions as JSON with bounded retries.
type HTTPDeliverer struct {
	client   *retryablehttp.Client
	endpoint string
}

// NewHTTPDeliverer retries each post up to retryMax times.
func NewHTTPDeliverer(endpoint string, retryMax int, logger *log.Logger) *HTTPDeliverer {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{shared.WithLogger(logger, "component", "telemetry-http")}
	return &HTTPDeliverer{client: client, endpoint: endpoint}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, user string, session models.PlaySession) error {
	if d.endpoint == "" {
		return fmt.Errorf("%w: telemetry endpoint is not configured", shared.ErrInvalidConfig)
	}

	body, err := json.Marshal(sessionReport{
		User:      user,
		AppName:   session.Identity.AppName,
		Backend:   string(session.Identity.Backend),
		StartedAt: session.StartedAt,
		EndedAt:   session.EndedAt,
		Seconds:   int64(session.Duration() / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint returned %s", resp.Status)
	}
	return nil
}

// retryLogger adapts a charm logger to retryablehttp's leveled logger.
type retryLogger struct {
	l *log.Logger
}

func (r retryLogger) Error(msg string, kv ...any) { r.l.Error(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...any)  { r.l.Debug(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...any) { r.l.Debug(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...any)  { r.l.Warn(msg, kv...) }
