// Package connectivity tracks whether the machine can reach the network.
//
// A [Monitor] moves between offline, checking and online. Entering checking
// fires a probe round: every [Prober] runs in parallel and the first success
// wins. A failed round schedules a countdown that broadcasts the remaining
// seconds once per tick and then probes again; each failure adds a fixed
// increment to the next delay, and a success resets it to the base.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// State is the monitor's connectivity state.
type State string

const (
	Offline  State = "offline"
	Checking State = "checking"
	Online   State = "online"
)

// Status is broadcast to subscribers on every state change and countdown tick.
type Status struct {
	State   State `json:"state"`
	RetryIn int   `json:"retry_in_seconds"`
}

// Prober checks reachability of one endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to [Prober].
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber issues a HEAD request; any response counts as reachable.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// HTTPProbers builds one [HTTPProber] per endpoint.
func HTTPProbers(endpoints []string) []Prober {
	probers := make([]Prober, 0, len(endpoints))
	for _, url := range endpoints {
		probers = append(probers, HTTPProber{URL: url})
	}
	return probers
}

// Options configures a [Monitor]. Zero values fall back to defaults.
type Options struct {
	BaseDelay    time.Duration // first retry delay, 5s
	Increment    time.Duration // added after every failed round, 5s
	ProbeTimeout time.Duration // deadline for one probe round, 10s
	Tick         time.Duration // countdown step, one second
	Logger       *log.Logger
}

// Monitor owns the connectivity state machine.
type Monitor struct {
	mu        sync.Mutex
	state     State
	retryIn   int
	nextDelay time.Duration
	probers   []Prober
	opts      Options
	logger    *log.Logger

	subs     map[int]func(Status)
	oneShots map[int]func()
	nextID   int

	ctx             context.Context
	stop            context.CancelFunc
	cancelCountdown context.CancelFunc
	wg              sync.WaitGroup
}

// NewMonitor creates a monitor in the offline state. Call [Monitor.Check] to run the first probe round.
func NewMonitor(probers []Prober, opts Options) *Monitor {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 5 * time.Second
	}
	if opts.Increment <= 0 {
		opts.Increment = 5 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Monitor{
		state:     Offline,
		nextDelay: opts.BaseDelay,
		probers:   probers,
		opts:      opts,
		logger:    shared.WithLogger(opts.Logger, "component", "connectivity"),
		subs:      make(map[int]func(Status)),
		oneShots:  make(map[int]func()),
		ctx:       ctx,
		stop:      stop,
	}
}

// Status returns the current state and countdown.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, RetryIn: m.retryIn}
}

func (m *Monitor) IsOnline() bool {
	return m.Status().State == Online
}

// NextDelay is the delay the next failed round will wait before retrying.
func (m *Monitor) NextDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextDelay
}

// Subscribe registers fn for every status broadcast and returns its unsubscribe func.
func (m *Monitor) Subscribe(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// RunOnceWhenOnline calls fn now when online, otherwise once on the next online transition.
// The returned func drops a pending listener. Listeners are not re-armed.
func (m *Monitor) RunOnceWhenOnline(fn func()) func() {
	m.mu.Lock()
	if m.state == Online {
		m.mu.Unlock()
		fn()
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.oneShots[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.oneShots, id)
		m.mu.Unlock()
	}
}

// Check runs a probe round and reports whether it succeeded.
func (m *Monitor) Check(ctx context.Context) bool {
	m.mu.Lock()
	m.cancelPendingLocked()
	m.state, m.retryIn = Checking, 0
	subs := m.subscribersLocked()
	m.mu.Unlock()
	broadcast(subs, Status{State: Checking})

	if m.probeRound(ctx) {
		m.SetOnline()
		return true
	}

	m.mu.Lock()
	delay := m.nextDelay
	m.nextDelay += m.opts.Increment
	m.state, m.retryIn = Offline, int(delay/time.Second)
	subs = m.subscribersLocked()
	m.mu.Unlock()

	m.logger.Info("connectivity check failed", "retry_in", delay)
	broadcast(subs, Status{State: Offline, RetryIn: int(delay / time.Second)})
	m.schedule(delay)
	return false
}

// SetOnline records an online transition and fires pending one-shot listeners.
func (m *Monitor) SetOnline() {
	m.mu.Lock()
	m.cancelPendingLocked()
	wasOnline := m.state == Online
	m.state, m.retryIn = Online, 0
	m.nextDelay = m.opts.BaseDelay
	listeners := m.oneShots
	m.oneShots = make(map[int]func())
	subs := m.subscribersLocked()
	m.mu.Unlock()

	if !wasOnline {
		m.logger.Info("online")
	}
	broadcast(subs, Status{State: Online})
	for _, fn := range listeners {
		fn()
	}
}

// SetOffline forces the offline state, for example on an external network-down signal, and schedules a retry.
func (m *Monitor) SetOffline() {
	m.mu.Lock()
	m.cancelPendingLocked()
	delay := m.nextDelay
	m.state, m.retryIn = Offline, int(delay/time.Second)
	subs := m.subscribersLocked()
	m.mu.Unlock()

	broadcast(subs, Status{State: Offline, RetryIn: int(delay / time.Second)})
	m.schedule(delay)
}

// Stop cancels any pending countdown and waits for background work to exit.
func (m *Monitor) Stop() {
	m.stop()
	m.mu.Lock()
	m.cancelPendingLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

// probeRound runs every prober in parallel; the first success cancels the rest.
// Probe errors are logged and treated as failure.
func (m *Monitor) probeRound(ctx context.Context) bool {
	if len(m.probers) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	results := make(chan error, len(m.probers))
	for _, p := range m.probers {
		go func() { results <- p.Probe(ctx) }()
	}

	for range m.probers {
		err := <-results
		if err == nil {
			return true
		}
		m.logger.Debug("probe failed", "err", err)
	}
	return false
}

func (m *Monitor) subscribersLocked() []func(Status) {
	subs := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (m *Monitor) cancelPendingLocked() {
	if m.cancelCountdown != nil {
		m.cancelCountdown()
		m.cancelCountdown = nil
	}
}

// schedule starts a countdown of delay, then re-probes. It is a no-op after
// Stop, or when the state moved on or another countdown started meanwhile.
func (m *Monitor) schedule(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil || m.state != Offline || m.cancelCountdown != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelCountdown = cancel
	m.wg.Add(1)
	go m.countdown(ctx, int(delay/time.Second))
}

func (m *Monitor) countdown(ctx context.Context, seconds int) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.Tick)
	defer ticker.Stop()

	for remaining := seconds; remaining > 0; {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		remaining--

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.retryIn = remaining
		subs := m.subscribersLocked()
		m.mu.Unlock()
		broadcast(subs, Status{State: Offline, RetryIn: remaining})
	}

	if ctx.Err() == nil {
		m.Check(m.ctx)
	}
}

func broadcast(subs []func(Status), s Status) {
	for _, fn := range subs {
		fn(s)
	}
}
