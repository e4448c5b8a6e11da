package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Poller timings
const (
	DefaultPollInterval = 30 * time.Second
	CloseRefreshDelay   = 500 * time.Millisecond
)

// UnreadSource fetches the viewer's unread summary
type UnreadSource interface {
	UnreadCounts(ctx context.Context) (*UnreadSummary, error)
}

// Notifier surfaces unread counts outside the page, like a desktop
// notification
type Notifier interface {
	// RequestPermission asks once whether notifications may be shown
	RequestPermission(ctx context.Context) bool
	// Notify announces the current total
	Notify(total int64)
}

// PollerConfig configures an UnreadPoller
type PollerConfig struct {
	Source   UnreadSource
	Interval time.Duration
	Notifier Notifier

	// BaseTitle is the page title without an unread prefix
	BaseTitle string
	// OnTitle is called whenever the title changes. OnTitle and OnChange
	// run on the poll goroutine; Stop called from either returns without
	// waiting for the loop to exit.
	OnTitle func(title string)
	// OnChange is called after every successful fetch
	OnChange func(UnreadSnapshot)

	// WaitFor delays the first fetch until it is closed, so the poller does
	// not race the page's own initial load
	WaitFor <-chan struct{}
	// Authenticated stops the poller once it reports false
	Authenticated func() bool

	Logger *slog.Logger
}

// UnreadSnapshot is a copy of the poller state
type UnreadSnapshot struct {
	Counts    map[string]int64
	Total     int64
	FetchedAt time.Time
}

// UnreadPoller keeps an eventually consistent view of the viewer's unread
// counts. It is owned by one view and must be stopped with it.
type UnreadPoller struct {
	cfg    PollerConfig
	logger *slog.Logger

	mu                sync.Mutex
	counts            map[string]int64
	total             int64
	fetchedAt         time.Time
	title             string
	permissionAsked   bool
	permissionGranted bool

	nudge   chan struct{}
	timers  map[*time.Timer]struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// callbacks counts OnTitle and OnChange calls in progress
	callbacks atomic.Int32
}

// NewUnreadPoller creates a stopped poller
func NewUnreadPoller(cfg PollerConfig) *UnreadPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &UnreadPoller{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "unread_poller")),
		counts: make(map[string]int64),
		title:  cfg.BaseTitle,
		nudge:  make(chan struct{}, 1),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Start fetches immediately and then every Interval until Stop, ctx
// cancellation or logout. Starting a running poller does nothing.
func (p *UnreadPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	// A loop that ended on logout leaves its context behind
	if p.cancel != nil {
		p.cancel()
	}

	// Nudges sent while stopped are stale; the loop fetches on start anyway
	select {
	case <-p.nudge:
	default:
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx, p.done)
}

// Stop cancels the loop and any scheduled refresh and waits for the loop
// to exit, unless it runs inside OnTitle or OnChange. It is safe to call
// more than once.
func (p *UnreadPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	for t := range p.timers {
		t.Stop()
		delete(p.timers, t)
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil && p.callbacks.Load() == 0 {
		<-done
	}
}

// Running reports whether the poll loop is active
func (p *UnreadPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Nudge requests an immediate fetch. Nudges that arrive while one is
// pending are coalesced.
func (p *UnreadPoller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// RefreshAfter schedules one extra fetch after delay. Stop cancels it; a
// stopped poller ignores it.
func (p *UnreadPoller) RefreshAfter(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, t)
		p.mu.Unlock()
		p.Nudge()
	})
	p.timers[t] = struct{}{}
}

// Snapshot returns a copy of the current counts
func (p *UnreadPoller) Snapshot() UnreadSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[string]int64, len(p.counts))
	for k, v := range p.counts {
		counts[k] = v
	}
	return UnreadSnapshot{Counts: counts, Total: p.total, FetchedAt: p.fetchedAt}
}

// Count returns the unread count of one paper
func (p *UnreadPoller) Count(paperID string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[paperID]
}

// Title returns the current page title
func (p *UnreadPoller) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *UnreadPoller) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(done)
	}()

	if p.cfg.WaitFor != nil {
		select {
		case <-p.cfg.WaitFor:
		case <-ctx.Done():
			return
		}
	}

	if !p.tick(ctx) {
		return
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.nudge:
		}
		if !p.tick(ctx) {
			return
		}
	}
}

// tick runs one fetch and reports whether polling should continue
func (p *UnreadPoller) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.cfg.Authenticated != nil && !p.cfg.Authenticated() {
		p.logger.Info("viewer logged out, stopping unread polling")
		return false
	}
	_ = p.FetchUnreadCounts(ctx)
	return true
}

// FetchUnreadCounts runs one fetch. On failure the previous state is kept
// and the error is only logged; it is returned for diagnostics.
func (p *UnreadPoller) FetchUnreadCounts(ctx context.Context) error {
	summary, err := p.cfg.Source.UnreadCounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("failed to fetch unread counts", slog.String("error", err.Error()))
		}
		return err
	}

	counts := make(map[string]int64, len(summary.Entries))
	for _, e := range summary.Entries {
		counts[e.PaperID] = e.UnreadCount
	}

	p.mu.Lock()
	p.counts = counts
	p.total = summary.Total
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	p.surface(ctx, summary.Total)

	if p.cfg.OnChange != nil {
		snap := p.Snapshot()
		p.callback(func() { p.cfg.OnChange(snap) })
	}
	return nil
}

// surface updates the title and emits at most one notification per fetch
func (p *UnreadPoller) surface(ctx context.Context, total int64) {
	title := p.cfg.BaseTitle
	if total > 0 {
		title = fmt.Sprintf("(%d) %s", total, p.cfg.BaseTitle)
	}
	p.setTitle(title)

	if total <= 0 || p.cfg.Notifier == nil {
		return
	}

	p.mu.Lock()
	ask := !p.permissionAsked
	p.permissionAsked = true
	p.mu.Unlock()

	if ask {
		granted := p.cfg.Notifier.RequestPermission(ctx)
		p.mu.Lock()
		p.permissionGranted = granted
		p.mu.Unlock()
	}

	p.mu.Lock()
	granted := p.permissionGranted
	p.mu.Unlock()

	if granted {
		p.cfg.Notifier.Notify(total)
	}
}

func (p *UnreadPoller) setTitle(title string) {
	p.mu.Lock()
	changed := p.title != title
	p.title = title
	p.mu.Unlock()

	if changed && p.cfg.OnTitle != nil {
		p.callback(func() { p.cfg.OnTitle(title) })
	}
}

func (p *UnreadPoller) callback(fn func()) {
	p.callbacks.Add(1)
	defer p.callbacks.Add(-1)
	fn()
}
