// Package reconcile drives WAN policy changes from an operator intent to
// backend confirmation. The engine moves Idle -> Submitting -> Polling -> Idle
// and owns every policy timer it arms.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/metric"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/madebyjamstudios/jammonitor/internal/policy"
	"go.uber.org/zap"
)

const Name = "policy"

// ErrBypassActive rejects policy intents while traffic bypasses the VPS.
var ErrBypassActive = errors.New("vps bypass is active")

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Backend is the slice of the admin API the engine needs.
type Backend interface {
	WANPolicy(ctx context.Context) ([]model.WANInterface, error)
	SubmitPolicy(ctx context.Context, a model.PolicyAssignment) error
	Bypass(ctx context.Context) (model.BypassStatus, error)
	SetBypass(ctx context.Context, enable bool) (model.BypassStatus, error)
}

type Engine struct {
	logger  *zap.Logger
	sched   clock.Scheduler
	backend Backend
	store   *policy.Store

	pollInterval    time.Duration
	window          time.Duration
	settleDelay     time.Duration
	refreshInterval time.Duration

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	running    bool
	state      State
	generation uint64
	expiresAt  time.Time
	dragging   bool
	visible    bool

	// closeOnAccept is set when the view closes during a submission; an
	// accepted result then skips polling.
	closeOnAccept bool

	pollTok, expiryTok, settleTok clock.Token
	refreshTok, bypassTok         clock.Token

	bypass        *model.BypassStatus
	lastRefreshed time.Time
	loadErr       string
	submitErr     string
}

func NewEngine(cfg *config.PolicyConfig, sched clock.Scheduler, backend Backend, logger *zap.Logger) *Engine {
	return &Engine{
		logger:          logger,
		sched:           sched,
		backend:         backend,
		store:           policy.NewStore(),
		pollInterval:    cfg.PollInterval,
		window:          cfg.Window,
		settleDelay:     cfg.SettleDelay,
		refreshInterval: cfg.RefreshInterval,
		ctx:             context.Background(),
	}
}

func (e *Engine) Name() string {
	return Name
}

func (e *Engine) Store() *policy.Store {
	return e.store
}

// Start sets the context timer-driven fetches run under. Timers are armed by
// intents and by the policy view becoming visible.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("policy engine already running")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true
	e.logger.Info("Policy engine started...")
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	e.generation++
	e.finishLocked()
	e.cancelTokenLocked(&e.refreshTok)
	e.cancelTokenLocked(&e.bypassTok)
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.logger.Info("Policy engine stopped")
	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Intent moves name to category. The store is updated optimistically and the
// full assignment is submitted. A later intent supersedes this one: its result
// is then ignored. Only submission failures are returned; the local change is
// rolled back before returning, even if the view closed meanwhile.
func (e *Engine) Intent(ctx context.Context, name string, category model.Category) error {
	if !e.store.Loaded() {
		if err := e.initialLoad(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	if e.bypass != nil && e.bypass.Enabled {
		e.mu.Unlock()
		return ErrBypassActive
	}
	assignment, err := e.store.ApplyIntent(name, category, e.sched.Now())
	if errors.Is(err, policy.ErrNoChange) {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.generation++
	gen := e.generation
	e.finishLocked()
	e.state = StateSubmitting
	e.submitErr = ""
	e.closeOnAccept = false
	e.mu.Unlock()

	logger := e.logger.With(zap.String("submission", uuid.NewString()))
	logger.Info("submitting wan policy",
		zap.String("interface", name),
		zap.String("category", category.Label()),
		zap.Strings("order", assignment.Order))
	err = e.backend.SubmitPolicy(ctx, assignment)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		logger.Debug("submission superseded")
		metric.PolicySubmissions.WithLabelValues("superseded").Inc()
		return nil
	}
	if err != nil {
		e.store.Rollback()
		e.closeOnAccept = false
		e.state = StateIdle
		e.submitErr = err.Error()
		bg := e.ctx
		e.mu.Unlock()

		metric.PolicySubmissions.WithLabelValues("failed").Inc()
		logger.Warn("wan policy submission failed, reverted", zap.Error(err))
		if rerr := e.Refresh(bg); rerr != nil {
			logger.Debug("reload after failed submission", zap.Error(rerr))
		}
		return fmt.Errorf("submit wan policy: %w", err)
	}

	metric.PolicySubmissions.WithLabelValues("ok").Inc()
	if e.closeOnAccept {
		e.closeOnAccept = false
		n := e.store.ExpirePending()
		e.finishLocked()
		e.mu.Unlock()
		logger.Info("wan policy accepted, view closed so not polling", zap.Int("unconfirmed", n))
		return nil
	}
	e.state = StatePolling
	e.expiresAt = e.sched.Now().Add(e.window)
	e.pollTok = e.sched.Every(e.pollInterval, func() { e.poll(gen) })
	e.expiryTok = e.sched.After(e.window, func() { e.expire(gen) })
	e.settleTok = e.sched.After(e.settleDelay, func() { e.poll(gen) })
	e.mu.Unlock()

	logger.Info("wan policy accepted, polling for convergence", zap.Duration("window", e.window))
	return nil
}

func (e *Engine) initialLoad(ctx context.Context) error {
	list, err := e.fetch(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.HasPending() {
		e.store.MergeAuthoritative(list)
	}
	return nil
}

// poll is one convergence fetch for submission gen.
func (e *Engine) poll(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.state != StatePolling {
		e.mu.Unlock()
		return
	}
	if !e.sched.Now().Before(e.expiresAt) {
		e.expireLocked()
		e.mu.Unlock()
		return
	}
	if e.dragging {
		e.mu.Unlock()
		return
	}
	ctx := e.ctx
	e.mu.Unlock()

	list, err := e.fetch(ctx)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation || e.state != StatePolling || e.dragging {
		return
	}
	if e.store.MergeAuthoritative(list) == 0 {
		e.logger.Info("wan policy converged")
		e.finishLocked()
	}
}

func (e *Engine) expire(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.generation && e.state == StatePolling {
		e.expireLocked()
	}
}

func (e *Engine) expireLocked() {
	n := e.store.ExpirePending()
	e.logger.Info("reconciliation window expired", zap.Int("unconfirmed", n))
	e.finishLocked()
}

// finishLocked cancels the convergence timers and returns to Idle.
func (e *Engine) finishLocked() {
	e.cancelTokenLocked(&e.pollTok)
	e.cancelTokenLocked(&e.expiryTok)
	e.cancelTokenLocked(&e.settleTok)
	e.state = StateIdle
	e.expiresAt = time.Time{}
}

func (e *Engine) cancelTokenLocked(tok *clock.Token) {
	if *tok != 0 {
		e.sched.Cancel(*tok)
		*tok = 0
	}
}

// fetch loads bypass state and the authoritative list. Bypass failures are
// only logged; a policy failure is kept for display and returned.
func (e *Engine) fetch(ctx context.Context) ([]model.WANInterface, error) {
	status, berr := e.backend.Bypass(ctx)
	list, err := e.backend.WANPolicy(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if berr != nil {
		e.logger.Debug("bypass status unavailable", zap.Error(berr))
	} else {
		e.bypass = &status
	}
	if err != nil {
		e.loadErr = err.Error()
		e.logger.Warn("failed to load wan policy", zap.Error(err))
		return nil, fmt.Errorf("load wan policy: %w", err)
	}
	e.loadErr = ""
	e.lastRefreshed = e.sched.Now()
	return list, nil
}

// Refresh is the background reload. It is skipped during a drag gesture,
// outside Idle and while anything is pending.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	allowed := e.refreshAllowedLocked()
	e.mu.Unlock()
	if !allowed {
		return nil
	}

	list, err := e.fetch(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.refreshAllowedLocked() {
		e.logger.Debug("discarding refresh, policy changed while loading")
		return nil
	}
	e.store.MergeAuthoritative(list)
	return nil
}

func (e *Engine) refreshAllowedLocked() bool {
	return !e.dragging && e.state == StateIdle && !e.store.HasPending()
}

func (e *Engine) refreshTick() {
	e.mu.Lock()
	visible, ctx := e.visible, e.ctx
	e.mu.Unlock()
	if !visible {
		return
	}
	if err := e.Refresh(ctx); err != nil {
		e.logger.Debug("policy refresh failed", zap.Error(err))
	}
}

// SetDragging marks a drag gesture in progress. While set, neither refreshes
// nor convergence polls touch the store.
func (e *Engine) SetDragging(dragging bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dragging = dragging
}

// SetViewVisible starts the view refresh timer when the policy view opens.
// Leaving the view stops every policy timer; unconfirmed changes keep their
// local category. A submission in flight still completes and rolls back on
// failure.
func (e *Engine) SetViewVisible(visible bool) {
	e.mu.Lock()
	if e.visible == visible {
		e.mu.Unlock()
		return
	}
	e.visible = visible

	if !visible {
		e.cancelTokenLocked(&e.refreshTok)
		switch e.state {
		case StateSubmitting:
			e.closeOnAccept = true
		case StatePolling:
			n := e.store.ExpirePending()
			e.logger.Info("policy view closed, stopped polling", zap.Int("unconfirmed", n))
			e.finishLocked()
		}
		e.mu.Unlock()
		return
	}

	e.closeOnAccept = false

	e.refreshTok = e.sched.Every(e.refreshInterval, e.refreshTick)
	e.mu.Unlock()
	e.refreshTick()
}

// ToggleBypass posts the bypass state and reloads the policy once the router
// has settled.
func (e *Engine) ToggleBypass(ctx context.Context, enable bool) (model.BypassStatus, error) {
	status, err := e.backend.SetBypass(ctx, enable)
	if err != nil {
		return model.BypassStatus{}, fmt.Errorf("toggle bypass: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.bypass = &status
	e.cancelTokenLocked(&e.bypassTok)
	e.bypassTok = e.sched.After(e.settleDelay, func() {
		e.mu.Lock()
		e.bypassTok = 0
		ctx := e.ctx
		e.mu.Unlock()
		if err := e.Refresh(ctx); err != nil {
			e.logger.Debug("policy reload after bypass toggle failed", zap.Error(err))
		}
	})
	e.logger.Info("vps bypass toggled", zap.Bool("enabled", status.Enabled), zap.String("active_wan", status.ActiveWAN))
	return status, nil
}

// Snapshot is the display state of the policy view.
func (e *Engine) Snapshot() *model.PolicySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &model.PolicySnapshot{
		State:         e.state.String(),
		Groups:        e.store.Groups(),
		Visible:       e.visible,
		Dragging:      e.dragging,
		LastRefreshed: e.lastRefreshed,
		LoadError:     e.loadErr,
		SubmitError:   e.submitErr,
	}
	if e.state == StatePolling {
		at := e.expiresAt
		snap.WindowExpiresAt = &at
	}
	if e.bypass != nil {
		b := *e.bypass
		snap.Bypass = &b
	}
	return snap
}

// UpdateStats sets the latest policy snapshot
func (e *Engine) UpdateStats(stats *model.DashboardStats) error {
	snap := e.Snapshot()
	pending := 0
	for _, g := range snap.Groups {
		for _, row := range g.Interfaces {
			metric.PolicyCategory.WithLabelValues(row.Name).Set(metric.CategoryToFloat(row.Category))
			if row.Pending {
				pending++
			}
		}
	}
	metric.PolicyPending.Set(float64(pending))
	metric.ComponentHealthLastChecked.WithLabelValues(Name).Set(float64(snap.LastRefreshed.Unix()))
	stats.Policy = snap
	return nil
}
