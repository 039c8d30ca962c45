package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/metric"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"go.uber.org/zap"
)

const Name = "persistence"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshotter is the collector state that survives restarts.
type Snapshotter interface {
	Export() model.CollectorSnapshot
	Import(model.CollectorSnapshot)
}

// Adapter snapshots collector state on a timer and restores it at startup.
// Every read fails open: missing or corrupt data is treated as empty.
type Adapter struct {
	logger   *zap.Logger
	store    Store
	sched    clock.Scheduler
	source   Snapshotter
	validate *validator.Validate

	interval   time.Duration
	keyData    string
	keyView    string
	keyRemotes string
	storeType  string

	mu       sync.Mutex
	ctx      context.Context
	tok      clock.Token
	running  bool
	restored bool
	saved    time.Time
	lastErr  string
}

func NewAdapter(cfg *config.PersistenceConfig, store Store, sched clock.Scheduler, source Snapshotter, logger *zap.Logger) *Adapter {
	return &Adapter{
		logger:     logger,
		store:      store,
		sched:      sched,
		source:     source,
		validate:   validator.New(),
		interval:   cfg.SnapshotInterval,
		keyData:    cfg.KeyPrefix + "_data",
		keyView:    cfg.KeyPrefix + "_view",
		keyRemotes: cfg.KeyPrefix + "_remote_aps",
		storeType:  cfg.Type,
		ctx:        context.Background(),
	}
}

func (a *Adapter) Name() string {
	return Name
}

// Restore loads the last snapshot into the source. It reports whether
// anything was restored; failures are logged, never returned.
func (a *Adapter) Restore(ctx context.Context) bool {
	raw, err := a.store.Get(ctx, a.keyData)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Warn("could not read saved state, starting empty", zap.Error(err))
		}
		return false
	}

	var snap model.CollectorSnapshot
	if err = json.Unmarshal(raw, &snap); err != nil {
		a.logger.Warn("saved state is corrupt, starting empty", zap.Error(err))
		return false
	}
	a.source.Import(snap)

	a.mu.Lock()
	a.restored = true
	a.mu.Unlock()
	a.logger.Info("restored saved state", zap.Time("saved_at", time.UnixMilli(snap.Timestamp)))
	return true
}

// Save writes the current collector state.
func (a *Adapter) Save(ctx context.Context) error {
	raw, err := json.Marshal(a.source.Export())
	if err == nil {
		err = a.store.Set(ctx, a.keyData, raw)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.lastErr = err.Error()
		metric.SnapshotsSaved.WithLabelValues("failed").Inc()
		return fmt.Errorf("save state: %w", err)
	}
	a.lastErr = ""
	a.saved = a.sched.Now()
	metric.SnapshotsSaved.WithLabelValues("ok").Inc()
	return nil
}

func (a *Adapter) SaveView(ctx context.Context, view string) error {
	return a.store.Set(ctx, a.keyView, []byte(view))
}

// LoadView returns the last active view, or "" if none was saved.
func (a *Adapter) LoadView(ctx context.Context) string {
	raw, err := a.store.Get(ctx, a.keyView)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Debug("could not read saved view", zap.Error(err))
		}
		return ""
	}
	return string(raw)
}

// SaveRemoteAPs stores the list, dropping entries without a name or a valid
// IPv4 address. It returns what was kept.
func (a *Adapter) SaveRemoteAPs(ctx context.Context, aps []model.RemoteAP) ([]model.RemoteAP, error) {
	kept := a.validAPs(aps)
	raw, err := json.Marshal(kept)
	if err != nil {
		return nil, err
	}
	if err = a.store.Set(ctx, a.keyRemotes, raw); err != nil {
		return nil, fmt.Errorf("save remote aps: %w", err)
	}
	return kept, nil
}

func (a *Adapter) LoadRemoteAPs(ctx context.Context) []model.RemoteAP {
	raw, err := a.store.Get(ctx, a.keyRemotes)
	if err != nil {
		return []model.RemoteAP{}
	}
	var aps []model.RemoteAP
	if err = json.Unmarshal(raw, &aps); err != nil {
		a.logger.Debug("saved remote aps are corrupt", zap.Error(err))
		return []model.RemoteAP{}
	}
	return a.validAPs(aps)
}

func (a *Adapter) validAPs(aps []model.RemoteAP) []model.RemoteAP {
	kept := make([]model.RemoteAP, 0, len(aps))
	for _, ap := range aps {
		if err := a.validate.Struct(ap); err != nil {
			a.logger.Debug("dropping remote ap", zap.String("name", ap.Name), zap.String("ip", ap.IP), zap.Error(err))
			continue
		}
		kept = append(kept, ap)
	}
	return kept
}

// Start saves a snapshot every interval.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return errors.New("persistence already running")
	}
	a.ctx = ctx
	a.running = true
	a.tok = a.sched.Every(a.interval, a.saveTick)
	a.logger.Info("Persistence started...", zap.String("store", a.storeType), zap.Duration("interval", a.interval))
	return nil
}

func (a *Adapter) saveTick() {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if err := a.Save(ctx); err != nil {
		a.logger.Warn("periodic save failed", zap.Error(err))
	}
}

// Stop writes a final snapshot and closes the store.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	wasRunning := a.running
	a.running = false
	if a.tok != 0 {
		a.sched.Cancel(a.tok)
		a.tok = 0
	}
	a.mu.Unlock()

	var err error
	if wasRunning {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = a.Save(shCtx)
	}
	return errors.Join(err, a.store.Close())
}

func (a *Adapter) Stats() *model.StoreStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &model.StoreStats{
		Type:      a.storeType,
		LastSaved: a.saved,
		Restored:  a.restored,
		LastError: a.lastErr,
	}
}

// UpdateStats sets the persistence state
func (a *Adapter) UpdateStats(stats *model.DashboardStats) error {
	s := a.Stats()
	if !s.LastSaved.IsZero() {
		metric.ComponentHealthLastChecked.WithLabelValues(Name).Set(float64(s.LastSaved.Unix()))
	}
	stats.Store = s
	return nil
}
