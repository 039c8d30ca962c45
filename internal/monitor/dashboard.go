package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/madebyjamstudios/jammonitor/internal/backend"
	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/connectivity"
	"github.com/madebyjamstudios/jammonitor/internal/metric"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/madebyjamstudios/jammonitor/internal/netlink"
	"github.com/madebyjamstudios/jammonitor/internal/overview"
	"github.com/madebyjamstudios/jammonitor/internal/persist"
	"github.com/madebyjamstudios/jammonitor/internal/proc"
	"github.com/madebyjamstudios/jammonitor/internal/reconcile"
	"github.com/madebyjamstudios/jammonitor/internal/telemetry"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrUnknownView       = errors.New("unknown view")
	ErrComponentDisabled = errors.New("component disabled")
)

// Options overrides how the dashboard reaches the outside world.
type Options struct {
	// Privileged sends raw ICMP in local mode; otherwise UDP ping sockets are used.
	Privileged bool
	// Output receives the periodic stats dump. Nil means stdout, unless the
	// version is "testing".
	Output io.Writer
}

// Dashboard wires every component and runs the display loop.
type Dashboard struct {
	logger *zap.Logger
	sched  clock.Scheduler
	out    io.Writer

	components []Monitor // start order
	engine     *reconcile.Engine
	overview   *overview.Overview
	persist    *persist.Adapter
	exporter   *metric.Exporter

	displayInterval time.Duration
	initialView     string

	wg         sync.WaitGroup
	mu         sync.RWMutex
	stats      model.DashboardStats
	view       string
	displayTok clock.Token

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDashboard(cfg *config.Config, sched clock.Scheduler, opts Options) (*Dashboard, error) {
	logger := cfg.Logger
	client := backend.NewClient(cfg.Backend)

	var (
		prober    telemetry.Prober
		counters  telemetry.CounterSource
		endpoints telemetry.EndpointSource
		system    overview.SystemSource
		uplink    overview.UplinkSource
	)
	if cfg.Telemetry.Source == config.SourceLocal {
		reader := proc.NewReader(cfg.Telemetry, logger)
		prober = connectivity.NewICMPProber(cfg.Telemetry.PingTimeout, opts.Privileged, logger)
		counters = reader
		endpoints = netlink.NewDiscoverer(cfg.Telemetry.TunnelInterface, cfg.Telemetry.PingTargets.VPS, logger)
		system = reader
	} else {
		prober = telemetry.BackendProber{Backend: client}
		counters = telemetry.BackendCounters{Backend: client, Logger: logger}
		endpoints = client
		system = client
		uplink = client
	}

	d := &Dashboard{
		logger:          logger,
		sched:           sched,
		out:             opts.Output,
		displayInterval: cfg.DisplayInterval,
		initialView:     cfg.InitialView,
	}
	if d.out == nil && cfg.Version != "testing" {
		d.out = os.Stdout
	}

	if cfg.Components.Telemetry {
		c, err := telemetry.NewCollector(cfg.Telemetry, sched, prober, counters, endpoints, logger)
		if err != nil {
			return nil, err
		}
		store, err := persist.New(cfg.Persistence)
		if err != nil {
			return nil, fmt.Errorf("persistence: %w", err)
		}
		// first in, last out: the final save on stop runs after collection ended
		d.persist = persist.NewAdapter(cfg.Persistence, store, sched, c, logger)
		d.components = append(d.components, d.persist, c)
	}
	if cfg.Components.Policy {
		d.engine = reconcile.NewEngine(cfg.Policy, sched, client, logger)
		d.components = append(d.components, d.engine)
	}
	if cfg.Components.Overview {
		d.overview = overview.NewOverview(cfg.DisplayInterval, sched, system, uplink, logger)
		d.components = append(d.components, d.overview)
	}
	if cfg.Components.Exporter {
		d.exporter = metric.NewExporter(cfg.PrometheusServer, logger)
	}
	return d, nil
}

func (d *Dashboard) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.logger.Info("Starting dashboard...")

	if d.persist != nil {
		d.persist.Restore(d.ctx)
	}

	for _, mon := range d.components {
		if err := mon.Start(d.ctx); err != nil {
			d.Stop() // stop/close/wait all resources
			return fmt.Errorf("failed to start %s: %w", mon.Name(), err)
		}
	}

	view := d.initialView
	if d.persist != nil {
		if saved := d.persist.LoadView(d.ctx); saved != "" {
			view = saved
		}
	}
	if err := d.SwitchView(d.ctx, view); err != nil {
		d.logger.Warn("bad initial view, falling back", zap.String("view", view), zap.Error(err))
		_ = d.SwitchView(d.ctx, ViewOverview)
	}

	d.mu.Lock()
	d.displayTok = d.sched.Every(d.displayInterval, d.display)
	d.mu.Unlock()
	d.updateStats()

	if d.exporter != nil {
		d.wg.Go(func() { _ = d.exporter.Start(d.ctx) })
	}
	return nil
}

func (d *Dashboard) Stop() error {
	d.logger.Info("Stopping dashboard...")
	d.mu.Lock()
	if d.displayTok != 0 {
		d.sched.Cancel(d.displayTok)
		d.displayTok = 0
	}
	d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}

	var err error
	for i := len(d.components) - 1; i >= 0; i-- {
		mon := d.components[i]
		if errIn := mon.Stop(); errIn != nil {
			d.logger.Error("component couldn't be stopped", zap.Error(errIn), zap.String("component", mon.Name()))
			err = errors.Join(err, errIn)
		}
	}

	if d.exporter != nil {
		_ = d.exporter.Stop()
	}
	d.wg.Wait()
	d.logger.Info("Dashboard stopped", zap.Bool("isFailed", err != nil))
	return err
}

func (d *Dashboard) display() {
	d.updateStats()
	d.printStats()
}

func (d *Dashboard) updateStats() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Timestamp = d.sched.Now()
	d.stats.View = d.view
	for _, mon := range d.components {
		if err := mon.UpdateStats(&d.stats); err != nil {
			d.logger.Error("component update failed", zap.Error(err), zap.String("component", mon.Name()))
		}
	}
}

func (d *Dashboard) printStats() {
	if d.out == nil {
		return
	}
	data, err := json.Marshal(d.GetStats())
	if err != nil {
		d.logger.Error("Error marshaling stats", zap.Error(err))
		return
	}
	if _, err = d.out.Write(pretty.Pretty(data)); err != nil {
		d.logger.Debug("stats output failed", zap.Error(err))
	}
}

// GetStats returns the snapshot of the last display tick.
func (d *Dashboard) GetStats() model.DashboardStats {
	d.mu.RLock()
	s := d.stats
	d.mu.RUnlock()
	return s
}

func (d *Dashboard) View() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// SwitchView makes view the visible one. Only the visible view refreshes on
// its own timer.
func (d *Dashboard) SwitchView(ctx context.Context, view string) error {
	if view != ViewOverview && view != ViewPolicy {
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}

	d.mu.Lock()
	d.view = view
	d.stats.View = view
	d.mu.Unlock()

	if d.engine != nil {
		d.engine.SetViewVisible(view == ViewPolicy)
	}
	if d.overview != nil {
		d.overview.SetVisible(view == ViewOverview)
	}
	if d.persist != nil {
		if err := d.persist.SaveView(ctx, view); err != nil {
			d.logger.Warn("could not save view", zap.String("view", view), zap.Error(err))
		}
	}
	d.updateStats()
	return nil
}

func (d *Dashboard) Intent(ctx context.Context, name string, category model.Category) error {
	if d.engine == nil {
		return fmt.Errorf("%s: %w", reconcile.Name, ErrComponentDisabled)
	}
	err := d.engine.Intent(ctx, name, category)
	d.updateStats()
	return err
}

func (d *Dashboard) SetDragging(dragging bool) {
	if d.engine != nil {
		d.engine.SetDragging(dragging)
	}
}

func (d *Dashboard) RefreshPolicy(ctx context.Context) error {
	if d.engine == nil {
		return fmt.Errorf("%s: %w", reconcile.Name, ErrComponentDisabled)
	}
	err := d.engine.Refresh(ctx)
	d.updateStats()
	return err
}

func (d *Dashboard) ToggleBypass(ctx context.Context, enable bool) (model.BypassStatus, error) {
	if d.engine == nil {
		return model.BypassStatus{}, fmt.Errorf("%s: %w", reconcile.Name, ErrComponentDisabled)
	}
	status, err := d.engine.ToggleBypass(ctx, enable)
	d.updateStats()
	return status, err
}

func (d *Dashboard) RemoteAPs(ctx context.Context) []model.RemoteAP {
	if d.persist == nil {
		return []model.RemoteAP{}
	}
	return d.persist.LoadRemoteAPs(ctx)
}

func (d *Dashboard) SaveRemoteAPs(ctx context.Context, aps []model.RemoteAP) ([]model.RemoteAP, error) {
	if d.persist == nil {
		return nil, fmt.Errorf("%s: %w", persist.Name, ErrComponentDisabled)
	}
	return d.persist.SaveRemoteAPs(ctx, aps)
}

func (d *Dashboard) GetMonitor(name string) (Monitor, error) {
	for _, mon := range d.components {
		if mon.Name() == name {
			return mon, nil
		}
	}
	return nil, errors.New("monitor not found")
}
