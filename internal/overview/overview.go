// Package overview tracks router health shown on the overview page.
package overview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/metric"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const Name = "overview"

// SystemSource returns load, memory and cumulative cpu counters.
type SystemSource interface {
	SystemStats(ctx context.Context) (model.SystemStats, error)
}

// UplinkSource reports the public address and multipath state. Only the
// backend provides it.
type UplinkSource interface {
	PublicIP(ctx context.Context) (model.PublicIPReply, error)
	MPTCPStatus(ctx context.Context) (model.MPTCPStatus, error)
}

type cpuSample struct {
	busy, idle uint64
}

type Overview struct {
	logger   *zap.Logger
	sched    clock.Scheduler
	system   SystemSource
	uplink   UplinkSource
	interval time.Duration

	mu      sync.Mutex
	ctx     context.Context
	snap    model.SystemSnapshot
	lastCPU *cpuSample
	visible bool
	running bool
	tok     clock.Token
}

// NewOverview creates the component. uplink may be nil.
func NewOverview(interval time.Duration, sched clock.Scheduler, system SystemSource, uplink UplinkSource, logger *zap.Logger) *Overview {
	return &Overview{
		logger:   logger,
		sched:    sched,
		system:   system,
		uplink:   uplink,
		interval: interval,
		ctx:      context.Background(),
	}
}

func (o *Overview) Name() string {
	return Name
}

func (o *Overview) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("overview already running")
	}
	o.ctx = ctx
	o.running = true
	return nil
}

func (o *Overview) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	if o.tok != 0 {
		o.sched.Cancel(o.tok)
		o.tok = 0
	}
	return nil
}

// SetVisible refreshes on every interval while the overview is shown.
func (o *Overview) SetVisible(visible bool) {
	o.mu.Lock()
	if o.visible == visible {
		o.mu.Unlock()
		return
	}
	o.visible = visible
	if !visible {
		if o.tok != 0 {
			o.sched.Cancel(o.tok)
			o.tok = 0
		}
		o.mu.Unlock()
		return
	}
	o.tok = o.sched.Every(o.interval, o.refreshTick)
	o.mu.Unlock()
	o.refreshTick()
}

func (o *Overview) refreshTick() {
	o.mu.Lock()
	ctx, visible := o.ctx, o.visible
	o.mu.Unlock()
	if !visible {
		return
	}
	if err := o.Refresh(ctx); err != nil {
		o.logger.Debug("overview refresh incomplete", zap.Error(err))
	}
}

// Refresh queries every source concurrently. A failing source leaves its
// fields at the last good value.
func (o *Overview) Refresh(ctx context.Context) error {
	var (
		g      errgroup.Group
		stats  model.SystemStats
		pub    model.PublicIPReply
		mptcp  model.MPTCPStatus
		sysErr error
		pubErr error
		mpErr  error
	)
	g.Go(func() error {
		stats, sysErr = o.system.SystemStats(ctx)
		return sysErr
	})
	if o.uplink != nil {
		g.Go(func() error {
			pub, pubErr = o.uplink.PublicIP(ctx)
			return pubErr
		})
		g.Go(func() error {
			mptcp, mpErr = o.uplink.MPTCPStatus(ctx)
			return mpErr
		})
	}
	err := g.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.sched.Now()

	if sysErr != nil {
		o.snap.LoadError = sysErr.Error()
	} else {
		o.applySystemLocked(stats)
		o.snap.LoadError = ""
		o.snap.LastChecked = now
	}
	if o.uplink != nil {
		if pubErr == nil {
			o.snap.PublicIP = ""
			if pub.Success {
				o.snap.PublicIP = pub.IP
			}
		}
		if mpErr == nil {
			m := mptcp
			o.snap.MPTCP = &m
		}
	}
	if err != nil {
		return fmt.Errorf("refresh overview: %w", err)
	}
	return nil
}

func (o *Overview) applySystemLocked(s model.SystemStats) {
	o.snap.Load = s.Load
	o.snap.TempC = s.Temp
	o.snap.RAMPercent = s.RAMPct
	o.snap.ConntrackCount = s.ConntrackCount
	o.snap.ConntrackMax = s.ConntrackMax
	o.snap.UptimeSecs = s.UptimeSecs

	if s.CPUBusy == nil || s.CPUIdle == nil {
		return
	}
	cur := &cpuSample{busy: *s.CPUBusy, idle: *s.CPUIdle}
	prev := o.lastCPU
	o.lastCPU = cur
	if prev == nil || cur.busy < prev.busy || cur.idle < prev.idle {
		return // first sample or counters reset
	}
	busy := cur.busy - prev.busy
	total := busy + cur.idle - prev.idle
	if total == 0 {
		return
	}
	pct := float64(busy) / float64(total) * 100
	o.snap.CPUPercent = &pct
}

func (o *Overview) Snapshot() *model.SystemSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.snap
	if o.snap.Load != nil {
		s.Load = append([]float64(nil), o.snap.Load...)
	}
	return &s
}

// UpdateStats sets the latest system snapshot
func (o *Overview) UpdateStats(stats *model.DashboardStats) error {
	s := o.Snapshot()
	metric.SystemRAMPercent.Set(s.RAMPercent)
	metric.SystemUptime.Set(float64(s.UptimeSecs))
	if s.CPUPercent != nil {
		metric.SystemCPUPercent.Set(*s.CPUPercent)
	}
	if !s.LastChecked.IsZero() {
		metric.ComponentHealthLastChecked.WithLabelValues(Name).Set(float64(s.LastChecked.Unix()))
	}
	stats.System = s
	return nil
}
