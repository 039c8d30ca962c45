package telemetry

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/metric"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/madebyjamstudios/jammonitor/internal/ringbuf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const Name = "telemetry"

const (
	TargetInet   = "inet"
	TargetVPS    = "vps"
	TargetTunnel = "tunnel"
)

// TargetKeys is the display order of ping targets
var TargetKeys = []string{TargetInet, TargetVPS, TargetTunnel}

// maxRateGap bounds the interval a rate is computed over; longer gaps are a
// clock jump or missed ticks and only refresh the baseline.
const maxRateGap = 60 * time.Second

// PingTarget is one probed host with its retained window and lifetime counters.
type PingTarget struct {
	Key      string
	Host     string
	History  *ringbuf.Buffer[model.Sample]
	Sent     uint64
	Received uint64
}

// CounterState is the last cumulative byte counters seen on an interface.
type CounterState struct {
	Rx uint64
	Tx uint64
	At time.Time
}

// CollectorState is everything the collector mutates. It is owned by one
// Collector and guarded by its lock.
type CollectorState struct {
	Targets       map[string]*PingTarget
	Counters      map[string]*CounterState
	Aggregate     *ringbuf.Buffer[model.ThroughputSample]
	Interfaces    map[string]*ringbuf.Buffer[model.ThroughputSample]
	LastCollected time.Time
	historySize   int
}

// NewState creates empty state with one target per key.
func NewState(historySize int, hosts config.PingTargets) *CollectorState {
	s := &CollectorState{
		Targets:     make(map[string]*PingTarget, len(TargetKeys)),
		Counters:    make(map[string]*CounterState),
		Aggregate:   ringbuf.New[model.ThroughputSample](historySize),
		Interfaces:  make(map[string]*ringbuf.Buffer[model.ThroughputSample]),
		historySize: historySize,
	}
	initial := map[string]string{TargetInet: hosts.Inet, TargetVPS: hosts.VPS, TargetTunnel: hosts.Tunnel}
	for _, key := range TargetKeys {
		s.Targets[key] = &PingTarget{Key: key, Host: initial[key], History: ringbuf.New[model.Sample](historySize)}
	}
	return s
}

func (s *CollectorState) interfaceBuffer(name string) *ringbuf.Buffer[model.ThroughputSample] {
	buf, ok := s.Interfaces[name]
	if !ok {
		buf = ringbuf.New[model.ThroughputSample](s.historySize)
		s.Interfaces[name] = buf
	}
	return buf
}

// Collector probes ping targets and samples interface counters on its own timers.
type Collector struct {
	logger    *zap.Logger
	sched     clock.Scheduler
	prober    Prober
	counters  CounterSource
	endpoints EndpointSource

	wan               *regexp.Regexp
	ignore            *regexp.Regexp
	collectInterval   time.Duration
	discoveryInterval time.Duration

	mu      sync.RWMutex
	state   *CollectorState
	wg      sync.WaitGroup
	tokens  []clock.Token
	running bool
	cancel  context.CancelFunc
}

// NewCollector wires a collector. endpoints may be nil when targets are static.
func NewCollector(cfg *config.TelemetryConfig, sched clock.Scheduler, prober Prober, counters CounterSource, endpoints EndpointSource, logger *zap.Logger) (*Collector, error) {
	wan, err := regexp.Compile(cfg.WANPattern)
	if err != nil {
		return nil, fmt.Errorf("wan pattern: %w", err)
	}
	ignore, err := regexp.Compile(cfg.IgnorePattern)
	if err != nil {
		return nil, fmt.Errorf("ignore pattern: %w", err)
	}
	return &Collector{
		logger:            logger,
		sched:             sched,
		prober:            prober,
		counters:          counters,
		endpoints:         endpoints,
		wan:               wan,
		ignore:            ignore,
		collectInterval:   cfg.CollectInterval,
		discoveryInterval: cfg.DiscoveryInterval,
		state:             NewState(cfg.HistorySize, cfg.PingTargets),
	}, nil
}

func (c *Collector) Name() string {
	return Name
}

// Start runs collection every collect interval and endpoint discovery every
// discovery interval. Each round runs on its own goroutine so a hung request
// never delays the next tick.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("collector already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.launchLocked(ctx, c.collectRound)
	c.tokens = append(c.tokens, c.sched.Every(c.collectInterval, func() { c.launch(ctx, c.collectRound) }))
	if c.endpoints != nil {
		c.launchLocked(ctx, c.discoverRound)
		if c.discoveryInterval > 0 {
			c.tokens = append(c.tokens, c.sched.Every(c.discoveryInterval, func() { c.launch(ctx, c.discoverRound) }))
		}
	}

	c.logger.Info("Telemetry collection started...", zap.Duration("interval", c.collectInterval))
	return nil
}

func (c *Collector) launch(ctx context.Context, fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launchLocked(ctx, fn)
}

func (c *Collector) launchLocked(ctx context.Context, fn func(context.Context)) {
	if !c.running {
		return
	}
	c.wg.Go(func() { fn(ctx) })
}

func (c *Collector) collectRound(ctx context.Context) {
	if err := c.Collect(ctx); err != nil {
		c.logger.Debug("collection round incomplete", zap.Error(err))
	}
}

func (c *Collector) discoverRound(ctx context.Context) {
	if err := c.DiscoverEndpoints(ctx); err != nil {
		c.logger.Debug("endpoint discovery failed", zap.Error(err))
	}
}

// Collect probes every configured target and samples throughput once.
// Failures are recorded as data, the returned error is for diagnostics only.
func (c *Collector) Collect(ctx context.Context) error {
	var g errgroup.Group
	for _, key := range TargetKeys {
		g.Go(func() error {
			c.ProbeTarget(ctx, key)
			return nil
		})
	}
	g.Go(func() error {
		return c.SampleThroughput(ctx)
	})
	return g.Wait()
}

// ProbeTarget sends one probe to the target's host. Targets without a host are
// skipped and not counted. Sent is counted whatever the outcome.
func (c *Collector) ProbeTarget(ctx context.Context, key string) {
	c.mu.Lock()
	target, ok := c.state.Targets[key]
	if !ok || target.Host == "" {
		c.mu.Unlock()
		return
	}
	target.Sent++
	host := target.Host
	c.mu.Unlock()

	latency, err := c.prober.Probe(ctx, host)
	if ctx.Err() != nil {
		return // shutting down
	}
	now := c.sched.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		target.History.Push(model.FailedSample(now))
		c.logger.Debug("probe failed", zap.String("target", key), zap.String("host", host), zap.Error(err))
		return
	}
	target.Received++
	target.History.Push(model.SuccessSample(now, latency))
}

// SampleThroughput reads counters once. A failed read skips this tick and
// leaves every baseline untouched.
func (c *Collector) SampleThroughput(ctx context.Context) error {
	stats, err := c.counters.Counters(ctx)
	if err != nil {
		c.logger.Debug("counter read failed", zap.Error(err))
		return fmt.Errorf("read counters: %w", err)
	}
	c.RecordCounters(c.sched.Now(), stats)
	return nil
}

// RecordCounters turns cumulative counters into rates. The first reading of an
// interface only sets its baseline. Gaps outside (0, 60s] refresh the baseline
// without a rate, and counter resets clamp to zero. The aggregate sums WAN
// interfaces only and is appended on every call.
func (c *Collector) RecordCounters(now time.Time, stats map[string]*model.NetworkStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalRx, totalTx float64
	for name, st := range stats {
		if st == nil || c.ignore.MatchString(name) {
			continue
		}
		prev := c.state.Counters[name]
		c.state.Counters[name] = &CounterState{Rx: st.RxBytes, Tx: st.TxBytes, At: now}
		if prev == nil {
			continue
		}

		dt := now.Sub(prev.At)
		if dt <= 0 || dt > maxRateGap {
			c.logger.Debug("discarding rate over unusable interval", zap.String("interface", name), zap.Duration("gap", dt))
			continue
		}
		secs := dt.Seconds()
		rx := rate(prev.Rx, st.RxBytes, secs)
		tx := rate(prev.Tx, st.TxBytes, secs)

		c.state.interfaceBuffer(name).Push(model.ThroughputSample{Timestamp: now.UnixMilli(), Rx: rx, Tx: tx})
		if c.wan.MatchString(name) {
			totalRx += rx
			totalTx += tx
		}
	}

	c.state.Aggregate.Push(model.ThroughputSample{Timestamp: now.UnixMilli(), Rx: totalRx, Tx: totalTx})
	c.state.LastCollected = now
}

func rate(prev, cur uint64, secs float64) float64 {
	if cur < prev {
		return 0 // counter reset
	}
	return float64(cur-prev) / secs
}

// IsWAN reports whether name is classified as an internet uplink.
func (c *Collector) IsWAN(name string) bool {
	return c.wan.MatchString(name)
}

// SetHost points a target at a new host. Existing history is kept.
func (c *Collector) SetHost(key, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.state.Targets[key]; ok && t.Host != host {
		c.logger.Info("ping target changed", zap.String("target", key), zap.String("from", t.Host), zap.String("to", host))
		t.Host = host
	}
}

// DiscoverEndpoints updates the vps and tunnel hosts. Empty results keep the
// previous host.
func (c *Collector) DiscoverEndpoints(ctx context.Context) error {
	if c.endpoints == nil {
		return nil
	}
	ep, err := c.endpoints.Endpoints(ctx)
	if ep.VPS != "" {
		c.SetHost(TargetVPS, ep.VPS)
	}
	if ep.Tunnel != "" {
		c.SetHost(TargetTunnel, ep.Tunnel)
	}
	return err
}

// Snapshot computes the display state of every target and series.
func (c *Collector) Snapshot() *model.TelemetrySnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &model.TelemetrySnapshot{
		LastCollected: c.state.LastCollected,
		Targets:       make([]model.TargetView, 0, len(TargetKeys)),
		Throughput:    c.state.Aggregate.Values(),
		Interfaces:    make(map[string][]model.ThroughputSample, len(c.state.Interfaces)),
	}
	for _, key := range TargetKeys {
		t := c.state.Targets[key]
		window := t.History.Values()
		a := Assess(window)
		snap.Targets = append(snap.Targets, model.TargetView{
			Key:        key,
			Host:       t.Host,
			Configured: t.Host != "",
			Level:      a.Level,
			Label:      a.Label,
			LatencyMs:  a.LatencyMs,
			Stale:      a.Stale,
			LossPct:    a.LossPct,
			Sent:       t.Sent,
			Received:   t.Received,
			History:    window,
		})
	}
	for name, buf := range c.state.Interfaces {
		snap.Interfaces[name] = buf.Values()
	}
	for name := range c.state.Counters {
		if c.wan.MatchString(name) {
			snap.WANInterfaces = append(snap.WANInterfaces, name)
		}
	}
	slices.Sort(snap.WANInterfaces)
	return snap
}

// Export returns the persisted form of the collector state.
func (c *Collector) Export() model.CollectorSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := model.CollectorSnapshot{
		PingHistory:         make(map[string][]model.Sample, len(TargetKeys)),
		PingStats:           make(map[string]model.PingCounts, len(TargetKeys)),
		PingTargets:         make(map[string]string, len(TargetKeys)),
		Throughput:          c.state.Aggregate.Values(),
		InterfaceThroughput: make(map[string][]model.ThroughputSample, len(c.state.Interfaces)),
		Timestamp:           c.sched.Now().UnixMilli(),
	}
	for key, t := range c.state.Targets {
		snap.PingHistory[key] = t.History.Values()
		snap.PingStats[key] = model.PingCounts{Sent: t.Sent, Received: t.Received}
		snap.PingTargets[key] = t.Host
	}
	for name, buf := range c.state.Interfaces {
		snap.InterfaceThroughput[name] = buf.Values()
	}
	return snap
}

// Import restores persisted state. Unknown targets are ignored, oversized
// histories keep their newest entries, and the inet host always comes from
// config. Counter baselines are not persisted, so the first tick after a
// restart only sets them.
func (c *Collector) Import(snap model.CollectorSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, t := range c.state.Targets {
		if hist, ok := snap.PingHistory[key]; ok {
			t.History.Reset(hist)
		}
		if st, ok := snap.PingStats[key]; ok {
			t.Sent, t.Received = st.Sent, st.Received
			if t.Received > t.Sent {
				t.Sent = t.Received
			}
		}
		if host := snap.PingTargets[key]; host != "" && key != TargetInet {
			t.Host = host
		}
	}
	if snap.Throughput != nil {
		c.state.Aggregate.Reset(snap.Throughput)
	}
	for name, series := range snap.InterfaceThroughput {
		c.state.interfaceBuffer(name).Reset(series)
	}
}

// UpdateStats sets the latest telemetry snapshot
func (c *Collector) UpdateStats(stats *model.DashboardStats) error {
	s := c.Snapshot()
	for _, t := range s.Targets {
		if !t.Configured {
			continue
		}
		metric.PingLoss.WithLabelValues(t.Key).Set(t.LossPct)
		metric.PingStatus.WithLabelValues(t.Key).Set(metric.LevelToFloat(t.Level))
		if t.LatencyMs != nil {
			metric.PingLatency.WithLabelValues(t.Key).Set(*t.LatencyMs)
		}
	}
	for name, series := range s.Interfaces {
		if n := len(series); n > 0 {
			metric.Throughput.WithLabelValues(name, "rx").Set(series[n-1].Rx)
			metric.Throughput.WithLabelValues(name, "tx").Set(series[n-1].Tx)
		}
	}
	metric.ComponentHealthLastChecked.WithLabelValues(Name).Set(float64(s.LastCollected.Unix()))
	stats.Telemetry = s
	return nil
}

// Stop stops the timers and waits for in-flight rounds.
func (c *Collector) Stop() error {
	c.mu.Lock()
	c.running = false
	tokens := c.tokens
	c.tokens = nil
	cancel := c.cancel
	c.mu.Unlock()

	for _, tok := range tokens {
		c.sched.Cancel(tok)
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.logger.Info("Telemetry collector stopped")
	return nil
}
