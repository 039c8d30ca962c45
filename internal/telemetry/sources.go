package telemetry

import (
	"context"
	"errors"

	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/madebyjamstudios/jammonitor/internal/netdev"
	"go.uber.org/zap"
)

// ErrProbeFailed is a probe that got an answer but no latency.
var ErrProbeFailed = errors.New("probe failed")

// Prober sends one latency probe and returns the round trip in milliseconds.
type Prober interface {
	Probe(ctx context.Context, host string) (float64, error)
}

// CounterSource reads cumulative byte counters for every interface.
type CounterSource interface {
	Counters(ctx context.Context) (map[string]*model.NetworkStats, error)
}

// EndpointSource discovers the vps and tunnel targets.
type EndpointSource interface {
	Endpoints(ctx context.Context) (model.Endpoints, error)
}

// Backend is the slice of the admin API the collector needs.
type Backend interface {
	Ping(ctx context.Context, host string) (model.PingReply, error)
	NetworkInfo(ctx context.Context) (model.NetworkInfo, error)
	Endpoints(ctx context.Context) (model.Endpoints, error)
}

// BackendProber probes through the router's ping endpoint.
type BackendProber struct {
	Backend Backend
}

func (p BackendProber) Probe(ctx context.Context, host string) (float64, error) {
	reply, err := p.Backend.Ping(ctx, host)
	if err != nil {
		return 0, err
	}
	if !reply.Success || reply.Latency <= 0 {
		return 0, ErrProbeFailed
	}
	return reply.Latency, nil
}

// BackendCounters parses the netdev blob of network_info.
type BackendCounters struct {
	Backend Backend
	Logger  *zap.Logger
}

func (s BackendCounters) Counters(ctx context.Context) (map[string]*model.NetworkStats, error) {
	info, err := s.Backend.NetworkInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info.Netdev == "" {
		return nil, errors.New("network_info: empty netdev")
	}
	stats, bad, err := netdev.ParseString(info.Netdev)
	if err != nil {
		return nil, err
	}
	for _, le := range bad {
		s.Logger.Debug("skipping malformed netdev row", zap.String("interface", le.Interface), zap.Error(le.Err))
	}
	return stats, nil
}
