package connectivity

import (
	"context"
	"errors"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

const Name = "connectivity"

// ErrNoReply means the probe was sent but nothing came back before the timeout.
var ErrNoReply = errors.New("no echo reply")

// ICMPProber sends one ICMP echo per probe from this host.
type ICMPProber struct {
	logger     *zap.Logger
	timeout    time.Duration
	privileged bool
}

// NewICMPProber creates a prober. Privileged mode needs CAP_NET_RAW.
func NewICMPProber(timeout time.Duration, privileged bool, logger *zap.Logger) *ICMPProber {
	return &ICMPProber{logger: logger, timeout: timeout, privileged: privileged}
}

// Probe returns the round trip time in milliseconds.
func (p *ICMPProber) Probe(ctx context.Context, host string) (float64, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		// bad target
		return 0, fmt.Errorf("failed to create pinger for %s: %w", host, err)
	}

	pinger.SetPrivileged(p.privileged)
	pinger.Count = 1
	pinger.Timeout = p.timeout

	if err = pinger.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("failed to run pinger for %s: %w", host, err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, ErrNoReply
	}

	rtt := stats.AvgRtt
	p.logger.Debug("icmp probe", zap.String("target", host), zap.Duration("rtt", rtt))
	return float64(rtt) / float64(time.Millisecond), nil
}
