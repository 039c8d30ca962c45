package netlink

import (
	"context"
	"fmt"
	"net"

	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const Name = "netlink"

// Discoverer finds ping targets from local links when running on the router itself.
type Discoverer struct {
	logger    *zap.Logger
	tunnelDev string
	vps       string
}

// NewDiscoverer creates a discoverer. vps is passed through unchanged since it
// cannot be derived from local links.
func NewDiscoverer(tunnelDev, vps string, logger *zap.Logger) *Discoverer {
	return &Discoverer{logger: logger, tunnelDev: tunnelDev, vps: vps}
}

// Endpoints resolves the tunnel target as .1 of the tunnel device's IPv4 subnet.
func (d *Discoverer) Endpoints(_ context.Context) (model.Endpoints, error) {
	ep := model.Endpoints{VPS: d.vps}
	if d.tunnelDev == "" {
		return ep, nil
	}

	link, err := netlink.LinkByName(d.tunnelDev)
	if err != nil {
		return ep, fmt.Errorf("tunnel link %s: %w", d.tunnelDev, err)
	}
	addrs, err := netlink.AddrList(link, unix.AF_INET)
	if err != nil {
		return ep, fmt.Errorf("tunnel addresses %s: %w", d.tunnelDev, err)
	}
	for _, a := range addrs {
		if gw := firstHost(a.IPNet); gw != "" {
			ep.Tunnel = gw
			break
		}
	}
	if ep.Tunnel == "" {
		d.logger.Warn("tunnel device has no IPv4 address", zap.String("link_name", d.tunnelDev))
	}
	return ep, nil
}

// firstHost returns the .1 host of an IPv4 network
func firstHost(n *net.IPNet) string {
	if n == nil {
		return ""
	}
	ip4 := n.IP.To4()
	if ip4 == nil {
		return ""
	}
	gw := make(net.IP, len(ip4))
	copy(gw, ip4)
	gw[3] = 1
	return gw.String()
}
