package netlink

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFirstHost(t *testing.T) {
	_, n, err := net.ParseCIDR("10.255.255.2/30")
	require.NoError(t, err)
	n.IP = net.ParseIP("10.255.255.2")
	require.Equal(t, "10.255.255.1", firstHost(n))

	_, v6, err := net.ParseCIDR("fd00::2/64")
	require.NoError(t, err)
	require.Equal(t, "", firstHost(v6))
	require.Equal(t, "", firstHost(nil))
}

func TestEndpointsWithoutTunnel(t *testing.T) {
	d := NewDiscoverer("", "203.0.113.7", zap.NewNop())
	ep, err := d.Endpoints(t.Context())
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", ep.VPS)
	require.Empty(t, ep.Tunnel)
}

func TestEndpointsMissingLink(t *testing.T) {
	d := NewDiscoverer("jm-missing0", "", zap.NewNop())
	_, err := d.Endpoints(t.Context())
	require.Error(t, err)
}
