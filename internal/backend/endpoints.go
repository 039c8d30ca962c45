package backend

import (
	"errors"
	"strings"

	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/tidwall/gjson"
)

// ParseEndpoints reads ping targets out of a vpn_status document. The VPS is the
// WireGuard endpoint or, failing that, the configured VPS address. The tunnel
// target is the tunnel gateway, then its peer, then .1 of the tunnel address.
func ParseEndpoints(raw []byte) (model.Endpoints, error) {
	if !gjson.ValidBytes(raw) {
		return model.Endpoints{}, errors.New("vpn_status: invalid json")
	}
	doc := gjson.ParseBytes(raw)

	var ep model.Endpoints
	if v := doc.Get("wireguard.endpoint").String(); v != "" {
		ep.VPS = v
	} else if v := doc.Get("vps.ip").String(); v != "" {
		ep.VPS = v
	}

	tunnel := doc.Get("tunnel")
	switch {
	case tunnel.Get("gateway").String() != "":
		ep.Tunnel = tunnel.Get("gateway").String()
	case tunnel.Get("peer").String() != "":
		ep.Tunnel = tunnel.Get("peer").String()
	case tunnel.Get("ip").String() != "":
		ep.Tunnel = GatewayOf(tunnel.Get("ip").String())
	}
	return ep, nil
}

// GatewayOf returns the .1 host of an IPv4 address ("10.255.255.2/30" -> "10.255.255.1").
func GatewayOf(addr string) string {
	addr, _, _ = strings.Cut(addr, "/")
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return ""
	}
	parts[3] = "1"
	return strings.Join(parts, ".")
}
