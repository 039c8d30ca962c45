package backend

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&config.BackendConfig{BaseURL: srv.URL + "/jm/", Timeout: 5 * time.Second})
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jm/ping", r.URL.Path)
		require.Equal(t, "1.1.1.1", r.URL.Query().Get("host"))
		_, _ = io.WriteString(w, `{"success":true,"latency":12.5}`)
	})

	reply, err := c.Ping(t.Context(), "1.1.1.1")
	require.NoError(t, err)
	require.True(t, reply.Success)
	require.Equal(t, 12.5, reply.Latency)
}

func TestNetworkInfoStripsParents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"interfaces":["lan1","eth0.2@eth0","lan1","","tun0"],"netdev":"x"}`)
	})

	info, err := c.NetworkInfo(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"lan1", "eth0.2", "tun0"}, info.Interfaces)
	require.Equal(t, "x", info.Netdev)
}

func TestWANPolicyDefaultsMissingMode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"interfaces":[{"name":"wan1","multipath":"master","up":true},{"name":"wan2"}]}`)
	})

	ifaces, err := c.WANPolicy(t.Context())
	require.NoError(t, err)
	require.Len(t, ifaces, 2)
	require.Equal(t, model.CategoryPrimary, ifaces[0].Multipath)
	require.True(t, ifaces[0].Up)
	require.Equal(t, model.CategoryDisabled, ifaces[1].Multipath)
}

func TestSubmitPolicy(t *testing.T) {
	var got model.PolicyAssignment
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Modes["wan2"] == model.CategoryPrimary {
			_, _ = io.WriteString(w, `{"success":false,"error":"uci commit failed"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	ok := model.PolicyAssignment{Order: []string{"wan1", "wan2"}, Modes: map[string]model.Category{"wan1": "master", "wan2": "on"}}
	require.NoError(t, c.SubmitPolicy(t.Context(), ok))
	require.Equal(t, ok, got)

	bad := model.PolicyAssignment{Order: []string{"wan2"}, Modes: map[string]model.Category{"wan2": "master"}}
	err := c.SubmitPolicy(t.Context(), bad)
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorContains(t, err, "uci commit failed")
}

func TestHTTPErrorCarriesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	})

	_, err := c.SystemStats(t.Context())
	require.ErrorContains(t, err, "403")
	require.ErrorContains(t, err, "permission denied")
}

func TestSlowBackendWaitsWithoutTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = io.WriteString(w, `{"success":true,"latency":80}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(&config.BackendConfig{BaseURL: srv.URL})
	reply, err := c.Ping(t.Context(), "1.1.1.1")
	require.NoError(t, err)
	require.True(t, reply.Success)

	c = NewClient(&config.BackendConfig{BaseURL: srv.URL, Timeout: 10 * time.Millisecond})
	_, err = c.Ping(t.Context(), "1.1.1.1")
	require.Error(t, err)
}

func TestSetBypass(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.True(t, body["enable"])
		_, _ = io.WriteString(w, `{"success":true,"bypass_enabled":true,"active_wan":"wan1"}`)
	})

	st, err := c.SetBypass(t.Context(), true)
	require.NoError(t, err)
	require.True(t, st.Enabled)
	require.Equal(t, "wan1", st.ActiveWAN)
}

func TestParseEndpoints(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want model.Endpoints
	}{
		{"wireguard", `{"wireguard":{"endpoint":"203.0.113.9"},"vps":{"ip":"198.51.100.1"},"tunnel":{"gateway":"10.255.255.1"}}`,
			model.Endpoints{VPS: "203.0.113.9", Tunnel: "10.255.255.1"}},
		{"vps and peer", `{"vps":{"ip":"198.51.100.1"},"tunnel":{"peer":"10.0.0.5"}}`,
			model.Endpoints{VPS: "198.51.100.1", Tunnel: "10.0.0.5"}},
		{"tunnel address fallback", `{"tunnel":{"ip":"10.255.255.2"}}`,
			model.Endpoints{Tunnel: "10.255.255.1"}},
		{"nothing", `{}`, model.Endpoints{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ep, err := ParseEndpoints([]byte(tc.doc))
			require.NoError(t, err)
			require.Equal(t, tc.want, ep)
		})
	}

	_, err := ParseEndpoints([]byte("{"))
	require.Error(t, err)
}

func TestGatewayOf(t *testing.T) {
	require.Equal(t, "10.255.255.1", GatewayOf("10.255.255.2/30"))
	require.Equal(t, "", GatewayOf("fe80::1"))
}
