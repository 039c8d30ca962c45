package monitor

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const netdevFixture = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 5000 50 0 0 0 0 0 0 5000 50 0 0 0 0 0 0
  lan1: 1000 10 0 0 0 0 0 0 2000 20 0 0 0 0 0 0
  lan2: 3000 30 0 0 0 0 0 0 4000 40 0 0 0 0 0 0
`

// router is a fake admin backend that applies policy posts immediately.
type router struct {
	mu        sync.Mutex
	modes     map[string]model.Category
	submitted int
}

func newRouter() *router {
	return &router{modes: map[string]model.Category{"lan1": model.CategoryPrimary, "lan2": model.CategoryBonded}}
}

func (rt *router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		_, _ = io.WriteString(w, `{"success":true,"latency":12.5}`)
	case "/network_info":
		_ = json.NewEncoder(w).Encode(model.NetworkInfo{Interfaces: []string{"lan1", "lan2"}, Netdev: netdevFixture})
	case "/vpn_status":
		_, _ = io.WriteString(w, `{"wireguard":{"endpoint":"203.0.113.7"},"tunnel":{"ip":"10.255.255.2/30"}}`)
	case "/system_stats":
		_, _ = io.WriteString(w, `{"load":[0.1,0.2,0.3],"ram_pct":41.5,"uptime_secs":100}`)
	case "/public_ip":
		_, _ = io.WriteString(w, `{"success":true,"ip":"198.51.100.4"}`)
	case "/mptcp_status":
		_, _ = io.WriteString(w, `{"endpoint_count":2,"connections":3}`)
	case "/bypass":
		_, _ = io.WriteString(w, `{"bypass_enabled":false}`)
	case "/wan_policy":
		if r.Method == http.MethodPost {
			var a model.PolicyAssignment
			if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rt.modes = a.Modes
			rt.submitted++
			_, _ = io.WriteString(w, `{"success":true}`)
			return
		}
		var p model.WANPolicy
		for _, name := range []string{"lan1", "lan2"} {
			p.Interfaces = append(p.Interfaces, model.WANInterface{Name: name, Multipath: rt.modes[name], Up: true})
		}
		_ = json.NewEncoder(w).Encode(p)
	default:
		http.NotFound(w, r)
	}
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.NewConfig("testing")
	cfg.Logger = zap.NewNop()
	cfg.Components = &config.ComponentsConfig{Telemetry: true, Policy: true, Overview: true}
	cfg.Backend = &config.BackendConfig{BaseURL: baseURL, Timeout: 5 * time.Second}
	cfg.Telemetry = &config.TelemetryConfig{
		Source:            config.SourceBackend,
		CollectInterval:   3 * time.Second,
		DiscoveryInterval: time.Minute,
		HistorySize:       60,
		PingTargets:       config.PingTargets{Inet: "1.1.1.1"},
		WANPattern:        `^lan[0-9]+$`,
		IgnorePattern:     `^lo$`,
	}
	cfg.Policy = &config.PolicyConfig{
		PollInterval:    5 * time.Second,
		Window:          2 * time.Minute,
		SettleDelay:     2 * time.Second,
		RefreshInterval: 5 * time.Second,
	}
	cfg.Persistence = &config.PersistenceConfig{Type: config.StoreMemory, KeyPrefix: "jammonitor", SnapshotInterval: 10 * time.Second}
	cfg.DisplayInterval = 5 * time.Second
	cfg.InitialView = ViewPolicy
	return cfg
}

func TestDashboardEndToEnd(t *testing.T) {
	rt := newRouter()
	srv := httptest.NewServer(rt)
	defer srv.Close()

	v := clock.NewVirtual(epoch)
	d, err := NewDashboard(testConfig(t, srv.URL), v, Options{})
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))

	require.Equal(t, ViewPolicy, d.View())
	stats := d.GetStats()
	require.NotNil(t, stats.Policy)
	require.True(t, stats.Policy.Visible)
	require.Equal(t, model.CategoryPrimary, stats.Policy.Groups[0].Category)
	require.Equal(t, "lan1", stats.Policy.Groups[0].Interfaces[0].Name)

	// collection rounds run on their own goroutines
	assert.Eventually(t, func() bool {
		d.updateStats()
		s := d.GetStats()
		if s.Telemetry == nil {
			return false
		}
		inet := s.Telemetry.Targets[0]
		return len(inet.History) > 0 && s.Telemetry.Targets[1].Host == "203.0.113.7"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Intent(t.Context(), "lan2", model.CategoryPrimary))
	stats = d.GetStats()
	require.Equal(t, "polling", stats.Policy.State)
	require.Equal(t, 1, rt.submitted)

	v.Advance(2 * time.Second)
	d.updateStats()
	stats = d.GetStats()
	require.Equal(t, "idle", stats.Policy.State)
	primary := stats.Policy.Groups[0]
	require.Len(t, primary.Interfaces, 1)
	require.Equal(t, "lan2", primary.Interfaces[0].Name)
	require.False(t, primary.Interfaces[0].Pending)

	require.NoError(t, d.SwitchView(t.Context(), ViewOverview))
	stats = d.GetStats()
	require.False(t, stats.Policy.Visible)
	require.Equal(t, 41.5, stats.System.RAMPercent)
	require.Equal(t, "198.51.100.4", stats.System.PublicIP)

	require.ErrorIs(t, d.SwitchView(t.Context(), "clients"), ErrUnknownView)
	require.Equal(t, ViewOverview, d.View())

	require.NoError(t, d.Stop())
	require.Zero(t, v.Active())
}

func TestDashboardRestoresAcrossRestart(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.InitialView = ViewOverview
	cfg.Persistence = &config.PersistenceConfig{
		Type:             config.StoreBadger,
		Path:             t.TempDir(),
		KeyPrefix:        "jammonitor",
		SnapshotInterval: 10 * time.Second,
	}

	v := clock.NewVirtual(epoch)
	d, err := NewDashboard(cfg, v, Options{})
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))
	require.False(t, d.GetStats().Store.Restored)
	require.NoError(t, d.SwitchView(t.Context(), ViewPolicy))
	_, err = d.SaveRemoteAPs(t.Context(), []model.RemoteAP{{Name: "AP-1", IP: "10.0.0.2"}})
	require.NoError(t, err)
	require.NoError(t, d.Stop())

	d, err = NewDashboard(cfg, clock.NewVirtual(epoch), Options{})
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))
	defer d.Stop()

	require.Equal(t, ViewPolicy, d.View())
	require.True(t, d.GetStats().Store.Restored)
	require.Equal(t, []model.RemoteAP{{Name: "AP-1", IP: "10.0.0.2"}}, d.RemoteAPs(t.Context()))
}

func TestDisabledPolicy(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Components.Policy = false
	cfg.Components.Telemetry = false

	var out bytes.Buffer
	v := clock.NewVirtual(epoch)
	d, err := NewDashboard(cfg, v, Options{Output: &out})
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))

	v.Advance(5 * time.Second)
	require.Contains(t, out.String(), `"view": "policy"`)

	require.ErrorIs(t, d.Intent(t.Context(), "lan1", model.CategoryStandby), ErrComponentDisabled)
	_, err = d.ToggleBypass(t.Context(), true)
	require.ErrorIs(t, err, ErrComponentDisabled)
	_, err = d.SaveRemoteAPs(t.Context(), nil)
	require.ErrorIs(t, err, ErrComponentDisabled)
	require.Empty(t, d.RemoteAPs(t.Context()))
	require.Nil(t, d.GetStats().Policy)

	_, err = d.GetMonitor("overview")
	require.NoError(t, err)
	require.NoError(t, d.Stop())
	require.Zero(t, v.Active())
}
