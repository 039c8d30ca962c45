package metric

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "jammonitor"

// LevelToFloat is helper function to map a ping level to a float64 for Prometheus
func LevelToFloat(level model.Level) float64 {
	switch level {
	case model.LevelHealthy:
		return 10.0
	case model.LevelDegraded:
		return 7.0
	case model.LevelWarning:
		return 5.0
	case model.LevelCritical:
		return 1.0
	default:
		return 0.0
	}
}

// CategoryToFloat maps a policy category to its rank, Primary being 0.
func CategoryToFloat(c model.Category) float64 {
	return float64(c.Rank())
}

var (
	PingLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ping_latency_ms",
		Help:      "Latest successful round trip per ping target.",
	},
		[]string{"target"},
	)

	PingLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ping_loss_percent",
		Help:      "Failed share of the retained probe window per ping target.",
	},
		[]string{"target"},
	)

	PingStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ping_status",
		Help:      "Ping target health (10=healthy, 7=degraded, 5=warning, 1=critical).",
	},
		[]string{"target"},
	)

	Throughput = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "interface_throughput_bytes_per_second",
		Help:      "Latest computed rate per interface and direction.",
	},
		[]string{"interface", "direction"},
	)

	PolicyCategory = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wan_policy_category",
		Help:      "Displayed category per uplink (0=primary, 1=bonded, 2=standby, 3=disabled).",
	},
		[]string{"interface"},
	)

	PolicyPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wan_policy_pending",
		Help:      "Number of uplinks with an unconfirmed local change.",
	})

	PolicySubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wan_policy_submissions_total",
		Help:      "Policy submissions by outcome.",
	},
		[]string{"outcome"},
	)

	SystemRAMPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_ram_percent",
		Help:      "Router memory usage.",
	})

	SystemCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_cpu_percent",
		Help:      "Router CPU usage since the previous sample.",
	})

	SystemUptime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "system_uptime_seconds",
		Help:      "Current router uptime in seconds.",
	})

	SnapshotsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_saved_total",
		Help:      "Persisted snapshots by outcome.",
	},
		[]string{"outcome"},
	)

	ComponentHealthLastChecked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "component_last_updated_seconds",
		Help:      "Timestamp of the last completed update for a specific component.",
	},
		[]string{"component"},
	)
)

type Exporter struct {
	logger *zap.Logger
	srv    *http.Server
	cancel context.CancelFunc
	cfg    *config.PrometheusServerConfig
}

func NewExporter(cfg *config.PrometheusServerConfig, logger *zap.Logger) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Exporter{cfg: cfg, srv: srv, logger: logger}
}

func (e *Exporter) Name() string {
	return "exporter"
}

// Start blocks until ctx is done or the listener fails.
func (e *Exporter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("Prometheus exporter listening", zap.String("addr", e.srv.Addr))
		if err := e.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		e.logger.Info("stopping prometheus server")
		// graceful shutdown
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.srv.Shutdown(shCtx)
	case err := <-errCh:
		e.logger.Error("prometheus server failed", zap.Error(err))
		return err
	}
}

func (e *Exporter) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}
