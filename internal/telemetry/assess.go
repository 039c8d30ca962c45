package telemetry

import (
	"strconv"

	"github.com/madebyjamstudios/jammonitor/internal/model"
)

const (
	healthyLatencyMs  = 50
	healthyLossPct    = 5
	degradedLatencyMs = 150
	degradedLossPct   = 20

	labelTimeout = "timeout"
)

// Assessment is the classification of one target's retained window.
type Assessment struct {
	Level     model.Level
	Label     string
	LatencyMs *float64
	Stale     bool
	LossPct   float64
}

// LossPercent is the share of failed samples in the retained window, not the
// all-time counters, so loss recovers as old failures age out.
func LossPercent(window []model.Sample) float64 {
	if len(window) == 0 {
		return 0
	}
	failed := 0
	for _, s := range window {
		if s.Failed() {
			failed++
		}
	}
	return float64(failed) / float64(len(window)) * 100
}

// Assess classifies a chronological window. Rules apply in order:
// two trailing failures are critical, one trailing failure is a warning that
// shows the last good latency as stale, otherwise the latest latency and the
// window loss pick healthy, degraded or critical.
func Assess(window []model.Sample) Assessment {
	a := Assessment{LossPct: LossPercent(window), Level: model.LevelCritical, Label: labelTimeout}

	latest := lastSuccess(window)
	if latest != nil {
		v := *latest
		a.LatencyMs = &v
	}

	n := len(window)
	switch {
	case n >= 2 && window[n-1].Failed() && window[n-2].Failed():
		a.LatencyMs = nil
	case n >= 1 && window[n-1].Failed():
		a.Level = model.LevelWarning
		if latest != nil {
			a.Stale = true
			a.Label = formatLatency(*latest) + "*"
		}
	case latest != nil:
		a.Label = formatLatency(*latest)
		switch v := *latest; {
		case v < healthyLatencyMs && a.LossPct < healthyLossPct:
			a.Level = model.LevelHealthy
		case v < degradedLatencyMs && a.LossPct < degradedLossPct:
			a.Level = model.LevelDegraded
		}
	}
	return a
}

func lastSuccess(window []model.Sample) *float64 {
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].Failed() {
			return window[i].Value
		}
	}
	return nil
}

func formatLatency(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
