package model

import "time"

// Sample is one latency probe result. A nil Value is a failed probe, never a zero reading.
type Sample struct {
	Timestamp int64    `json:"time"`
	Value     *float64 `json:"value"`
}

func SuccessSample(ts time.Time, latencyMs float64) Sample {
	return Sample{Timestamp: ts.UnixMilli(), Value: &latencyMs}
}

func FailedSample(ts time.Time) Sample {
	return Sample{Timestamp: ts.UnixMilli()}
}

func (s Sample) Failed() bool { return s.Value == nil }

// ThroughputSample holds rates in bytes per second
type ThroughputSample struct {
	Timestamp int64   `json:"time"`
	Rx        float64 `json:"rx"`
	Tx        float64 `json:"tx"`
}

// Level is the health classification of a ping target
type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelDegraded Level = "degraded"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// TargetView is the display state of one ping target
type TargetView struct {
	Key        string   `json:"key"`
	Host       string   `json:"host,omitempty"`
	Configured bool     `json:"configured"`
	Level      Level    `json:"level"`
	Label      string   `json:"label"`
	LatencyMs  *float64 `json:"latency_ms,omitempty"`
	Stale      bool     `json:"stale"`
	LossPct    float64  `json:"loss_pct"`
	Sent       uint64   `json:"sent"`
	Received   uint64   `json:"received"`
	History    []Sample `json:"history"`
}

// TelemetrySnapshot is everything the collector shows
type TelemetrySnapshot struct {
	LastCollected time.Time                     `json:"last_collected"`
	Targets       []TargetView                  `json:"targets"`
	Throughput    []ThroughputSample            `json:"throughput"`
	Interfaces    map[string][]ThroughputSample `json:"interfaces"`
	WANInterfaces []string                      `json:"wan_interfaces"`
}

// PingCounts are cumulative probe counters
type PingCounts struct {
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
}

// CollectorSnapshot is the persisted form of collector state
type CollectorSnapshot struct {
	PingHistory         map[string][]Sample           `json:"pingHistory"`
	PingStats           map[string]PingCounts         `json:"pingStats"`
	Throughput          []ThroughputSample            `json:"throughputHistory"`
	InterfaceThroughput map[string][]ThroughputSample `json:"ifaceThroughputHistory,omitempty"`
	PingTargets         map[string]string             `json:"pingTargets"`
	Timestamp           int64                         `json:"timestamp"`
}
