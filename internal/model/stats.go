package model

import (
	"time"
)

// DashboardStats is the display snapshot handed to the presentation layer
type DashboardStats struct {
	Timestamp time.Time          `json:"timestamp"`
	View      string             `json:"view"`
	Telemetry *TelemetrySnapshot `json:"telemetry,omitempty"`
	Policy    *PolicySnapshot    `json:"policy,omitempty"`
	System    *SystemSnapshot    `json:"system,omitempty"`
	Store     *StoreStats        `json:"store,omitempty"`
}

// NetworkStats represents one interface row of /proc/net/dev
type NetworkStats struct {
	Interface string `json:"interface"`
	RxBytes   uint64 `json:"rx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	RxErrors  uint64 `json:"rx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxBytes   uint64 `json:"tx_bytes"`
	TxPackets uint64 `json:"tx_packets"`
	TxErrors  uint64 `json:"tx_errors"`
	TxDropped uint64 `json:"tx_dropped"`
}

// SystemSnapshot is the router overview derived from system_stats
type SystemSnapshot struct {
	LastChecked    time.Time    `json:"last_checked"`
	Load           []float64    `json:"load,omitempty"`
	CPUPercent     *float64     `json:"cpu_percent,omitempty"`
	TempC          *float64     `json:"temp_c,omitempty"`
	RAMPercent     float64      `json:"ram_percent"`
	ConntrackCount uint64       `json:"conntrack_count,omitempty"`
	ConntrackMax   uint64       `json:"conntrack_max,omitempty"`
	UptimeSecs     uint64       `json:"uptime_secs,omitempty"`
	PublicIP       string       `json:"public_ip,omitempty"`
	MPTCP          *MPTCPStatus `json:"mptcp,omitempty"`
	LoadError      string       `json:"load_error,omitempty"`
}

// StoreStats describes the persistence layer
type StoreStats struct {
	Type      string    `json:"type"`
	LastSaved time.Time `json:"last_saved"`
	Restored  bool      `json:"restored"`
	LastError string    `json:"last_error,omitempty"`
}

// RemoteAP is an operator-configured access point outside the router
type RemoteAP struct {
	Name string `json:"name" validate:"required"`
	IP   string `json:"ip" validate:"required,ipv4"`
}
