package model

// PingReply is the ping endpoint response
type PingReply struct {
	Success bool    `json:"success"`
	Latency float64 `json:"latency,omitempty"`
}

// NetworkInfo carries the interface list and raw text blobs from network_info
type NetworkInfo struct {
	Interfaces []string `json:"interfaces"`
	Netdev     string   `json:"netdev"`
	Routes     string   `json:"routes,omitempty"`
	Wireless   string   `json:"wireless,omitempty"`
}

// Endpoints are ping targets discovered from VPN status
type Endpoints struct {
	VPS    string
	Tunnel string
}

// SystemStats is the system_stats response
type SystemStats struct {
	Load           []float64 `json:"load"`
	CPUBusy        *uint64   `json:"cpu_busy,omitempty"`
	CPUIdle        *uint64   `json:"cpu_idle,omitempty"`
	Temp           *float64  `json:"temp,omitempty"`
	RAMPct         float64   `json:"ram_pct"`
	ConntrackCount uint64    `json:"conntrack_count,omitempty"`
	ConntrackMax   uint64    `json:"conntrack_max,omitempty"`
	UptimeSecs     uint64    `json:"uptime_secs,omitempty"`
	Date           string    `json:"date,omitempty"`
}

// PublicIPReply is the public_ip response
type PublicIPReply struct {
	Success bool   `json:"success"`
	IP      string `json:"ip,omitempty"`
}

// MPTCPStatus is the mptcp_status response
type MPTCPStatus struct {
	EndpointCount int    `json:"endpoint_count"`
	Connections   int    `json:"connections"`
	Interfaces    string `json:"interfaces,omitempty"`
}
