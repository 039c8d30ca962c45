package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/madebyjamstudios/jammonitor/internal/netdev"
	"go.uber.org/zap"
)

const Name = "proc"

// Reader reads counters and system load from the local proc filesystem.
// Files are opened per call, so a missing file only fails that read.
type Reader struct {
	netdevPath  string
	meminfoPath string
	loadavgPath string
	statPath    string
	uptimePath  string
	logger      *zap.Logger
}

// MemoryStats represents memory information from /proc/meminfo, in bytes
type MemoryStats struct {
	MemTotal     uint64
	MemFree      uint64
	MemAvailable uint64
	Buffers      uint64
	Cached       uint64
}

// NewReader creates a new proc filesystem reader
func NewReader(cfg *config.TelemetryConfig, logger *zap.Logger) *Reader {
	return &Reader{
		netdevPath:  cfg.NetdevPath,
		meminfoPath: cfg.MeminfoPath,
		loadavgPath: cfg.LoadavgPath,
		statPath:    cfg.StatPath,
		uptimePath:  cfg.UptimePath,
		logger:      logger,
	}
}

// Counters reads and parses /proc/net/dev. Malformed rows are logged and skipped.
func (r *Reader) Counters(_ context.Context) (map[string]*model.NetworkStats, error) {
	f, err := os.Open(r.netdevPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open net/dev at %s: %w", r.netdevPath, err)
	}
	defer f.Close()

	stats, bad, err := netdev.Parse(f)
	if err != nil {
		return nil, err
	}
	for _, le := range bad {
		r.logger.Debug("skipping malformed net/dev row", zap.String("interface", le.Interface), zap.Error(le.Err))
	}
	return stats, nil
}

// GetMemoryStats reads and parses /proc/meminfo
func (r *Reader) GetMemoryStats() (*MemoryStats, error) {
	f, err := os.Open(r.meminfoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open meminfo at %s: %w", r.meminfoPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanLines)

	stats := &MemoryStats{}
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		switch parts[0] {
		case "MemTotal:":
			stats.MemTotal, _ = parseMemoryValue(parts[1])
		case "MemFree:":
			stats.MemFree, _ = parseMemoryValue(parts[1])
		case "MemAvailable:":
			stats.MemAvailable, _ = parseMemoryValue(parts[1])
		case "Buffers:":
			stats.Buffers, _ = parseMemoryValue(parts[1])
		case "Cached:":
			stats.Cached, _ = parseMemoryValue(parts[1])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetLoadStats reads /proc/loadavg and returns the 1, 5 and 15 minute averages
func (r *Reader) GetLoadStats() ([]float64, error) {
	data, err := os.ReadFile(r.loadavgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read loadavg at %s: %w", r.loadavgPath, err)
	}
	parts := strings.Fields(string(data))
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid loadavg format: %q", strings.TrimSpace(string(data)))
	}

	load := make([]float64, 3)
	for i := range load {
		load[i], err = strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return nil, err
		}
	}
	return load, nil
}

// GetCPUStats returns cumulative busy and idle jiffies from the aggregate cpu
// line of /proc/stat. iowait counts as idle.
func (r *Reader) GetCPUStats() (busy, idle uint64, err error) {
	f, err := os.Open(r.statPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open stat at %s: %w", r.statPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 5 || parts[0] != "cpu" {
			continue
		}
		var total uint64
		for i, field := range parts[1:] {
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("invalid cpu field %q: %w", field, err)
			}
			total += v
			if i == 3 || i == 4 { // idle, iowait
				idle += v
			}
		}
		return total - idle, idle, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, errors.New("no aggregate cpu line in stat")
}

// GetUptime reads the first field of /proc/uptime
func (r *Reader) GetUptime() (uint64, error) {
	data, err := os.ReadFile(r.uptimePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read uptime at %s: %w", r.uptimePath, err)
	}
	parts := strings.Fields(string(data))
	if len(parts) == 0 {
		return 0, errors.New("empty uptime")
	}
	secs, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	return uint64(secs), nil
}

// SystemStats builds a system_stats equivalent from local files. Missing
// cpu or uptime files only leave those fields empty.
func (r *Reader) SystemStats(_ context.Context) (model.SystemStats, error) {
	var out model.SystemStats
	if busy, idle, err := r.GetCPUStats(); err == nil {
		out.CPUBusy, out.CPUIdle = &busy, &idle
	} else {
		r.logger.Debug("cpu stats unavailable", zap.Error(err))
	}
	if up, err := r.GetUptime(); err == nil {
		out.UptimeSecs = up
	}
	mem, errM := r.GetMemoryStats()
	if errM == nil && mem.MemTotal > 0 {
		avail := mem.MemAvailable
		if avail == 0 {
			avail = mem.MemFree + mem.Buffers + mem.Cached
		}
		if avail > mem.MemTotal {
			avail = mem.MemTotal
		}
		out.RAMPct = float64(mem.MemTotal-avail) / float64(mem.MemTotal) * 100
	}
	var errL error
	out.Load, errL = r.GetLoadStats()
	return out, errors.Join(errM, errL)
}

// parseMemoryValue parses a meminfo value (in kB) into bytes
func parseMemoryValue(field string) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSuffix(field, "kB"), 10, 64)
	if err != nil {
		return 0, err
	}
	return value * 1024, nil
}
