// Package netdev parses the /proc/net/dev table, either read locally or
// shipped as a text blob inside network_info.
package netdev

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/madebyjamstudios/jammonitor/internal/model"
)

// LineError reports an interface row that could not be parsed.
type LineError struct {
	Interface string
	Line      int
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("netdev line %d (%s): %v", e.Line, e.Interface, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Parse reads a /proc/net/dev table. Rows that fail to parse are skipped and
// reported in bad; they never abort the rest of the table.
func Parse(r io.Reader) (stats map[string]*model.NetworkStats, bad []*LineError, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)

	stats = make(map[string]*model.NetworkStats)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue // header rows
		}

		iface := strings.TrimSpace(line[:colon])
		iface, _, _ = strings.Cut(iface, "@")
		if iface == "" {
			continue
		}
		parts := strings.Fields(line[colon+1:])
		if len(parts) < 16 {
			bad = append(bad, &LineError{Interface: iface, Line: lineNo, Err: fmt.Errorf("expected 16 columns, got %d", len(parts))})
			continue
		}

		var fields [16]uint64
		var perr error
		for i := range fields {
			fields[i], perr = strconv.ParseUint(parts[i], 10, 64)
			if perr != nil {
				break
			}
		}
		if perr != nil {
			bad = append(bad, &LineError{Interface: iface, Line: lineNo, Err: perr})
			continue
		}

		stats[iface] = &model.NetworkStats{
			Interface: iface,
			RxBytes:   fields[0],
			RxPackets: fields[1],
			RxErrors:  fields[2],
			RxDropped: fields[3],
			TxBytes:   fields[8],
			TxPackets: fields[9],
			TxErrors:  fields[10],
			TxDropped: fields[11],
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return stats, bad, nil
}

// ParseString is Parse over an in-memory blob.
func ParseString(s string) (map[string]*model.NetworkStats, []*LineError, error) {
	return Parse(strings.NewReader(s))
}
