package utils

import (
	"fmt"

	"github.com/syndtr/gocapability/capability"
)

// LocalProbeCapabilities are needed to send raw ICMP from the router itself.
// Netlink address reads work without them.
var LocalProbeCapabilities = []capability.Cap{capability.CAP_NET_RAW}

// CheckCapabilities reports whether the current process holds every cap in
// its effective set. The error names the missing ones.
func CheckCapabilities(capabilities ...capability.Cap) (bool, error) {
	if len(capabilities) == 0 {
		return true, nil
	}

	caps, err := capability.NewPid2(0) // 0 == current process
	if err != nil {
		return false, err
	}
	if err = caps.Load(); err != nil {
		return false, err
	}

	missing := Missing(caps, capabilities...)
	if len(missing) > 0 {
		return false, fmt.Errorf("required capabilities are missing: %v", missing)
	}
	return true, nil
}

// Missing lists the caps absent from the effective set of caps.
func Missing(caps capability.Capabilities, want ...capability.Cap) []string {
	var missing []string
	for _, c := range want {
		if !caps.Get(capability.EFFECTIVE, c) {
			missing = append(missing, c.String())
		}
	}
	return missing
}
