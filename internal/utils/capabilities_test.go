package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/gocapability/capability"
)

func TestCheckCapabilities_NoArgs(t *testing.T) {
	ok, err := CheckCapabilities()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckCapabilities_AgreesWithMissing(t *testing.T) {
	caps, err := capability.NewPid2(0)
	require.NoError(t, err)
	require.NoError(t, caps.Load())

	missing := Missing(caps, LocalProbeCapabilities...)
	ok, err := CheckCapabilities(LocalProbeCapabilities...)
	require.Equal(t, len(missing) == 0, ok)
	if ok {
		require.NoError(t, err)
	} else {
		require.ErrorContains(t, err, "net_raw")
	}
}

func TestMissing_EmptySet(t *testing.T) {
	caps, err := capability.NewPid2(0)
	require.NoError(t, err)
	caps.Clear(capability.CAPS)

	require.Equal(t, []string{"net_raw", "net_admin"}, Missing(caps, capability.CAP_NET_RAW, capability.CAP_NET_ADMIN))
	require.Empty(t, Missing(caps))
}
