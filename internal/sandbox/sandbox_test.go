package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

func TestSandboxStartStopRecordsLifecycleEvents(t *testing.T) {
	audit := NewAuditLog(DefaultConfig(), nil)
	defer audit.Close()

	grant, err := modules.ParseCapability("filesystem:read:/data/**")
	require.NoError(t, err)

	sb := New("m1", []modules.Capability{grant}, DefaultLimits(), audit)
	sb.Start(context.Background())
	sb.Stop(context.Background())

	recent := audit.Recent(10)
	require.Len(t, recent, 2)
	require.Equal(t, EventSandboxStarted, recent[0].Kind)
	require.Equal(t, EventSandboxStopped, recent[1].Kind)
}

func TestSandboxWiresCapabilityAndResourceMonitor(t *testing.T) {
	audit := NewAuditLog(DefaultConfig(), nil)
	defer audit.Close()

	sb := New("m1", nil, Limits{MaxMemoryBytes: 10}, audit)
	require.False(t, sb.Capability.IsAllowed(context.Background(), mustCap(t, "network:https:x:1")))
	require.Error(t, sb.Resources.UpdateMemory(context.Background(), 20))
}
