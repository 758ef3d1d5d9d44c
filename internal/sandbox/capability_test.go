package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

func mustCap(t *testing.T, s string) modules.Capability {
	t.Helper()
	c, err := modules.ParseCapability(s)
	require.NoError(t, err)
	return c
}

func TestCapabilityAllowedEmitsGrantedEvent(t *testing.T) {
	audit := NewAuditLog(DefaultConfig(), nil)
	defer audit.Close()

	granted := mustCap(t, "filesystem:read:/data/**")
	mgr := NewCapabilityManager("m1", []modules.Capability{granted}, audit)

	ok := mgr.IsAllowed(context.Background(), mustCap(t, "filesystem:read:/data/**"))
	require.True(t, ok)
}

func TestCapabilityDeniedEmitsDeniedEvent(t *testing.T) {
	audit := NewAuditLog(DefaultConfig(), nil)
	defer audit.Close()

	mgr := NewCapabilityManager("m1", nil, audit)
	ok := mgr.IsAllowed(context.Background(), mustCap(t, "network:https:api.example.com:443"))
	require.False(t, ok)
}

func TestGrantsReturnsCopyNotAlias(t *testing.T) {
	audit := NewAuditLog(DefaultConfig(), nil)
	defer audit.Close()

	granted := mustCap(t, "module:call:python3")
	mgr := NewCapabilityManager("m1", []modules.Capability{granted}, audit)

	grants := mgr.Grants()
	grants[0].Target = "mutated"

	require.Equal(t, "python3", mgr.Grants()[0].Target)
}
