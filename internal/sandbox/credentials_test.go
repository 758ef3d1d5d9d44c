package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretNameForNormalizesTarget(t *testing.T) {
	require.Equal(t, "sandbox-cred-api-example-com-443", secretNameFor("api.example.com:443"))
	require.Equal(t, "sandbox-cred-api-example-com", secretNameFor("API.Example.com"))
}
