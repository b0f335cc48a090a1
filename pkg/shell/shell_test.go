package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("NAX_HOST", "192.168.1.99")

	require.Equal(t, "host: 192.168.1.99", ReplaceEnvVars("host: ${NAX_HOST}"))
	require.Equal(t, "port: 6123", ReplaceEnvVars("port: ${NAX_PORT:6123}"))
	require.Equal(t, "token: ${NAX_TOKEN}", ReplaceEnvVars("token: ${NAX_TOKEN}"))
}
