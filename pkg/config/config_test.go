package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	assert.NoError(t, Load(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoad_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STOREFRONT_A=from-file\nSTOREFRONT_B=from-file\n"), 0o600))
	t.Setenv("STOREFRONT_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("STOREFRONT_B") })

	require.NoError(t, Load(path))

	assert.Equal(t, "from-env", GetEnv("STOREFRONT_A", ""))
	assert.Equal(t, "from-file", GetEnv("STOREFRONT_B", ""))
}

func TestGetters(t *testing.T) {
	t.Setenv("STOREFRONT_PORT", "8081")
	t.Setenv("STOREFRONT_BAD_PORT", "eighty")
	t.Setenv("STOREFRONT_TIMEOUT", "250ms")
	t.Setenv("STOREFRONT_BROKERS", "kafka-1:9092, ,kafka-2:9092")

	assert.Equal(t, 8081, GetInt("STOREFRONT_PORT", 1))
	assert.Equal(t, 1, GetInt("STOREFRONT_BAD_PORT", 1))
	assert.Equal(t, 250*time.Millisecond, GetDuration("STOREFRONT_TIMEOUT", time.Second))
	assert.Equal(t, time.Second, GetDuration("STOREFRONT_MISSING", time.Second))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, GetList("STOREFRONT_BROKERS", nil))
	assert.Equal(t, []string{"x"}, GetList("STOREFRONT_MISSING", []string{"x"}))
	assert.Equal(t, "fallback", GetEnv("STOREFRONT_MISSING", "fallback"))
}
