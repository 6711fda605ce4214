package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureOnce(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "kiln-test"})

	// Second Configure must not replace the writer chosen above.
	Configure(Config{Output: bytes.NewBuffer(nil), Service: "other"})

	logger := WithComponent("registry")
	logger.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kiln-test", entry["service"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "hello", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestBaseCarriesService(t *testing.T) {
	// Configure is sticky across tests in this package; Base must still
	// produce a usable logger regardless of which test ran first.
	logger := Base()
	assert.NotPanics(t, func() {
		logger.Debug().Str("k", "v").Msg("probe")
	})
}
