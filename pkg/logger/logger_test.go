package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/equindex/pkg/config"
)

func TestNew(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
		{"unknown falls back to info", "verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(&config.Config{Env: "development", LogLevel: tt.level, LogFormat: "json"})
			require.NotNil(t, log)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "staging")

	log.WithFields(map[string]interface{}{
		"index_name": "SECTOR-INDUSTRY-Energy-Oil",
		"points":     250,
	}).Info("index stored")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "index stored", entry["message"])
	assert.Equal(t, "SECTOR-INDUSTRY-Energy-Oil", entry["index_name"])
	assert.Equal(t, float64(250), entry["points"])
	assert.Equal(t, "staging", entry["env"])
	assert.Equal(t, "info", entry["level"])
}

func TestWithErrorAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "development").WithComponent("orchestrator")

	log.WithError(errors.New("connection refused")).Warn("store attempt failed")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "orchestrator", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.WithField("k", "v").Info("discarded")
		log.Errorf("discarded %d", 1)
	})
}
