package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel).Component("analysis").With(Fields{"mouse": "m1"})

	log.Info("mouse analyzed", Fields{"regions": 3})
	log.Debug("hidden", nil)
	log.Error(errors.New("boom"), "save failed", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "analysis", lines[0]["component"])
	assert.Equal(t, "m1", lines[0]["mouse"])
	assert.Equal(t, 3.0, lines[0]["regions"])
	assert.Equal(t, "mouse analyzed", lines[0]["message"])

	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "m1", lines[1]["mouse"])
}

func TestNewFromConfig(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewFromConfig(FormatJSON, true, &buf)
	require.NoError(t, err)
	log.Debug("visible", nil)
	assert.Len(t, decodeLines(t, &buf), 1)

	buf.Reset()
	log, err = NewFromConfig(FormatConsole, false, &buf)
	require.NoError(t, err)
	log.Warn("slice skipped", Fields{"slice": "s1"})
	assert.Contains(t, buf.String(), "slice skipped")
	assert.Contains(t, buf.String(), "s1")

	_, err = NewFromConfig("xml", false, &buf)
	assert.Error(t, err)
}

func TestNopDiscards(t *testing.T) {
	log := Nop().Component("x")
	log.Info("ignored", Fields{"a": 1})
}
