package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("event rejected", "kind", "PeriodClosed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "event rejected", line["msg"])
	require.Equal(t, "PeriodClosed", line["kind"])
	require.Contains(t, line, "source")
}

func TestNewLoggerTextDefault(t *testing.T) {
	var buf bytes.Buffer
	newLogger(nil, &buf).Debug("skipped")
	newLogger(nil, &buf).Info("posted")
	require.NotContains(t, buf.String(), "skipped")
	require.Contains(t, buf.String(), "msg=posted")
}
