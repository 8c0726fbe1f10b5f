package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/cfg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestZerologNotifier_EveryLevel(t *testing.T) {
	var buf bytes.Buffer
	n := NewZerologNotifier(zerolog.New(&buf).Level(zerolog.DebugLevel), "fimdb")

	for _, lvl := range callback.Levels() {
		n.NotifyLog(lvl, "message "+lvl.String())
	}

	lines := decodeLines(t, &buf)
	require.Len(t, lines, len(callback.Levels()))

	want := []string{"debug", "info", "warn", "error", "error"}
	for i, lvl := range callback.Levels() {
		assert.Equal(t, want[i], lines[i]["level"])
		assert.Equal(t, "message "+lvl.String(), lines[i]["message"])
		assert.Equal(t, "fimdb", lines[i]["component"])
	}
	assert.Equal(t, true, lines[4]["critical"])
	assert.Nil(t, lines[3]["critical"])
}

func TestZerologNotifier_WarningScenario(t *testing.T) {
	var buf bytes.Buffer
	n := NewZerologNotifier(zerolog.New(&buf), "")

	n.NotifyLog(callback.LevelWarning, "disk usage high")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "disk usage high", lines[0]["message"])
	assert.Nil(t, lines[0]["component"])
}

func TestZerologNotifier_RespectsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	n := NewZerologNotifier(zerolog.New(&buf).Level(zerolog.InfoLevel), "fimdb")

	n.NotifyLog(callback.LevelDebug, "hidden")
	n.NotifyLog(callback.LevelInfo, "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestZerologNotifier_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	n := NewZerologNotifier(zerolog.New(zerolog.SyncWriter(&buf)), "fimdb")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.NotifyLog(callback.LevelInfo, "entry")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 1000)
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ZerologLevel(callback.LevelDebug))
	assert.Equal(t, zerolog.InfoLevel, ZerologLevel(callback.LevelInfo))
	assert.Equal(t, zerolog.WarnLevel, ZerologLevel(callback.LevelWarning))
	assert.Equal(t, zerolog.ErrorLevel, ZerologLevel(callback.LevelError))
	assert.Equal(t, zerolog.ErrorLevel, ZerologLevel(callback.LevelCritical))
}

func TestSetup_WithFile(t *testing.T) {
	original := log.Logger
	defer func() { log.Logger = original }()

	path := filepath.Join(t.TempDir(), "agent.log")
	closer, err := Setup(cfg.LoggingConfiguration{Format: "json", Verbose: true, File: path}, 7)
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())

	NewGlobalNotifier("fimdb").NotifyLog(callback.LevelError, "integrity mismatch")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, bytes.NewBuffer(data))
	require.Len(t, lines, 1)
	assert.Equal(t, "integrity mismatch", lines[0]["message"])
	assert.Equal(t, float64(7), lines[0]["agent_id"])
}

func TestSetup_DefaultLevel(t *testing.T) {
	original := log.Logger
	defer func() { log.Logger = original }()

	closer, err := Setup(cfg.LoggingConfiguration{Format: "console"}, 1)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
}

func TestSetup_BadFile(t *testing.T) {
	_, err := Setup(cfg.LoggingConfiguration{Format: "json", File: filepath.Join(t.TempDir(), "missing", "x.log")}, 1)
	assert.Error(t, err)
}
