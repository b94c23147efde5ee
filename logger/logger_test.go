package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "warn"}, &buf))
	t.Cleanup(func() { _ = InitWithWriter(Config{}, os.Stdout) })

	assert.Equal(t, logrus.WarnLevel, Log.GetLevel())

	ForAccount("1001").Info("hidden")
	ForAccount("1001").WithField("level", 2).Warn("rung rejected")
	WithComponent("loop").Error("tick failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "account=1001")
	assert.Contains(t, out, "level=2")
	assert.Contains(t, out, "component=loop")
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "loud"}, &buf))
	t.Cleanup(func() { _ = InitWithWriter(Config{}, os.Stdout) })

	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}

func TestAccountFiles(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Config{
		Level:      "info",
		File:       filepath.Join(dir, "all", "gridscalp.log"),
		AccountDir: filepath.Join(dir, "accounts"),
		JSON:       true,
	}, &buf))
	t.Cleanup(func() { _ = InitWithWriter(Config{}, os.Stdout) })

	ForAccount("1001").Info("entry filled")
	ForAccount("1002").Info("other account")
	Log.Info("global")

	b, err := os.ReadFile(filepath.Join(dir, "accounts", "bot_1001.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"account":"1001"`)
	assert.NotContains(t, string(b), "other account")

	all, err := os.ReadFile(filepath.Join(dir, "all", "gridscalp.log"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(all), "\n"))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
}
