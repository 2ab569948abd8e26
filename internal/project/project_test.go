package project

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
projects:
  web:
    name: Web App
    environment: production
    flags:
      dark-mode:
        value: true
        variations: [true, false]
      theme:
        value: light
        version: 4
        variations: [light, dark, system]
  mobile:
    flags:
      beta-banner:
        value: false
`

func writeProjects(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	projects, err := Load(writeProjects(t, sampleYAML))
	require.NoError(t, err)
	require.Len(t, projects, 2)

	web := projects["web"]
	assert.Equal(t, "Web App", web.Name)
	assert.Equal(t, "production", web.EnvironmentKey)

	theme := web.Flags["theme"]
	assert.Equal(t, "light", theme.Value)
	assert.Equal(t, 4, theme.Version)
	require.Len(t, theme.Variations, 3)
	for _, v := range theme.Variations {
		assert.NotEmpty(t, v.ID)
	}

	// Defaults for omitted fields.
	mobile := projects["mobile"]
	assert.Equal(t, "mobile", mobile.Name)
	assert.Equal(t, "local", mobile.EnvironmentKey)
	assert.Equal(t, 1, mobile.Flags["beta-banner"].Version)
}

func TestLoadRejectsEmptyAndMalformed(t *testing.T) {
	_, err := Load(writeProjects(t, "projects: {}"))
	assert.Error(t, err)

	_, err = Load(writeProjects(t, ":\tnot yaml"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	projects, err := Load(writeProjects(t, sampleYAML))
	require.NoError(t, err)

	reg := NewRegistry(projects)
	assert.Equal(t, []string{"mobile", "web"}, reg.Keys())

	web, ok := reg.Get("web")
	require.True(t, ok)
	assert.Equal(t, "Web App", web.Name)

	_, ok = reg.Get("absent")
	assert.False(t, ok)

	reg.Replace(map[string]Project{"solo": {Key: "solo", Name: "solo"}})
	assert.Equal(t, []string{"solo"}, reg.Keys())
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeProjects(t, sampleYAML)
	projects, err := Load(path)
	require.NoError(t, err)
	reg := NewRegistry(projects)

	stop, err := Watch(path, reg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer stop()

	updated := sampleYAML + `
  api:
    flags:
      rate-limit:
        value: 100
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		_, ok := reg.Get("api")
		return ok
	}, 5*time.Second, 20*time.Millisecond, "watcher did not pick up added project")
}

func TestWatchKeepsLastGoodSetOnParseFailure(t *testing.T) {
	path := writeProjects(t, sampleYAML)
	projects, err := Load(path)
	require.NoError(t, err)
	reg := NewRegistry(projects)

	stop, err := Watch(path, reg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o644))

	// The bad write must never clear the registry. Give the watcher a
	// moment to process the event before checking.
	time.Sleep(200 * time.Millisecond)
	_, ok := reg.Get("web")
	assert.True(t, ok)
}
