package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	return fs
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, Chrome, cfg.Browser)
	assert.False(t, cfg.Headless)
	assert.False(t, cfg.Private)
	assert.Empty(t, cfg.ExtraArgs)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.PageLoad)
	assert.Zero(t, cfg.Timeouts.ImplicitWait)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Script)
}

func TestParseBrowserKind(t *testing.T) {
	t.Parallel()

	k, err := ParseBrowserKind(" FireFox ")
	require.NoError(t, err)
	assert.Equal(t, Firefox, k)

	_, err = ParseBrowserKind("safari")
	assert.ErrorIs(t, err, ErrUnknownBrowser)
}

func TestBuild_RejectsNegativeTimeout(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Timeouts.Script = -time.Second
	_, err := Build(cfg)
	assert.ErrorIs(t, err, ErrNegativeTimeout)
}

func TestBuild_CopiesArgs(t *testing.T) {
	t.Parallel()

	args := []string{"--a", "--b"}
	cfg := Default()
	cfg.ExtraArgs = args

	built, err := Build(cfg)
	require.NoError(t, err)

	args[0] = "--mutated"
	assert.Equal(t, []string{"--a", "--b"}, built.ExtraArgs)
}

func TestLaunchArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  SessionConfig
		want []string
	}{
		{
			name: "chrome incognito first then verbatim args",
			cfg:  SessionConfig{Browser: Chrome, Private: true, ExtraArgs: []string{"--x=1", "--x=2"}},
			want: []string{"--incognito", "--x=1", "--x=2"},
		},
		{
			name: "firefox private",
			cfg:  SessionConfig{Browser: Firefox, Private: true},
			want: []string{"-private"},
		},
		{
			name: "no privacy flag",
			cfg:  SessionConfig{Browser: Chrome, ExtraArgs: []string{"--window-size=800,600"}},
			want: []string{"--window-size=800,600"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.LaunchArgs())
		})
	}
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"--a", "--b=c"}, SplitArgs(" --a, ,--b=c ,"))
	assert.Nil(t, SplitArgs(""))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	assert.True(t, a.Equal(b))

	b.ExtraArgs = []string{"--x"}
	assert.False(t, a.Equal(b))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Loader{FS: afero.NewMemMapFs()}.Load("nope.yaml", Overrides{})
	require.NoError(t, err)
	assert.True(t, cfg.Equal(Default()))
}

const sampleFile = `
browser: firefox
chrome:
  headless: true
  incognito: true
  args: "--c1,--c2"
firefox:
  headless: true
  private: true
  args: "-width=800, -height=600"
  driver: /opt/geckodriver
webdriver:
  timeouts:
    pageLoad: 5
    implicitWait: 0
    script: 7
`

func TestLoad_FileSelectsBrowserSection(t *testing.T) {
	fs := memFS(t, map[string]string{"harness.yaml": sampleFile})

	cfg, err := Loader{FS: fs}.Load("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, Firefox, cfg.Browser)
	assert.True(t, cfg.Headless)
	assert.True(t, cfg.Private)
	assert.Equal(t, []string{"-width=800", "-height=600"}, cfg.ExtraArgs)
	assert.Equal(t, "/opt/geckodriver", cfg.DriverPath)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.PageLoad)
	assert.Equal(t, 7*time.Second, cfg.Timeouts.Script)
}

func TestLoad_OverrideBeatsEnvBeatsFile(t *testing.T) {
	fs := memFS(t, map[string]string{"harness.yaml": sampleFile})
	t.Setenv("HARNESS_BROWSER", "chrome")
	t.Setenv("HARNESS_ARGS", "--env")

	cfg, err := Loader{FS: fs}.Load("harness.yaml", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, Chrome, cfg.Browser)
	assert.Equal(t, []string{"--env"}, cfg.ExtraArgs)
	assert.True(t, cfg.Private, "chrome section incognito applies once env selects chrome")

	firefox := Firefox
	headless := false
	cfg, err = Loader{FS: fs}.Load("harness.yaml", Overrides{Browser: &firefox, Headless: &headless})
	require.NoError(t, err)
	assert.Equal(t, Firefox, cfg.Browser)
	assert.False(t, cfg.Headless)
	assert.Equal(t, []string{"--env"}, cfg.ExtraArgs)
}

func TestLoad_EnvTimeouts(t *testing.T) {
	t.Setenv("HARNESS_PAGELOAD_TIMEOUT", "12")
	t.Setenv("HARNESS_SCRIPT_TIMEOUT", "3")

	cfg, err := Loader{FS: afero.NewMemMapFs()}.Load("", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Timeouts.PageLoad)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Script)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("malformed yaml", func(t *testing.T) {
		fs := memFS(t, map[string]string{"bad.yaml": "browser: [unterminated"})
		_, err := Loader{FS: fs}.Load("bad.yaml", Overrides{})
		assert.Error(t, err)
	})

	t.Run("unknown browser", func(t *testing.T) {
		fs := memFS(t, map[string]string{"h.yaml": "browser: opera"})
		_, err := Loader{FS: fs}.Load("h.yaml", Overrides{})
		assert.ErrorIs(t, err, ErrUnknownBrowser)
	})

	t.Run("negative timeout", func(t *testing.T) {
		fs := memFS(t, map[string]string{"h.yaml": "webdriver:\n  timeouts:\n    pageLoad: -1\n"})
		_, err := Loader{FS: fs}.Load("h.yaml", Overrides{})
		assert.ErrorIs(t, err, ErrNegativeTimeout)
	})
}
