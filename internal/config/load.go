package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. HARNESS_BROWSER.
const EnvPrefix = "HARNESS"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "harness.yaml"

// fileConfig mirrors the YAML file layout. Pointer fields distinguish an
// absent key from a zero value.
type fileConfig struct {
	Browser   *string        `yaml:"browser"`
	Chrome    browserSection `yaml:"chrome"`
	Firefox   browserSection `yaml:"firefox"`
	WebDriver struct {
		Timeouts struct {
			PageLoad     *int `yaml:"pageLoad"`
			ImplicitWait *int `yaml:"implicitWait"`
			Script       *int `yaml:"script"`
		} `yaml:"timeouts"`
	} `yaml:"webdriver"`
}

type browserSection struct {
	Headless  *bool   `yaml:"headless"`
	Incognito *bool   `yaml:"incognito"`
	Private   *bool   `yaml:"private"`
	Args      *string `yaml:"args"` // comma-separated
	Binary    *string `yaml:"binary"`
	Driver    *string `yaml:"driver"`
}

// envConfig holds process-level overrides read by envconfig.
type envConfig struct {
	Browser      string  `envconfig:"BROWSER"`
	Headless     *bool   `envconfig:"HEADLESS"`
	Private      *bool   `envconfig:"PRIVATE"`
	Args         *string `envconfig:"ARGS"`
	PageLoad     *int    `envconfig:"PAGELOAD_TIMEOUT"`
	ImplicitWait *int    `envconfig:"IMPLICIT_WAIT"`
	Script       *int    `envconfig:"SCRIPT_TIMEOUT"`
	Binary       *string `envconfig:"BINARY"`
	Driver       *string `envconfig:"DRIVER"`
}

// Overrides are explicit in-process settings. They win over both the
// environment and the file. Nil fields leave the lower layers untouched.
type Overrides struct {
	Browser      *BrowserKind
	Headless     *bool
	Private      *bool
	ExtraArgs    []string // nil means no override; an empty non-nil slice clears args
	PageLoad     *time.Duration
	ImplicitWait *time.Duration
	Script       *time.Duration
	BinaryPath   *string
	DriverPath   *string
}

// Loader resolves a SessionConfig. The zero value reads the OS filesystem
// and logs nothing.
type Loader struct {
	FS     afero.Fs
	Logger logrus.FieldLogger
}

// Load resolves the config with precedence: explicit overrides >
// environment > file > defaults. A missing file is not an error.
func (l Loader) Load(path string, ov Overrides) (SessionConfig, error) {
	if l.FS == nil {
		l.FS = afero.NewOsFs()
	}
	if l.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		l.Logger = discard
	}
	if path == "" {
		path = DefaultFile
	}

	fc, err := l.readFile(path)
	if err != nil {
		return SessionConfig{}, err
	}

	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return SessionConfig{}, fmt.Errorf("reading environment: %w", err)
	}

	cfg := Default()

	// The browser kind is resolved first because it selects the file section.
	if fc.Browser != nil {
		cfg.Browser = BrowserKind(*fc.Browser)
	}
	if env.Browser != "" {
		cfg.Browser = BrowserKind(env.Browser)
	}
	if ov.Browser != nil {
		cfg.Browser = *ov.Browser
	}
	kind, err := ParseBrowserKind(string(cfg.Browser))
	if err != nil {
		return SessionConfig{}, err
	}
	cfg.Browser = kind

	section := fc.Chrome
	if kind == Firefox {
		section = fc.Firefox
	}
	applySection(&cfg, section)
	applySeconds(&cfg.Timeouts.PageLoad, fc.WebDriver.Timeouts.PageLoad)
	applySeconds(&cfg.Timeouts.ImplicitWait, fc.WebDriver.Timeouts.ImplicitWait)
	applySeconds(&cfg.Timeouts.Script, fc.WebDriver.Timeouts.Script)

	applyEnv(&cfg, env)
	applyOverrides(&cfg, ov)

	built, err := Build(cfg)
	if err != nil {
		return SessionConfig{}, err
	}
	l.Logger.WithField("browser", built.Browser).Debugf("resolved session config %s", built)
	return built, nil
}

func (l Loader) readFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := afero.ReadFile(l.FS, path)
	if errors.Is(err, fs.ErrNotExist) {
		l.Logger.WithField("path", path).Warn("config file not found, using defaults")
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parsing config %s: %w", path, err)
	}
	l.Logger.WithField("path", path).Info("loaded configuration")
	return fc, nil
}

func applySection(cfg *SessionConfig, s browserSection) {
	if s.Headless != nil {
		cfg.Headless = *s.Headless
	}
	// Chrome calls it incognito, firefox calls it private; accept either.
	if s.Incognito != nil {
		cfg.Private = *s.Incognito
	}
	if s.Private != nil {
		cfg.Private = *s.Private
	}
	if s.Args != nil {
		cfg.ExtraArgs = SplitArgs(*s.Args)
	}
	if s.Binary != nil {
		cfg.BinaryPath = *s.Binary
	}
	if s.Driver != nil {
		cfg.DriverPath = *s.Driver
	}
}

func applyEnv(cfg *SessionConfig, env envConfig) {
	if env.Headless != nil {
		cfg.Headless = *env.Headless
	}
	if env.Private != nil {
		cfg.Private = *env.Private
	}
	if env.Args != nil {
		cfg.ExtraArgs = SplitArgs(*env.Args)
	}
	applySeconds(&cfg.Timeouts.PageLoad, env.PageLoad)
	applySeconds(&cfg.Timeouts.ImplicitWait, env.ImplicitWait)
	applySeconds(&cfg.Timeouts.Script, env.Script)
	if env.Binary != nil {
		cfg.BinaryPath = *env.Binary
	}
	if env.Driver != nil {
		cfg.DriverPath = *env.Driver
	}
}

func applyOverrides(cfg *SessionConfig, ov Overrides) {
	if ov.Headless != nil {
		cfg.Headless = *ov.Headless
	}
	if ov.Private != nil {
		cfg.Private = *ov.Private
	}
	if ov.ExtraArgs != nil {
		cfg.ExtraArgs = ov.ExtraArgs
	}
	if ov.PageLoad != nil {
		cfg.Timeouts.PageLoad = *ov.PageLoad
	}
	if ov.ImplicitWait != nil {
		cfg.Timeouts.ImplicitWait = *ov.ImplicitWait
	}
	if ov.Script != nil {
		cfg.Timeouts.Script = *ov.Script
	}
	if ov.BinaryPath != nil {
		cfg.BinaryPath = *ov.BinaryPath
	}
	if ov.DriverPath != nil {
		cfg.DriverPath = *ov.DriverPath
	}
}

func applySeconds(dst *time.Duration, secs *int) {
	if secs != nil {
		*dst = time.Duration(*secs) * time.Second
	}
}
