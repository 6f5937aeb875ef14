package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/term"

	"github.com/ioanhodean/webharness/internal/config"
)

// OpenResult is returned by the open command.
type OpenResult struct {
	URL     string             `json:"url"`
	Title   string             `json:"title"`
	Browser config.BrowserKind `json:"browser"`
}

// TitleResult is returned by the title command.
type TitleResult struct {
	Title string `json:"title"`
}

// SearchResult is returned by the search command.
type SearchResult struct {
	Term   string `json:"term"`
	Title  string `json:"title"`
	Expect string `json:"expect,omitempty"`
	Found  *bool  `json:"found,omitempty"`
}

// LoginResult is returned by the login command.
type LoginResult struct {
	User  string `json:"user"`
	Title string `json:"title"`
}

// ScreenshotResult is returned by the screenshot command.
type ScreenshotResult struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

// ConfigResult is returned by the config command.
type ConfigResult struct {
	config.SessionConfig
	LaunchArgs []string `json:"launchArgs"`
}

// TextValuer is implemented by result types that have an obvious plain-text representation.
type TextValuer interface {
	TextValue() string
}

func (r OpenResult) TextValue() string       { return r.Title }
func (r TitleResult) TextValue() string      { return r.Title }
func (r LoginResult) TextValue() string      { return r.Title }
func (r ScreenshotResult) TextValue() string { return r.Path }
func (r ConfigResult) TextValue() string     { return r.SessionConfig.String() }

func (r SearchResult) TextValue() string {
	if r.Found != nil {
		return strconv.FormatBool(*r.Found)
	}
	return r.Title
}

// isTerminal checks if the given writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func outputResult(cfg *Config, v any) error {
	format := cfg.Output
	if format == "auto" {
		format = "json"
		if isTerminal(cfg.Stdout) {
			format = "text"
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cfg.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "ndjson":
		return json.NewEncoder(cfg.Stdout).Encode(v)
	case "text":
		if tv, ok := v.(TextValuer); ok {
			_, err := fmt.Fprintln(cfg.Stdout, tv.TextValue())
			return err
		}
		// Fall back to JSON for complex types
		enc := json.NewEncoder(cfg.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format: %s", cfg.Output)
}
