// Package launcher finds a local Chrome and runs it with remote debugging
// enabled.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrChromeNotFound is returned when no Chrome binary could be located.
var ErrChromeNotFound = errors.New("chrome not found")

// LaunchOptions configures Chrome launching.
type LaunchOptions struct {
	ChromePath string   // Path to Chrome binary (auto-detected if empty)
	Port       int      // Remote debugging port; 0 picks a free one
	Headless   bool     // Run in headless mode
	DataDir    string   // User data directory (temp dir created if empty)
	ExtraArgs  []string // Appended after the defaults, in order
	StartWait  time.Duration
}

// Instance represents a running Chrome instance.
type Instance struct {
	cmd      *exec.Cmd
	Port     int
	PID      int
	DataDir  string
	ownsData bool
}

// defaultArgs keep an automated profile quiet and deterministic.
var defaultArgs = []string{
	"--disable-gpu",
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-extensions",
	"--disable-background-networking",
	"--disable-sync",
	"--disable-translate",
	"--mute-audio",
	"--no-first-run",
	"--disable-default-apps",
}

// FindChrome locates Chrome on the system. If chromePath is non-empty it is
// returned when it exists, and nothing else is tried. Otherwise PATH and
// known install locations are searched.
func FindChrome(chromePath string) string {
	if chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath
		}
		return ""
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FreePort asks the kernel for an unused loopback TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// IsPortOpen checks if a TCP port is accepting connections.
func IsPortOpen(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitForPort waits for a TCP port to accept connections or ctx to end.
func WaitForPort(ctx context.Context, host string, port int) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if IsPortOpen(host, port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Args returns the command line Launch passes to Chrome.
func Args(opts LaunchOptions, dataDir string) []string {
	args := make([]string, 0, len(defaultArgs)+len(opts.ExtraArgs)+4)
	if opts.Headless {
		args = append(args, "--headless")
	}
	args = append(args, defaultArgs...)
	args = append(args,
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		fmt.Sprintf("--user-data-dir=%s", dataDir),
	)
	args = append(args, opts.ExtraArgs...)
	return append(args, "about:blank")
}

// Launch starts Chrome and waits until its debugging port answers.
func Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	chromePath := FindChrome(opts.ChromePath)
	if chromePath == "" {
		if opts.ChromePath != "" {
			return nil, fmt.Errorf("%w at %s", ErrChromeNotFound, opts.ChromePath)
		}
		return nil, ErrChromeNotFound
	}

	if opts.Port == 0 {
		port, err := FreePort()
		if err != nil {
			return nil, err
		}
		opts.Port = port
	}

	ownsData := false
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "webharness-chrome-"+uuid.NewString())
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating profile dir: %w", err)
		}
		ownsData = true
	}

	cmd := exec.Command(chromePath, Args(opts, dataDir)...)
	if err := cmd.Start(); err != nil {
		if ownsData {
			os.RemoveAll(dataDir)
		}
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	inst := &Instance{
		cmd:      cmd,
		Port:     opts.Port,
		PID:      cmd.Process.Pid,
		DataDir:  dataDir,
		ownsData: ownsData,
	}

	wait := opts.StartWait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := WaitForPort(waitCtx, "127.0.0.1", opts.Port); err != nil {
		inst.Stop()
		return nil, fmt.Errorf("chrome failed to start: %w", err)
	}

	return inst, nil
}

// Stop terminates the Chrome instance and removes a profile dir it created.
func (inst *Instance) Stop() error {
	var err error
	if inst.cmd != nil && inst.cmd.Process != nil {
		if kerr := inst.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("killing chrome: %w", kerr)
		}
		inst.cmd.Wait()

		// Renderer and GPU children carry the profile dir on their command line.
		if inst.DataDir != "" && runtime.GOOS != "windows" {
			exec.Command("pkill", "-9", "-f", inst.DataDir).Run()
		}
		inst.cmd = nil
	}
	if inst.ownsData && inst.DataDir != "" {
		time.Sleep(100 * time.Millisecond)
		os.RemoveAll(inst.DataDir)
		inst.DataDir = ""
	}
	return err
}
