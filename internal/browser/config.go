package browser

import (
	"time"

	"adminexport/internal/config"
)

// Config holds browser configuration options
type Config struct {
	ExecPath     string
	Headless     bool
	DownloadDir  string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	Timeout      time.Duration
}

// DefaultConfig returns default browser configuration
func DefaultConfig() Config {
	return Config{
		Headless:     true,
		WindowWidth:  1366,
		WindowHeight: 900,
		Timeout:      15 * time.Minute,
	}
}

// ConfigFrom maps loaded settings onto a browser Config. An empty exec path
// falls back to DetectBrowser.
func ConfigFrom(bc config.BrowserConfig, downloadDir string) Config {
	cfg := DefaultConfig()
	cfg.ExecPath = bc.ExecPath
	cfg.Headless = bc.Headless
	cfg.DownloadDir = downloadDir
	cfg.UserAgent = bc.UserAgent
	if bc.WindowWidth > 0 {
		cfg.WindowWidth = bc.WindowWidth
	}
	if bc.WindowHeight > 0 {
		cfg.WindowHeight = bc.WindowHeight
	}
	if bc.RunTimeout > 0 {
		cfg.Timeout = bc.RunTimeout
	}
	if cfg.ExecPath == "" {
		cfg.ExecPath = DetectBrowser()
	}
	return cfg
}
