package browser

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/devices"
)

// BrowserConfig holds browser configuration
type BrowserConfig struct {
	Dir          string `json:"dir"`          // Browser data directory (empty = ~/.formclaw/browser)
	AutoDownload bool   `json:"autoDownload"` // Download Chromium if missing
	Bin          string `json:"bin"`          // Explicit Chromium binary, skips the download
	Headless     bool   `json:"headless"`     // Run in headless mode
	NoSandbox    bool   `json:"noSandbox"`    // Disable sandbox (needed for Docker/root)
	Profile      string `json:"profile"`      // Profile name under Dir/profiles
	Timeout      string `json:"timeout"`      // Default operation timeout (e.g., "30s")
	Stealth      bool   `json:"stealth"`      // Stealth page and automation flag removal
	Device       string `json:"device"`       // Device emulation: "clear", "laptop", "iphone-x", etc.
	ControlURL   string `json:"controlURL"`   // Connect to a running Chrome instead of launching one

	DownloadsDir        string `json:"downloadsDir"`        // Where the browser saves files (empty = ./downloaded_files)
	AllowPrivateNetwork bool   `json:"allowPrivateNetwork"` // Allow loopback and private network targets
}

// DefaultBrowserConfig returns the default browser configuration
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		AutoDownload: true,
		Headless:     true,
		NoSandbox:    true,
		Profile:      "default",
		Timeout:      "30s",
		Stealth:      true,
		Device:       "clear", // No viewport emulation, fills window
	}
}

// ResolveDir returns the browser directory, defaulting to <baseDir>/browser
func (c *BrowserConfig) ResolveDir(baseDir string) string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(baseDir, "browser")
}

// ResolveBinDir returns the chromium binary directory
func (c *BrowserConfig) ResolveBinDir(baseDir string) string {
	return filepath.Join(c.ResolveDir(baseDir), "bin")
}

// ResolveProfilesDir returns the profiles directory
func (c *BrowserConfig) ResolveProfilesDir(baseDir string) string {
	return filepath.Join(c.ResolveDir(baseDir), "profiles")
}

// ResolveTimeout returns the timeout as a Duration
func (c *BrowserConfig) ResolveTimeout() time.Duration {
	if c.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ResolveDevice returns the devices.Device for the configured device name.
// Unknown names fall back to "clear" (no emulation).
func (c *BrowserConfig) ResolveDevice() devices.Device {
	switch strings.ToLower(c.Device) {
	case "laptop", "laptop-mdpi":
		return devices.LaptopWithMDPIScreen
	case "laptop-hidpi":
		return devices.LaptopWithHiDPIScreen
	case "iphone-x":
		return devices.IPhoneX
	case "ipad":
		return devices.IPad
	case "pixel-2":
		return devices.Pixel2
	default:
		return devices.Clear
	}
}
