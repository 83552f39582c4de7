package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod/lib/launcher"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// Downloader manages the Chromium binary under a bin directory.
type Downloader struct {
	binDir  string
	mu      sync.Mutex
	binPath string // cached once resolved
}

// NewDownloader creates a downloader rooted at binDir.
func NewDownloader(binDir string) *Downloader {
	return &Downloader{binDir: binDir}
}

// EnsureBrowser returns the Chromium binary, downloading it when missing.
// Safe to call concurrently.
func (d *Downloader) EnsureBrowser() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binPath != "" {
		if _, err := os.Stat(d.binPath); err == nil {
			return d.binPath, nil
		}
		d.binPath = ""
	}

	if err := os.MkdirAll(d.binDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create browser bin directory: %w", err)
	}

	L_debug("browser: ensuring chromium is available", "binDir", d.binDir)

	b := launcher.NewBrowser()
	b.RootDir = d.binDir

	// No-op when the revision is already present.
	binPath, err := b.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}

	d.binPath = binPath
	L_info("browser: chromium ready", "path", binPath)
	return binPath, nil
}

// ForceDownload discards the cached path and resolves the binary again.
func (d *Downloader) ForceDownload() (string, error) {
	d.mu.Lock()
	d.binPath = ""
	d.mu.Unlock()
	return d.EnsureBrowser()
}

// BinDir returns the binary directory.
func (d *Downloader) BinDir() string {
	return d.binDir
}

// FindExistingBrowser looks for an already downloaded binary without
// touching the network.
func (d *Downloader) FindExistingBrowser() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binPath != "" {
		if _, err := os.Stat(d.binPath); err == nil {
			return d.binPath, nil
		}
	}

	entries, err := os.ReadDir(d.binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("browser not downloaded: %s does not exist", d.binDir)
		}
		return "", fmt.Errorf("failed to read bin directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		for _, candidate := range []string{
			filepath.Join(d.binDir, entry.Name(), "chrome"),
			filepath.Join(d.binDir, entry.Name(), "chrome.exe"),
			filepath.Join(d.binDir, entry.Name(), "Chromium.app", "Contents", "MacOS", "Chromium"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				d.binPath = candidate
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("browser not downloaded: no chromium binary in %s", d.binDir)
}

// Resolve picks the binary for cfg: an explicit Bin, an existing download,
// or a fresh download when AutoDownload is set.
func (d *Downloader) Resolve(cfg BrowserConfig) (string, error) {
	if cfg.Bin != "" {
		if _, err := os.Stat(cfg.Bin); err != nil {
			return "", fmt.Errorf("configured browser binary: %w", err)
		}
		return cfg.Bin, nil
	}
	if !cfg.AutoDownload {
		bin, err := d.FindExistingBrowser()
		if err != nil {
			if sys, ok := launcher.LookPath(); ok {
				L_debug("browser: using system chromium", "path", sys)
				return sys, nil
			}
			return "", fmt.Errorf("browser not available and autoDownload is disabled: %w", err)
		}
		return bin, nil
	}
	return d.EnsureBrowser()
}
