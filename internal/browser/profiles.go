package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// ProfileInfo describes a browser profile directory.
type ProfileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`     // Total size in bytes
	LastUsed time.Time `json:"lastUsed"` // Most recent modification
}

// ProfileManager handles the Chromium user data directories. The target
// application keeps its login in the profile, so it survives across runs.
type ProfileManager struct {
	profilesDir string
}

// NewProfileManager creates a profile manager rooted at profilesDir.
func NewProfileManager(profilesDir string) *ProfileManager {
	return &ProfileManager{profilesDir: profilesDir}
}

func profileName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

// Dir returns the path of a profile without creating it.
func (m *ProfileManager) Dir(name string) string {
	return filepath.Join(m.profilesDir, profileName(name))
}

// EnsureProfile creates the profile directory if needed, clears lock files
// left by a crashed browser and returns its path.
func (m *ProfileManager) EnsureProfile(name string) (string, error) {
	dir := m.Dir(name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}
	cleanupStaleLocks(dir)
	L_debug("browser: ensured profile", "name", profileName(name), "path", dir)
	return dir, nil
}

// Exists reports whether the profile directory exists.
func (m *ProfileManager) Exists(name string) bool {
	info, err := os.Stat(m.Dir(name))
	return err == nil && info.IsDir()
}

// ListProfiles returns every profile, sorted by name.
func (m *ProfileManager) ListProfiles() ([]ProfileInfo, error) {
	entries, err := os.ReadDir(m.profilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ProfileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	var profiles []ProfileInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		profiles = append(profiles, m.profileInfo(entry.Name()))
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

func (m *ProfileManager) profileInfo(name string) ProfileInfo {
	info := ProfileInfo{Name: name, Path: m.Dir(name)}
	filepath.Walk(info.Path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if !fi.IsDir() {
			info.Size += fi.Size()
		}
		if fi.ModTime().After(info.LastUsed) {
			info.LastUsed = fi.ModTime()
		}
		return nil
	})
	return info
}

// ClearProfile removes the contents of a profile (cookies, cache, login)
// and keeps the directory.
func (m *ProfileManager) ClearProfile(name string) error {
	if !m.Exists(name) {
		return fmt.Errorf("profile does not exist: %s", profileName(name))
	}
	dir := m.Dir(name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read profile directory: %w", err)
	}
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			L_warn("browser: failed to remove profile entry", "path", p, "error", err)
		}
	}
	L_info("browser: cleared profile", "name", profileName(name))
	return nil
}

// cleanupStaleLocks removes the Singleton* files a crashed Chrome leaves in
// its profile. Chrome refuses to start while they exist.
func cleanupStaleLocks(profileDir string) {
	for _, lockFile := range []string{"SingletonLock", "SingletonCookie", "SingletonSocket"} {
		lockPath := filepath.Join(profileDir, lockFile)
		if _, err := os.Lstat(lockPath); err != nil {
			continue
		}
		if err := os.Remove(lockPath); err != nil {
			L_warn("browser: failed to remove stale lock file", "file", lockPath, "error", err)
		} else {
			L_info("browser: removed stale lock file", "file", lockPath)
		}
	}
}

// FormatSize returns a human-readable size string
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
