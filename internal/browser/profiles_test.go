package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProfileManager(t *testing.T) {
	m := NewProfileManager(filepath.Join(t.TempDir(), "profiles"))

	profiles, err := m.ListProfiles()
	if err != nil || len(profiles) != 0 {
		t.Fatalf("ListProfiles on missing dir = %v, %v", profiles, err)
	}

	dir, err := m.EnsureProfile("")
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if filepath.Base(dir) != "default" {
		t.Errorf("empty name resolved to %s", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cookies"), make([]byte, 2048), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.EnsureProfile("work"); err != nil {
		t.Fatal(err)
	}

	profiles, err = m.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 2 || profiles[0].Name != "default" || profiles[1].Name != "work" {
		t.Fatalf("profiles = %+v", profiles)
	}
	if profiles[0].Size != 2048 {
		t.Errorf("size = %d, want 2048", profiles[0].Size)
	}

	if err := m.ClearProfile("default"); err != nil {
		t.Fatalf("ClearProfile: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("profile not cleared: %d entries", len(entries))
	}
	if !m.Exists("default") {
		t.Error("ClearProfile removed the directory")
	}
	if err := m.ClearProfile("missing"); err == nil {
		t.Error("ClearProfile on a missing profile should fail")
	}
}

func TestEnsureProfileRemovesStaleLocks(t *testing.T) {
	m := NewProfileManager(t.TempDir())
	dir := m.Dir("default")
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	// Chrome's SingletonLock is a dangling symlink.
	if err := os.Symlink("host-12345", filepath.Join(dir, "SingletonLock")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SingletonCookie"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := m.EnsureProfile("default"); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	for _, name := range []string{"SingletonLock", "SingletonCookie"} {
		if _, err := os.Lstat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still present", name)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestBrowserConfigResolve(t *testing.T) {
	cfg := DefaultBrowserConfig()
	if cfg.ResolveTimeout() != 30*time.Second {
		t.Errorf("default timeout = %v", cfg.ResolveTimeout())
	}
	cfg.Timeout = "bogus"
	if cfg.ResolveTimeout() != 30*time.Second {
		t.Error("invalid timeout should fall back to 30s")
	}
	cfg.Timeout = "5s"
	if cfg.ResolveTimeout() != 5*time.Second {
		t.Errorf("timeout = %v", cfg.ResolveTimeout())
	}
	if got := cfg.ResolveProfilesDir("/base"); got != filepath.Join("/base", "browser", "profiles") {
		t.Errorf("profiles dir = %s", got)
	}
	cfg.Dir = "/opt/chromium"
	if got := cfg.ResolveBinDir("/base"); got != filepath.Join("/opt/chromium", "bin") {
		t.Errorf("bin dir = %s", got)
	}
}
