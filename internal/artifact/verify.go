package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// PDFMime is the MIME type of the expected artifact.
const PDFMime = "application/pdf"

// Verify sniffs the file content and fails unless it is of type want.
func Verify(path, want string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !mt.Is(want) {
		return fmt.Errorf("%s is %s, want %s", filepath.Base(path), mt.String(), want)
	}
	return nil
}

// Prune removes regular files in dir last modified more than age ago and
// returns how many were removed. Downloads otherwise accumulate across runs.
func Prune(dir string, age time.Duration) (int, error) {
	if age <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read downloads directory: %w", err)
	}

	cutoff := time.Now().Add(-age)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			L_warn("artifact: failed to prune download", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		L_info("artifact: pruned old downloads", "dir", dir, "removed", removed)
	}
	return removed, nil
}
