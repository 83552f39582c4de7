// Package extract turns a scanned PDF into text: poppler's pdftoppm renders
// each page, imaging cleans the page up, and tesseract reads it.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// Config controls rendering and recognition.
type Config struct {
	DPI       int     `json:"dpi"`       // page render resolution
	Lang      string  `json:"lang"`      // tesseract language
	Contrast  float64 `json:"contrast"`  // percentage passed to imaging.AdjustContrast, 0 = unchanged
	Pdftoppm  string  `json:"pdftoppm"`  // binary, empty = PATH lookup
	Tesseract string  `json:"tesseract"` // binary, empty = PATH lookup
}

// DefaultConfig matches the scans the target application produces.
func DefaultConfig() Config {
	return Config{DPI: 300, Lang: "eng", Contrast: 20}
}

// runFunc runs a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: binaries from config
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Extractor OCRs PDFs.
type Extractor struct {
	cfg Config
	run runFunc
}

// New returns an extractor using the external pdftoppm and tesseract tools.
func New(cfg Config) *Extractor {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	return &Extractor{cfg: cfg, run: execRun}
}

// Check reports a missing external tool before a run starts.
func (x *Extractor) Check() error {
	for _, bin := range []string{x.cfg.Pdftoppm, x.cfg.Tesseract} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found: %w", bin, err)
		}
	}
	return nil
}

// ExtractText returns the text of every page of the PDF at path, in page order.
func (x *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	start := time.Now()

	tmp, err := os.MkdirTemp("", "formclaw-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create OCR work directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	pages, err := x.render(ctx, path, tmp)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		clean, err := x.preprocess(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		out, err := x.run(ctx, x.cfg.Tesseract, clean, "stdout", "-l", x.cfg.Lang)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		text.Write(out)
		L_trace("extract: page recognized", "page", i+1, "chars", len(out))
	}

	L_elapsed(start, "extract: OCR complete", "file", filepath.Base(path), "pages", len(pages), "chars", text.Len())
	return text.String(), nil
}

// render writes one PNG per page into dir and returns them in page order.
func (x *Extractor) render(ctx context.Context, pdf, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	if _, err := x.run(ctx, x.cfg.Pdftoppm, "-r", strconv.Itoa(x.cfg.DPI), "-png", pdf, prefix); err != nil {
		return nil, err
	}
	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(pdf))
	}
	sort.Slice(pages, func(i, j int) bool { return pageNumber(pages[i]) < pageNumber(pages[j]) })
	return pages, nil
}

// pageNumber parses the n of ".../page-n.png".
func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	n, _ := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
	return n
}

// preprocess converts a page to grayscale with boosted contrast, which
// tesseract reads more reliably than the colored render.
func (x *Extractor) preprocess(path string) (string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open page image: %w", err)
	}
	gray := imaging.Grayscale(img)
	if x.cfg.Contrast != 0 {
		gray = imaging.AdjustContrast(gray, x.cfg.Contrast)
	}
	out := strings.TrimSuffix(path, ".png") + "-gray.png"
	if err := imaging.Save(gray, out); err != nil {
		return "", fmt.Errorf("failed to save page image: %w", err)
	}
	return out, nil
}
