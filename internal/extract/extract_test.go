package extract

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

// fakeTools stands in for pdftoppm and tesseract. Rendering writes pages
// PNGs; recognition returns "text of <image>".
type fakeTools struct {
	pages  int
	calls  []string
	ocrErr error
}

func (f *fakeTools) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= f.pages; i++ {
			img := imaging.New(8, 8, color.NRGBA{R: 200, G: 20, B: 20, A: 255})
			if err := imaging.Save(img, fmt.Sprintf("%s-%d.png", prefix, i)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		if f.ocrErr != nil {
			return nil, f.ocrErr
		}
		return []byte("text of " + filepath.Base(args[0]) + "\n"), nil
	}
	return nil, fmt.Errorf("unexpected command %s", name)
}

func newFake(pages int) (*Extractor, *fakeTools) {
	f := &fakeTools{pages: pages}
	x := New(Config{})
	x.run = f.run
	return x, f
}

func TestExtractTextPageOrder(t *testing.T) {
	x, f := newFake(11)

	text, err := x.ExtractText(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 11 {
		t.Fatalf("got %d pages of text, want 11", len(lines))
	}
	// page-10 sorts before page-2 lexically; order must be numeric
	if lines[1] != "text of page-2-gray.png" || lines[10] != "text of page-11-gray.png" {
		t.Errorf("pages out of order: %v", lines)
	}

	if !strings.HasPrefix(f.calls[0], "pdftoppm -r 300 -png scan.pdf ") {
		t.Errorf("render call = %q", f.calls[0])
	}
	if !strings.HasSuffix(f.calls[1], "stdout -l eng") {
		t.Errorf("ocr call = %q", f.calls[1])
	}
}

func TestExtractTextPreprocessesToGray(t *testing.T) {
	x, _ := newFake(1)
	var seen string
	run := x.run
	x.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "tesseract" {
			img, err := imaging.Open(args[0])
			if err != nil {
				return nil, err
			}
			c := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA)
			if c.R != c.G || c.G != c.B {
				return nil, fmt.Errorf("pixel not gray: %v", c)
			}
			seen = args[0]
		}
		return run(ctx, name, args...)
	}

	if _, err := x.ExtractText(context.Background(), "scan.pdf"); err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if seen == "" {
		t.Fatal("tesseract never ran")
	}
}

func TestExtractTextNoPages(t *testing.T) {
	x, _ := newFake(0)
	if _, err := x.ExtractText(context.Background(), "empty.pdf"); err == nil {
		t.Fatal("expected error for a PDF without pages")
	}
}

func TestExtractTextOCRFailure(t *testing.T) {
	x, f := newFake(2)
	f.ocrErr = errors.New("tesseract exploded")
	_, err := x.ExtractText(context.Background(), "scan.pdf")
	if !errors.Is(err, f.ocrErr) {
		t.Fatalf("err = %v, want wrapped OCR error", err)
	}
	if !strings.Contains(err.Error(), "page 1") {
		t.Errorf("error does not name the page: %v", err)
	}
}

func TestExtractTextCancelled(t *testing.T) {
	x, _ := newFake(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := x.ExtractText(ctx, "scan.pdf"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewDefaults(t *testing.T) {
	x := New(Config{})
	if x.cfg.DPI != 300 || x.cfg.Lang != "eng" || x.cfg.Pdftoppm != "pdftoppm" || x.cfg.Tesseract != "tesseract" {
		t.Errorf("defaults = %+v", x.cfg)
	}
}

func TestPageNumber(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"/tmp/x/page-1.png", 1},
		{"/tmp/x/page-01.png", 1},
		{"/tmp/x/page-12.png", 12},
		{"/tmp/x/page.png", 0},
	}
	for _, tt := range tests {
		if got := pageNumber(tt.path); got != tt.want {
			t.Errorf("pageNumber(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}
