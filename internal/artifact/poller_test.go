package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roelfdiedericks/formclaw/internal/dom"
)

const pdfBody = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotMissingDirIsEmpty(t *testing.T) {
	snap := TakeSnapshot(filepath.Join(t.TempDir(), "nope"))
	if len(snap) != 0 {
		t.Errorf("snapshot = %v, want empty", snap)
	}
}

func TestHasSuffix(t *testing.T) {
	match := HasSuffix("pdf")
	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"REPORT.PDF", true},
		{"report.pdf.crdownload", false},
		{"report.txt", false},
		{"pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := match(tt.name) && !IsPartial(tt.name)
			if got != tt.want {
				t.Errorf("qualifies(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestAwaitNewFileIgnoresExistingAndPartial(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), pdfBody)
	before := TakeSnapshot(dir)

	writeFile(t, filepath.Join(dir, "c.crdownload"), "partial")
	writeFile(t, filepath.Join(dir, "b.pdf"), pdfBody)

	p := NewPoller(".pdf")
	got, err := p.AwaitNewFile(context.Background(), dir, before, time.Second)
	if err != nil {
		t.Fatalf("AwaitNewFile: %v", err)
	}
	if got != filepath.Join(dir, "b.pdf") {
		t.Errorf("got %s, want b.pdf", got)
	}
}

func TestAwaitNewFileArrivesLater(t *testing.T) {
	dir := t.TempDir()
	before := TakeSnapshot(dir)

	go func() {
		time.Sleep(50 * time.Millisecond)
		partial := filepath.Join(dir, "report.pdf.crdownload")
		os.WriteFile(partial, []byte(pdfBody), 0644)
		time.Sleep(50 * time.Millisecond)
		os.Rename(partial, filepath.Join(dir, "report.pdf"))
	}()

	p := NewPoller("pdf")
	got, err := p.AwaitNewFile(context.Background(), dir, before, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitNewFile: %v", err)
	}
	if filepath.Base(got) != "report.pdf" {
		t.Errorf("got %s, want report.pdf", got)
	}
}

func TestAwaitNewFilePicksLexicographicallyFirst(t *testing.T) {
	dir := t.TempDir()
	before := TakeSnapshot(dir)
	writeFile(t, filepath.Join(dir, "zeta.pdf"), pdfBody)
	writeFile(t, filepath.Join(dir, "alpha.pdf"), pdfBody)

	got, err := NewPoller("pdf").AwaitNewFile(context.Background(), dir, before, time.Second)
	if err != nil {
		t.Fatalf("AwaitNewFile: %v", err)
	}
	if filepath.Base(got) != "alpha.pdf" {
		t.Errorf("got %s, want alpha.pdf", got)
	}
}

func TestAwaitNewFileTimeout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.pdf"), pdfBody)
	before := TakeSnapshot(dir)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a pdf")

	p := &Poller{Interval: 20 * time.Millisecond, Match: HasSuffix("pdf")}
	timeout := 200 * time.Millisecond

	start := time.Now()
	_, err := p.AwaitNewFile(context.Background(), dir, before, timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, dom.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if elapsed < timeout {
		t.Errorf("gave up after %v, before the %v timeout", elapsed, timeout)
	}
	if elapsed > timeout+p.Interval+150*time.Millisecond {
		t.Errorf("gave up after %v, too long past the %v timeout", elapsed, timeout)
	}
}

func TestAwaitNewFileDirectoryCreatedLater(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	before := TakeSnapshot(dir)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.MkdirAll(dir, 0755)
		os.WriteFile(filepath.Join(dir, "report.pdf"), []byte(pdfBody), 0644)
	}()

	got, err := NewPoller("pdf").AwaitNewFile(context.Background(), dir, before, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitNewFile: %v", err)
	}
	if filepath.Base(got) != "report.pdf" {
		t.Errorf("got %s", got)
	}
}

func TestAwaitNewFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPoller("pdf").AwaitNewFile(ctx, t.TempDir(), Snapshot{}, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPollerIntervalCapped(t *testing.T) {
	p := &Poller{Interval: time.Minute}
	if p.interval() != MaxInterval {
		t.Errorf("interval = %v, want %v", p.interval(), MaxInterval)
	}
	if (&Poller{}).interval() != DefaultInterval {
		t.Error("zero interval should use the default")
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "report.pdf")
	writeFile(t, pdf, pdfBody)
	if err := Verify(pdf, PDFMime); err != nil {
		t.Errorf("Verify(pdf): %v", err)
	}

	fake := filepath.Join(dir, "fake.pdf")
	writeFile(t, fake, "<html><body>error page</body></html>")
	if err := Verify(fake, PDFMime); err == nil {
		t.Error("Verify accepted an HTML file")
	}

	if err := Verify(filepath.Join(dir, "missing.pdf"), PDFMime); err == nil {
		t.Error("Verify accepted a missing file")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.pdf")
	fresh := filepath.Join(dir, "fresh.pdf")
	writeFile(t, old, pdfBody)
	writeFile(t, fresh, pdfBody)
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	n, err := Prune(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file removed")
	}

	if n, _ := Prune(dir, 0); n != 0 {
		t.Error("zero age should keep everything")
	}
}
