package ocr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/bookdigitizer/internal/config"
)

type fakeEngine struct {
	text        string
	confidences []float64
	err         error
	calls       int
}

func (f *fakeEngine) Recognize(img image.Image) (string, []float64, error) {
	f.calls++
	return f.text, f.confidences, f.err
}

func (f *fakeEngine) Close() error { return nil }

func testConfig() config.OCRConfig {
	return config.OCRConfig{
		Language:         "eng",
		DPI:              300,
		Preprocessing:    false,
		SupportedFormats: []string{".png", ".jpg", ".jpeg", ".pdf"},
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(3, 3, color.Gray{Y: 0})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestAverageConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"no tokens", nil, 0.0},
		{"single", []float64{91.0}, 91.0},
		{"mean", []float64{80.0, 90.0}, 85.0},
		{"rounds to two decimals", []float64{91.5, 90.0, 88.123}, 89.87},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := averageConfidence(tt.in); got != tt.want {
				t.Fatalf("averageConfidence(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractFromImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	writePNG(t, path)

	engine := &fakeEngine{text: "  It was the best of times. \n", confidences: []float64{92.0, 88.0}}
	e := NewExtractor(testConfig(), engine)

	res, err := e.ExtractFromImage(path, 3)
	if err != nil {
		t.Fatalf("ExtractFromImage: %v", err)
	}
	if res.RawText != "It was the best of times." {
		t.Errorf("RawText = %q, want trimmed text", res.RawText)
	}
	if res.Confidence != 90.0 {
		t.Errorf("Confidence = %v, want 90.0", res.Confidence)
	}
	if res.PageNumber != 3 {
		t.Errorf("PageNumber = %d, want 3", res.PageNumber)
	}
	if res.Language != "eng" {
		t.Errorf("Language = %q, want eng", res.Language)
	}
	if res.FilePath != path {
		t.Errorf("FilePath = %q, want %q", res.FilePath, path)
	}
}

func TestExtractFromImageRejectsNonImageContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.png")
	if err := os.WriteFile(path, []byte("this is not pixel data"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{text: "ignored"}
	e := NewExtractor(testConfig(), engine)

	_, err := e.ExtractFromImage(path, 1)
	var unreadable *UnreadableImageError
	if !errors.As(err, &unreadable) {
		t.Fatalf("expected UnreadableImageError, got %v", err)
	}
	if engine.calls != 0 {
		t.Errorf("engine called %d times on unreadable input", engine.calls)
	}
}

func TestProcessFileUnsupportedFormat(t *testing.T) {
	e := NewExtractor(testConfig(), &fakeEngine{})

	_, err := e.ProcessFile("notes.txt")
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if unsupported.Extension != ".txt" {
		t.Errorf("Extension = %q, want .txt", unsupported.Extension)
	}
}

func TestProcessDirectoryNotFound(t *testing.T) {
	e := NewExtractor(testConfig(), &fakeEngine{})

	_, err := e.ProcessDirectory(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrDirectoryNotFound) {
		t.Fatalf("expected ErrDirectoryNotFound, got %v", err)
	}
}

func TestProcessDirectorySkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	if err := os.WriteFile(filepath.Join(dir, "b.png"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "c.png"))
	// unsupported extension, ignored entirely
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{text: "some page text", confidences: []float64{90.0}}
	e := NewExtractor(testConfig(), engine)

	results, err := e.ProcessDirectory(dir)
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	wantFirst := filepath.Join(dir, "a.png")
	wantSecond := filepath.Join(dir, "c.png")
	if results[0].FilePath != wantFirst || results[1].FilePath != wantSecond {
		t.Errorf("results out of lexical order: %q, %q", results[0].FilePath, results[1].FilePath)
	}
}

func TestProcessDirectoryEmpty(t *testing.T) {
	e := NewExtractor(testConfig(), &fakeEngine{})

	results, err := e.ProcessDirectory(t.TempDir())
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results from empty directory, want 0", len(results))
	}
}

func TestRecognizeEngineFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	writePNG(t, path)

	engine := &fakeEngine{err: fmt.Errorf("tesseract exploded")}
	e := NewExtractor(testConfig(), engine)

	_, err := e.ExtractFromImage(path, 1)
	var unreadable *UnreadableImageError
	if !errors.As(err, &unreadable) {
		t.Fatalf("expected UnreadableImageError, got %v", err)
	}
}
