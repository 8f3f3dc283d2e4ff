// Package ocr extracts text from scanned book pages: single images, whole
// directories of page scans, or multi-page PDFs rasterized page by page.
package ocr

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/bookdigitizer/internal/config"
	"github.com/local/bookdigitizer/internal/filetype"
	"github.com/local/bookdigitizer/internal/metrics"
	"github.com/local/bookdigitizer/internal/preprocess"
)

// Result is the outcome of recognizing one page.
type Result struct {
	FilePath   string
	PageNumber int
	RawText    string
	Confidence float64
	Language   string
}

// Extractor runs recognition over preprocessed page scans.
type Extractor struct {
	cfg      config.OCRConfig
	engine   Engine
	detector *filetype.Detector
}

// NewExtractor builds an extractor around the given recognition engine.
func NewExtractor(cfg config.OCRConfig, engine Engine) *Extractor {
	return &Extractor{cfg: cfg, engine: engine, detector: filetype.New()}
}

// ExtractFromImage recognizes text in a single image file.
func (e *Extractor) ExtractFromImage(path string, pageNumber int) (Result, error) {
	log.Info().Str("file", path).Msg("processing image")

	info, err := e.detector.Detect(path)
	if err != nil {
		return Result{}, &UnreadableImageError{Path: path, Err: err}
	}
	if !info.IsImage {
		return Result{}, &UnreadableImageError{Path: path, Err: fmt.Errorf("content type %s is not an image", info.MIMEType)}
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, &UnreadableImageError{Path: path, Err: err}
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return Result{}, &UnreadableImageError{Path: path, Err: err}
	}

	return e.recognize(img, path, pageNumber)
}

// ExtractFromPDF rasterizes every page of a PDF at the configured DPI and
// recognizes each page separately.
func (e *Extractor) ExtractFromPDF(path string) ([]Result, error) {
	log.Info().Str("file", path).Msg("processing PDF")

	if _, err := api.PageCountFile(path); err != nil {
		return nil, fmt.Errorf("pdf validation failed for %s: %w", path, err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	results := make([]Result, 0, total)
	for i := 0; i < total; i++ {
		img, err := doc.ImageDPI(i, float64(e.cfg.DPI))
		if err != nil {
			return nil, fmt.Errorf("rasterize page %d of %s: %w", i+1, path, err)
		}

		res, err := e.recognize(img, path, i+1)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		log.Info().Int("page", i+1).Int("total", total).Float64("confidence", res.Confidence).Msg("page done")
	}
	return results, nil
}

// ProcessFile dispatches on the file extension: images yield one result,
// PDFs one per page.
func (e *Extractor) ProcessFile(path string) ([]Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.supported(ext) {
		return nil, &UnsupportedFormatError{Extension: ext, Supported: e.cfg.SupportedFormats}
	}

	if ext == ".pdf" {
		return e.ExtractFromPDF(path)
	}
	res, err := e.ExtractFromImage(path, 1)
	if err != nil {
		return nil, err
	}
	return []Result{res}, nil
}

// ProcessDirectory runs ProcessFile over every supported file in the
// directory in lexical order. A failure on one file is logged and skipped;
// it never aborts the remaining files.
func (e *Extractor) ProcessDirectory(dir string) ([]Result, error) {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if e.supported(strings.ToLower(filepath.Ext(entry.Name()))) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	log.Info().Int("files", len(files)).Str("dir", dir).Msg("found files to process")

	var all []Result
	for _, file := range files {
		results, err := e.ProcessFile(file)
		if err != nil {
			metrics.IncPageOCR("unreadable")
			log.Error().Err(err).Str("file", file).Msg("failed to process file")
			continue
		}
		all = append(all, results...)
	}
	return all, nil
}

func (e *Extractor) recognize(img image.Image, path string, pageNumber int) (Result, error) {
	if e.cfg.Preprocessing {
		img = preprocess.Preprocess(img)
	}

	text, confidences, err := e.engine.Recognize(img)
	if err != nil {
		return Result{}, &UnreadableImageError{Path: path, Err: err}
	}

	conf := averageConfidence(confidences)
	metrics.IncPageOCR("success")
	metrics.ObserveConfidence(conf)

	return Result{
		FilePath:   path,
		PageNumber: pageNumber,
		RawText:    strings.TrimSpace(text),
		Confidence: conf,
		Language:   e.cfg.Language,
	}, nil
}

func (e *Extractor) supported(ext string) bool {
	for _, s := range e.cfg.SupportedFormats {
		if ext == s {
			return true
		}
	}
	return false
}

// averageConfidence averages usable per-token confidences, rounded to two
// decimals; no usable tokens means 0.
func averageConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0.0
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	return math.Round(sum/float64(len(confidences))*100) / 100
}
