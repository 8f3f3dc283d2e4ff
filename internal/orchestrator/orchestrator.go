// Package orchestrator composes OCR, text structuring and storage into the
// three-stage digitization pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/bookdigitizer/internal/archive"
	"github.com/local/bookdigitizer/internal/metrics"
	"github.com/local/bookdigitizer/internal/ocr"
	"github.com/local/bookdigitizer/internal/store"
	"github.com/local/bookdigitizer/internal/structurer"
)

var (
	// ErrSourceNotFound reports a digitization source path that does not exist.
	ErrSourceNotFound = errors.New("source not found")
	// ErrNoExtractableText reports a source where no page produced OCR output.
	ErrNoExtractableText = errors.New("no text could be extracted")
)

// Extractor is the OCR stage consumed by the pipeline.
type Extractor interface {
	ProcessFile(path string) ([]ocr.Result, error)
	ProcessDirectory(dir string) ([]ocr.Result, error)
}

// Structurer is the text-understanding stage consumed by the pipeline.
type Structurer interface {
	StructureBatch(ctx context.Context, results []ocr.Result) []structurer.Record
}

// BookStore is the persistence stage consumed by the pipeline.
type BookStore interface {
	CreateBook(ctx context.Context, sourceLocation string, records []structurer.Record) (int64, error)
	GetBook(ctx context.Context, id int64) (*store.Book, error)
	GetBookPages(ctx context.Context, bookID int64) ([]store.PageDetail, error)
}

// StatusStore records run progress for external observers. Optional.
type StatusStore interface {
	Set(ctx context.Context, runID string, st store.RunStatus) error
}

// Dependencies wires the pipeline stages.
type Dependencies struct {
	Extractor  Extractor
	Structurer Structurer
	Store      BookStore
	Savers     []archive.Saver
	Status     StatusStore
}

// Pipeline runs the fixed three-step flow per source: OCR, structure,
// persist. Execution is sequential; no stage overlaps.
type Pipeline struct {
	deps Dependencies
}

func New(deps Dependencies) *Pipeline {
	return &Pipeline{deps: deps}
}

// SourceResult is the outcome of digitizing one source in a batch.
type SourceResult struct {
	Source string
	BookID int64
	Err    error
}

// Run digitizes a single file or directory of scans and returns the created
// book id. Any stage failure is fatal for the source; nothing partial is
// persisted.
func (p *Pipeline) Run(ctx context.Context, source string) (int64, error) {
	runID := uuid.NewString()
	started := time.Now()
	p.setStatus(ctx, runID, store.RunStatus{Stage: "ocr", Message: source, Start: &started})

	bookID, err := p.run(ctx, runID, source)
	ended := time.Now()
	if err != nil {
		metrics.IncSourceProcessed("failed")
		p.setStatus(ctx, runID, store.RunStatus{Stage: "failed", Message: err.Error(), Start: &started, End: &ended})
		return 0, err
	}

	metrics.IncSourceProcessed("success")
	p.setStatus(ctx, runID, store.RunStatus{
		Stage:    "done",
		Progress: 100,
		Message:  fmt.Sprintf("book %d", bookID),
		Start:    &started,
		End:      &ended,
	})
	return bookID, nil
}

func (p *Pipeline) run(ctx context.Context, runID, source string) (int64, error) {
	st, err := os.Stat(source)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}

	// Stage 1: OCR
	log.Info().Str("source", source).Str("run_id", runID).Msg("[1/3] running OCR")
	var results []ocr.Result
	if st.IsDir() {
		results, err = p.deps.Extractor.ProcessDirectory(source)
	} else {
		results, err = p.deps.Extractor.ProcessFile(source)
	}
	if err != nil {
		return 0, fmt.Errorf("ocr stage for %s: %w", source, err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w from %s", ErrNoExtractableText, source)
	}
	log.Info().Int("pages", len(results)).Msg("OCR complete")

	// Stage 2: structure
	p.setStatus(ctx, runID, store.RunStatus{Stage: "structuring", Progress: 33, Message: source})
	log.Info().Int("pages", len(results)).Msg("[2/3] structuring page text")
	records := p.deps.Structurer.StructureBatch(ctx, results)
	log.Info().Int("pages", len(records)).Msg("structuring complete")

	// Stage 3: persist
	p.setStatus(ctx, runID, store.RunStatus{Stage: "persisting", Progress: 66, Message: source})
	log.Info().Msg("[3/3] persisting book")
	bookID, err := p.deps.Store.CreateBook(ctx, source, records)
	if err != nil {
		return 0, fmt.Errorf("persist stage for %s: %w", source, err)
	}

	p.archiveBook(ctx, bookID)

	log.Info().Int64("book_id", bookID).Str("source", source).Msg("digitization complete")
	return bookID, nil
}

// RunBatch digitizes sources independently: a fatal failure on one source is
// logged and excluded; the rest still run.
func (p *Pipeline) RunBatch(ctx context.Context, sources []string) []SourceResult {
	results := make([]SourceResult, 0, len(sources))
	var failed int
	for _, source := range sources {
		bookID, err := p.Run(ctx, source)
		if err != nil {
			failed++
			log.Error().Err(err).Str("source", source).Msg("source failed")
		}
		results = append(results, SourceResult{Source: source, BookID: bookID, Err: err})
	}
	log.Info().Int("succeeded", len(sources)-failed).Int("failed", failed).Msg("batch complete")
	return results
}

// bookSnapshot is the JSON shape written to archives.
type bookSnapshot struct {
	Book  *store.Book        `json:"book"`
	Pages []store.PageDetail `json:"pages"`
}

// archiveBook writes a snapshot of the persisted book through every
// configured saver. Archive failures are logged, never fatal.
func (p *Pipeline) archiveBook(ctx context.Context, bookID int64) {
	if len(p.deps.Savers) == 0 {
		return
	}

	book, err := p.deps.Store.GetBook(ctx, bookID)
	if err != nil || book == nil {
		log.Error().Err(err).Int64("book_id", bookID).Msg("failed to load book for archive")
		return
	}
	pages, err := p.deps.Store.GetBookPages(ctx, bookID)
	if err != nil {
		log.Error().Err(err).Int64("book_id", bookID).Msg("failed to load pages for archive")
		return
	}

	data, err := json.MarshalIndent(bookSnapshot{Book: book, Pages: pages}, "", "  ")
	if err != nil {
		log.Error().Err(err).Int64("book_id", bookID).Msg("failed to encode archive")
		return
	}

	for _, saver := range p.deps.Savers {
		loc, err := saver.Save(ctx, bookID, data)
		if err != nil {
			log.Error().Err(err).Str("saver", saver.Name()).Int64("book_id", bookID).Msg("archive save failed")
			continue
		}
		log.Info().Str("saver", saver.Name()).Str("location", loc).Msg("book archived")
	}
}

func (p *Pipeline) setStatus(ctx context.Context, runID string, st store.RunStatus) {
	if p.deps.Status == nil {
		return
	}
	if err := p.deps.Status.Set(ctx, runID, st); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to update run status")
	}
}
