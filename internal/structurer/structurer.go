// Package structurer turns noisy OCR output into typed page records via an
// external text-understanding capability, with deterministic fallback for
// empty or failed input.
package structurer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/bookdigitizer/internal/ai"
	"github.com/local/bookdigitizer/internal/metrics"
	"github.com/local/bookdigitizer/internal/ocr"
)

// emptyNotes is the confidence note recorded for pages with no usable OCR
// text.
const emptyNotes = "Empty or unreadable OCR text"

// Record is a structured book page: cleaned text plus extracted metadata.
type Record struct {
	OriginalOCR      string
	CleanedText      string
	DetectedLanguage string
	LanguageCode     string
	Title            *string
	Author           *string
	Chapter          *string
	Genre            *string
	EstimatedPeriod  *string
	Themes           []string
	KeyPassages      []string
	Summary          string
	WritingStyle     string
	ConfidenceNotes  string
	OCRConfidence    float64
	SourceFile       string
	PageNumber       int
}

// response mirrors the provider's JSON contract. Pointer and slice fields
// distinguish absent keys so documented defaults can be applied.
type response struct {
	CleanedText      *string  `json:"cleaned_text"`
	DetectedLanguage *string  `json:"detected_language"`
	LanguageCode     *string  `json:"language_code"`
	Metadata         struct {
		Title           *string `json:"title"`
		Author          *string `json:"author"`
		Chapter         *string `json:"chapter"`
		Genre           *string `json:"genre"`
		EstimatedPeriod *string `json:"estimated_period"`
	} `json:"metadata"`
	Themes          []string `json:"themes"`
	KeyPassages     []string `json:"key_passages"`
	Summary         *string  `json:"summary"`
	WritingStyle    *string  `json:"writing_style"`
	ConfidenceNotes *string  `json:"confidence_notes"`
}

// Structurer sends OCR text to a text-understanding client and parses the
// structured result.
type Structurer struct {
	client ai.Client
}

func New(client ai.Client) *Structurer {
	return &Structurer{client: client}
}

// Structure processes one OCR result. Empty or whitespace-only input yields
// the fallback record without any external call. A malformed provider
// response is an error.
func (s *Structurer) Structure(ctx context.Context, res ocr.Result) (Record, error) {
	if strings.TrimSpace(res.RawText) == "" {
		log.Warn().Str("file", res.FilePath).Int("page", res.PageNumber).Msg("empty OCR text")
		metrics.IncStructure("empty")
		return fallbackRecord(res, ""), nil
	}

	log.Info().
		Str("file", res.FilePath).
		Int("page", res.PageNumber).
		Int("chars", len(res.RawText)).
		Str("provider", s.client.Name()).
		Msg("structuring page text")

	raw, err := s.client.Structure(ctx, ai.Request{Text: res.RawText, Confidence: res.Confidence})
	if err != nil {
		return Record{}, err
	}

	var payload response
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Record{}, fmt.Errorf("malformed structuring response: %w", err)
	}

	rec := Record{
		OriginalOCR:      res.RawText,
		CleanedText:      stringOr(payload.CleanedText, res.RawText),
		DetectedLanguage: stringOr(payload.DetectedLanguage, "Unknown"),
		LanguageCode:     stringOr(payload.LanguageCode, "und"),
		Title:            payload.Metadata.Title,
		Author:           payload.Metadata.Author,
		Chapter:          payload.Metadata.Chapter,
		Genre:            payload.Metadata.Genre,
		EstimatedPeriod:  payload.Metadata.EstimatedPeriod,
		Themes:           sliceOrEmpty(payload.Themes),
		KeyPassages:      sliceOrEmpty(payload.KeyPassages),
		Summary:          stringOr(payload.Summary, ""),
		WritingStyle:     stringOr(payload.WritingStyle, ""),
		ConfidenceNotes:  stringOr(payload.ConfidenceNotes, ""),
		OCRConfidence:    res.Confidence,
		SourceFile:       res.FilePath,
		PageNumber:       res.PageNumber,
	}
	metrics.IncStructure("success")
	return rec, nil
}

// StructureBatch processes results in input order. A failure on one item is
// replaced by a fallback record carrying the error message; it never aborts
// the remaining items.
func (s *Structurer) StructureBatch(ctx context.Context, results []ocr.Result) []Record {
	records := make([]Record, 0, len(results))
	for i, res := range results {
		log.Info().Int("item", i+1).Int("total", len(results)).Msg("structuring batch item")
		rec, err := s.Structure(ctx, res)
		if err != nil {
			log.Error().Err(err).Str("file", res.FilePath).Int("page", res.PageNumber).Msg("structuring failed")
			metrics.IncStructure("fallback")
			rec = fallbackRecord(res, err.Error())
		}
		records = append(records, rec)
	}
	return records
}

// fallbackRecord is the deterministic degraded record for empty input or a
// failed structuring call.
func fallbackRecord(res ocr.Result, errMsg string) Record {
	notes := errMsg
	if notes == "" {
		notes = emptyNotes
	}
	return Record{
		OriginalOCR:      res.RawText,
		CleanedText:      "",
		DetectedLanguage: "Unknown",
		LanguageCode:     "und",
		Themes:           []string{},
		KeyPassages:      []string{},
		ConfidenceNotes:  notes,
		OCRConfidence:    res.Confidence,
		SourceFile:       res.FilePath,
		PageNumber:       res.PageNumber,
	}
}

func stringOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
