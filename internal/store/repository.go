package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/local/bookdigitizer/internal/metrics"
	"github.com/local/bookdigitizer/internal/structurer"
)

const snippetContext = 150

// Book is one digitized physical work.
type Book struct {
	ID               int64
	Title            *string
	Author           *string
	Genre            *string
	DetectedLanguage *string
	LanguageCode     *string
	EstimatedPeriod  *string
	SourceDirectory  string
	TotalPages       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PageDetail is a page projection with its themes and passages.
type PageDetail struct {
	PageNumber    int
	Chapter       *string
	CleanedText   string
	Summary       string
	OCRConfidence float64
	Themes        []string
	Passages      []string
}

// SearchResult is one page matching a text search, with a bounded snippet.
type SearchResult struct {
	BookID     int64
	BookTitle  *string
	PageNumber int
	Chapter    *string
	Snippet    string
}

// ThemeCount pairs a theme with the number of pages referencing it.
type ThemeCount struct {
	ID        int64
	Name      string
	PageCount int
}

// ThemePage is a page projection under a given theme.
type ThemePage struct {
	BookID     int64
	BookTitle  *string
	PageNumber int
	Summary    string
}

// Repository handles all database operations for the digitization pipeline.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateTables creates the schema if it does not exist.
func (r *Repository) CreateTables(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	log.Info().Msg("database tables created/verified")
	return nil
}

// CreateBook persists a book with all its pages, passages and themes in one
// transaction. Book-level metadata comes from the first record with a title
// or non-empty cleaned text. Any failure rolls back the whole book.
func (r *Repository) CreateBook(ctx context.Context, sourceLocation string, records []structurer.Record) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var meta *structurer.Record
	for i := range records {
		if records[i].Title != nil || records[i].CleanedText != "" {
			meta = &records[i]
			break
		}
	}

	var title, author, genre, lang, langCode, period *string
	if meta != nil {
		title, author, genre, period = meta.Title, meta.Author, meta.Genre, meta.EstimatedPeriod
		lang, langCode = &meta.DetectedLanguage, &meta.LanguageCode
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO books (title, author, genre, detected_language, language_code, estimated_period, source_directory, total_pages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, title, author, genre, lang, langCode, period, sourceLocation, len(records))
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	bookID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("book id: %w", err)
	}

	for _, rec := range records {
		pageRes, err := tx.ExecContext(ctx, `
			INSERT INTO pages (book_id, page_number, source_file, chapter, raw_ocr_text, ocr_confidence, cleaned_text, summary, writing_style, confidence_notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, bookID, rec.PageNumber, rec.SourceFile, rec.Chapter, rec.OriginalOCR, rec.OCRConfidence,
			rec.CleanedText, rec.Summary, rec.WritingStyle, rec.ConfidenceNotes)
		if err != nil {
			return 0, fmt.Errorf("insert page %d: %w", rec.PageNumber, err)
		}
		pageID, err := pageRes.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("page id: %w", err)
		}

		for _, passage := range rec.KeyPassages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO passages (page_id, text, passage_type) VALUES (?, ?, 'quote')
			`, pageID, passage); err != nil {
				return 0, fmt.Errorf("insert passage: %w", err)
			}
		}

		for _, theme := range rec.Themes {
			themeID, err := getOrCreateTheme(ctx, tx, theme)
			if err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO page_themes (page_id, theme_id) VALUES (?, ?)
			`, pageID, themeID); err != nil {
				return 0, fmt.Errorf("link theme %q: %w", theme, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit book: %w", err)
	}

	metrics.IncBookCreated()
	log.Info().Int64("book_id", bookID).Int("pages", len(records)).Msg("saved book")
	return bookID, nil
}

// getOrCreateTheme reuses an existing theme row by exact name or creates it.
// The insert tolerates a concurrently created row, so the re-select always
// resolves.
func getOrCreateTheme(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM themes WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("select theme %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO themes (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("insert theme %q: %w", name, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM themes WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("reselect theme %q: %w", name, err)
	}
	return id, nil
}

// GetBook returns one book by id, or nil when absent.
func (r *Repository) GetBook(ctx context.Context, id int64) (*Book, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, author, genre, detected_language, language_code, estimated_period,
		       source_directory, total_pages, created_at, updated_at
		FROM books WHERE id = ?
	`, id)

	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// ListBooks returns all books, newest first.
func (r *Repository) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, author, genre, detected_language, language_code, estimated_period,
		       source_directory, total_pages, created_at, updated_at
		FROM books ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*Book, error) {
	var (
		b      Book
		title  sql.NullString
		author sql.NullString
		genre  sql.NullString
		lang   sql.NullString
		code   sql.NullString
		period sql.NullString
	)
	if err := row.Scan(&b.ID, &title, &author, &genre, &lang, &code, &period,
		&b.SourceDirectory, &b.TotalPages, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Title = nullableString(title)
	b.Author = nullableString(author)
	b.Genre = nullableString(genre)
	b.DetectedLanguage = nullableString(lang)
	b.LanguageCode = nullableString(code)
	b.EstimatedPeriod = nullableString(period)
	return &b, nil
}

// GetBookPages returns the pages of a book in page order, each with its
// themes and passages.
func (r *Repository) GetBookPages(ctx context.Context, bookID int64) ([]PageDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, page_number, chapter, cleaned_text, summary, ocr_confidence
		FROM pages WHERE book_id = ? ORDER BY page_number ASC
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book pages: %w", err)
	}
	defer rows.Close()

	type pageRow struct {
		id   int64
		page PageDetail
	}
	var pageRows []pageRow
	for rows.Next() {
		var (
			pr      pageRow
			chapter sql.NullString
			conf    sql.NullFloat64
		)
		if err := rows.Scan(&pr.id, &pr.page.PageNumber, &chapter, &pr.page.CleanedText, &pr.page.Summary, &conf); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pr.page.Chapter = nullableString(chapter)
		pr.page.OCRConfidence = conf.Float64
		pageRows = append(pageRows, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pages := []PageDetail{}
	for _, pr := range pageRows {
		themes, err := r.pageThemes(ctx, pr.id)
		if err != nil {
			return nil, err
		}
		passages, err := r.pagePassages(ctx, pr.id)
		if err != nil {
			return nil, err
		}
		pr.page.Themes = themes
		pr.page.Passages = passages
		pages = append(pages, pr.page)
	}
	return pages, nil
}

func (r *Repository) pageThemes(ctx context.Context, pageID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM themes t
		JOIN page_themes pt ON pt.theme_id = t.id
		WHERE pt.page_id = ? ORDER BY t.name
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("page themes: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Repository) pagePassages(ctx context.Context, pageID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT text FROM passages WHERE page_id = ? ORDER BY id
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("page passages: %w", err)
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

// SearchText matches the query case-insensitively against every page's
// cleaned text and returns bounded snippets around the first occurrence.
// Matching happens in Go: sqlite's lower() folds ASCII only, which would
// miss queries in the non-Latin scripts this pipeline ingests.
func (r *Repository) SearchText(ctx context.Context, query string) ([]SearchResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.book_id, b.title, p.page_number, p.chapter, p.cleaned_text
		FROM pages p
		JOIN books b ON b.id = p.book_id
		ORDER BY p.book_id, p.page_number
	`)
	if err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	defer rows.Close()

	queryRunes := []rune(query)
	results := []SearchResult{}
	for rows.Next() {
		var (
			sr      SearchResult
			title   sql.NullString
			chapter sql.NullString
			text    string
		)
		if err := rows.Scan(&sr.BookID, &title, &sr.PageNumber, &chapter, &text); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if runeIndexFold([]rune(text), queryRunes) == -1 {
			continue
		}
		sr.BookTitle = nullableString(title)
		sr.Chapter = nullableString(chapter)
		sr.Snippet = extractSnippet(text, query)
		results = append(results, sr)
	}
	return results, rows.Err()
}

// GetAllThemes returns every theme with the number of pages referencing it.
func (r *Repository) GetAllThemes(ctx context.Context) ([]ThemeCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, COUNT(pt.page_id)
		FROM themes t
		LEFT JOIN page_themes pt ON pt.theme_id = t.id
		GROUP BY t.id, t.name
		ORDER BY t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("get all themes: %w", err)
	}
	defer rows.Close()

	themes := []ThemeCount{}
	for rows.Next() {
		var tc ThemeCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.PageCount); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		themes = append(themes, tc)
	}
	return themes, rows.Err()
}

// GetPagesByTheme returns the pages linked to the named theme. An unknown
// theme yields an empty list.
func (r *Repository) GetPagesByTheme(ctx context.Context, name string) ([]ThemePage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.book_id, b.title, p.page_number, p.summary
		FROM pages p
		JOIN books b ON b.id = p.book_id
		JOIN page_themes pt ON pt.page_id = p.id
		JOIN themes t ON t.id = pt.theme_id
		WHERE t.name = ?
		ORDER BY p.book_id, p.page_number
	`, name)
	if err != nil {
		return nil, fmt.Errorf("get pages by theme: %w", err)
	}
	defer rows.Close()

	pages := []ThemePage{}
	for rows.Next() {
		var (
			tp    ThemePage
			title sql.NullString
		)
		if err := rows.Scan(&tp.BookID, &title, &tp.PageNumber, &tp.Summary); err != nil {
			return nil, fmt.Errorf("scan theme page: %w", err)
		}
		tp.BookTitle = nullableString(title)
		pages = append(pages, tp)
	}
	return pages, rows.Err()
}

// extractSnippet pulls up to snippetContext characters of context on each
// side of the first case-insensitive match, marking truncated ends with
// "...". With no occurrence it falls back to the leading 2*snippetContext
// characters. Indexing is rune-based so multibyte scripts get full context
// and snippets never split a character.
func extractSnippet(text, query string) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	queryRunes := []rune(query)
	idx := runeIndexFold(runes, queryRunes)
	if idx == -1 {
		if len(runes) <= 2*snippetContext {
			return text + "..."
		}
		return string(runes[:2*snippetContext]) + "..."
	}
	start := idx - snippetContext
	if start < 0 {
		start = 0
	}
	end := idx + len(queryRunes) + snippetContext
	if end > len(runes) {
		end = len(runes)
	}
	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// runeIndexFold returns the rune offset of the first case-insensitive
// occurrence of query in text, or -1. Folding is per rune, which keeps
// offsets aligned with the original text; strings.ToLower cannot be used
// for this because it may change the length of some characters.
func runeIndexFold(text, query []rune) int {
	if len(query) == 0 || len(query) > len(text) {
		return -1
	}
	for i := 0; i+len(query) <= len(text); i++ {
		match := true
		for j, q := range query {
			if unicode.ToLower(text[i+j]) != unicode.ToLower(q) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
