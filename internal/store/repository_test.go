package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/local/bookdigitizer/internal/config"
	"github.com/local/bookdigitizer/internal/structurer"
)

func newTestRepo(t *testing.T) (*sql.DB, *Repository) {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	if err := repo.CreateTables(context.Background()); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return db, repo
}

func strPtr(s string) *string { return &s }

func pageRecord(page int, text string, themes, passages []string) structurer.Record {
	return structurer.Record{
		OriginalOCR:      text,
		CleanedText:      text,
		DetectedLanguage: "English",
		LanguageCode:     "en",
		Themes:           themes,
		KeyPassages:      passages,
		Summary:          "a summary",
		OCRConfidence:    88.5,
		SourceFile:       "scan.png",
		PageNumber:       page,
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestCreateBookPersistsEverything(t *testing.T) {
	db, repo := newTestRepo(t)
	ctx := context.Background()

	rec1 := pageRecord(1, "first page text", []string{"memory", "loss"}, []string{"a key passage"})
	rec1.Title = strPtr("Remembrance")
	rec1.Author = strPtr("M. Proust")
	rec2 := pageRecord(2, "second page text", []string{"memory"}, nil)

	bookID, err := repo.CreateBook(ctx, "/scans/proust", []structurer.Record{rec1, rec2})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if bookID <= 0 {
		t.Fatalf("bookID = %d", bookID)
	}

	if got := countRows(t, db, "pages"); got != 2 {
		t.Errorf("pages = %d, want 2", got)
	}
	if got := countRows(t, db, "passages"); got != 1 {
		t.Errorf("passages = %d, want 1", got)
	}
	if got := countRows(t, db, "themes"); got != 2 {
		t.Errorf("themes = %d, want 2 (memory deduplicated)", got)
	}
	if got := countRows(t, db, "page_themes"); got != 3 {
		t.Errorf("page_themes = %d, want 3", got)
	}

	book, err := repo.GetBook(ctx, bookID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if book == nil {
		t.Fatal("GetBook returned nil for existing book")
	}
	if book.Title == nil || *book.Title != "Remembrance" {
		t.Errorf("Title = %v", book.Title)
	}
	if book.Author == nil || *book.Author != "M. Proust" {
		t.Errorf("Author = %v", book.Author)
	}
	if book.SourceDirectory != "/scans/proust" {
		t.Errorf("SourceDirectory = %q", book.SourceDirectory)
	}
	if book.TotalPages != 2 {
		t.Errorf("TotalPages = %d", book.TotalPages)
	}
}

func TestCreateBookMetadataFromFirstUsableRecord(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()

	blank := pageRecord(1, "", nil, nil)
	blank.DetectedLanguage = "Unknown"
	blank.LanguageCode = "und"
	usable := pageRecord(2, "actual content", nil, nil)
	usable.Title = strPtr("Found Title")

	bookID, err := repo.CreateBook(ctx, "/scans/mixed", []structurer.Record{blank, usable})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	book, err := repo.GetBook(ctx, bookID)
	if err != nil || book == nil {
		t.Fatalf("GetBook: %v, %v", book, err)
	}
	if book.Title == nil || *book.Title != "Found Title" {
		t.Errorf("Title = %v, want metadata from first usable record", book.Title)
	}
	if book.DetectedLanguage == nil || *book.DetectedLanguage != "English" {
		t.Errorf("DetectedLanguage = %v", book.DetectedLanguage)
	}
}

func TestCreateBookRollsBackOnDuplicatePage(t *testing.T) {
	db, repo := newTestRepo(t)
	ctx := context.Background()

	records := []structurer.Record{
		pageRecord(1, "page one", []string{"conflict"}, []string{"quote"}),
		pageRecord(1, "page one again", nil, nil),
	}
	if _, err := repo.CreateBook(ctx, "/scans/dup", records); err == nil {
		t.Fatal("expected error for duplicate page number")
	}

	for _, table := range []string{"books", "pages", "passages", "themes", "page_themes"} {
		if got := countRows(t, db, table); got != 0 {
			t.Errorf("%s = %d rows after rollback, want 0", table, got)
		}
	}
}

func TestThemeDeduplicationAcrossBooks(t *testing.T) {
	db, repo := newTestRepo(t)
	ctx := context.Background()

	first := []structurer.Record{pageRecord(1, "text", []string{"redemption", "war"}, nil)}
	second := []structurer.Record{pageRecord(1, "text", []string{"redemption"}, nil)}

	if _, err := repo.CreateBook(ctx, "/scans/one", first); err != nil {
		t.Fatalf("first CreateBook: %v", err)
	}
	if _, err := repo.CreateBook(ctx, "/scans/two", second); err != nil {
		t.Fatalf("second CreateBook: %v", err)
	}

	if got := countRows(t, db, "themes"); got != 2 {
		t.Fatalf("themes = %d, want 2", got)
	}

	themes, err := repo.GetAllThemes(ctx)
	if err != nil {
		t.Fatalf("GetAllThemes: %v", err)
	}
	if len(themes) != 2 {
		t.Fatalf("got %d themes, want 2", len(themes))
	}
	// ordered by name
	if themes[0].Name != "redemption" || themes[0].PageCount != 2 {
		t.Errorf("themes[0] = %+v, want redemption with 2 pages", themes[0])
	}
	if themes[1].Name != "war" || themes[1].PageCount != 1 {
		t.Errorf("themes[1] = %+v, want war with 1 page", themes[1])
	}
}

func TestDeleteBookCascades(t *testing.T) {
	db, repo := newTestRepo(t)
	ctx := context.Background()

	records := []structurer.Record{pageRecord(1, "text", []string{"exile"}, []string{"a passage"})}
	bookID, err := repo.CreateBook(ctx, "/scans/cascade", records)
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", bookID); err != nil {
		t.Fatalf("delete book: %v", err)
	}

	for _, table := range []string{"pages", "passages", "page_themes"} {
		if got := countRows(t, db, table); got != 0 {
			t.Errorf("%s = %d rows after cascade, want 0", table, got)
		}
	}
	// themes survive deletion, they are shared vocabulary
	if got := countRows(t, db, "themes"); got != 1 {
		t.Errorf("themes = %d, want 1", got)
	}
}

func TestGetBookMissing(t *testing.T) {
	_, repo := newTestRepo(t)

	book, err := repo.GetBook(context.Background(), 12345)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if book != nil {
		t.Fatalf("got %+v, want nil for missing book", book)
	}
}

func TestGetBookPages(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()

	rec1 := pageRecord(1, "opening", []string{"beginnings"}, []string{"first words"})
	rec1.Chapter = strPtr("I")
	rec2 := pageRecord(2, "continuation", nil, nil)

	bookID, err := repo.CreateBook(ctx, "/scans/pages", []structurer.Record{rec2, rec1})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	pages, err := repo.GetBookPages(ctx, bookID)
	if err != nil {
		t.Fatalf("GetBookPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].PageNumber != 1 || pages[1].PageNumber != 2 {
		t.Errorf("pages out of order: %d, %d", pages[0].PageNumber, pages[1].PageNumber)
	}
	if pages[0].Chapter == nil || *pages[0].Chapter != "I" {
		t.Errorf("Chapter = %v", pages[0].Chapter)
	}
	if len(pages[0].Themes) != 1 || pages[0].Themes[0] != "beginnings" {
		t.Errorf("Themes = %v", pages[0].Themes)
	}
	if len(pages[0].Passages) != 1 || pages[0].Passages[0] != "first words" {
		t.Errorf("Passages = %v", pages[0].Passages)
	}
	if pages[1].Themes == nil || pages[1].Passages == nil {
		t.Error("empty themes/passages should be non-nil slices")
	}
}

func TestSearchTextCaseInsensitive(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()

	rec := pageRecord(1, "...in the presence of Love, all fear dissolves...", nil, nil)
	rec.Title = strPtr("Letters")
	if _, err := repo.CreateBook(ctx, "/scans/search", []structurer.Record{rec}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	results, err := repo.SearchText(ctx, "LOVE")
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.BookTitle == nil || *r.BookTitle != "Letters" {
		t.Errorf("BookTitle = %v", r.BookTitle)
	}
	if !strings.Contains(strings.ToLower(r.Snippet), "love") {
		t.Errorf("snippet %q does not contain match", r.Snippet)
	}

	none, err := repo.SearchText(ctx, "zebra")
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("got %d results for absent term, want 0", len(none))
	}
}

func TestExtractSnippet(t *testing.T) {
	long := strings.Repeat("a", 200) + "NEEDLE" + strings.Repeat("b", 200)

	tests := []struct {
		name       string
		text       string
		query      string
		wantPrefix string
		wantSuffix string
		maxLen     int
	}{
		{
			name:       "match in middle truncates both sides",
			text:       long,
			query:      "needle",
			wantPrefix: "...",
			wantSuffix: "...",
			maxLen:     3 + snippetContext + 6 + snippetContext + 3,
		},
		{
			name:       "match near start keeps left edge",
			text:       "NEEDLE then " + strings.Repeat("x", 300),
			query:      "needle",
			wantPrefix: "NEEDLE",
			wantSuffix: "...",
			maxLen:     snippetContext + 6 + 3,
		},
		{
			name:       "short text returned whole",
			text:       "just a NEEDLE here",
			query:      "needle",
			wantPrefix: "just",
			wantSuffix: "here",
			maxLen:     18,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSnippet(tt.text, tt.query)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("snippet %q missing prefix %q", got, tt.wantPrefix)
			}
			if !strings.HasSuffix(got, tt.wantSuffix) {
				t.Errorf("snippet %q missing suffix %q", got, tt.wantSuffix)
			}
			if len(got) > tt.maxLen {
				t.Errorf("snippet length %d exceeds %d", len(got), tt.maxLen)
			}
			if !strings.Contains(strings.ToLower(got), tt.query) {
				t.Errorf("snippet %q does not contain %q", got, tt.query)
			}
		})
	}
}

func TestSearchTextCyrillicCaseInsensitive(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()

	rec := pageRecord(1, "в присутствии любви растворяется всякий страх", nil, nil)
	rec.DetectedLanguage = "Russian"
	rec.LanguageCode = "ru"
	if _, err := repo.CreateBook(ctx, "/scans/cyrillic", []structurer.Record{rec}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	// sqlite lower() folds ASCII only, so an upper-case Cyrillic query must
	// still match through the Go-side fold
	results, err := repo.SearchText(ctx, "ЛЮБВИ")
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results for upper-case Cyrillic query, want 1", len(results))
	}
	if !strings.Contains(results[0].Snippet, "любви") {
		t.Errorf("snippet %q missing matched word", results[0].Snippet)
	}
}

func TestExtractSnippetMultibyteContext(t *testing.T) {
	long := strings.Repeat("я", 200) + "NEEDLE" + strings.Repeat("ж", 200)

	got := extractSnippet(long, "needle")
	if !utf8.ValidString(got) {
		t.Fatalf("snippet is not valid UTF-8: %q", got)
	}
	runes := []rune(got)
	want := 3 + snippetContext + 6 + snippetContext + 3
	if len(runes) != want {
		t.Errorf("snippet = %d runes, want %d (full context on both sides)", len(runes), want)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet %q missing ellipsis markers", got)
	}
	if !strings.Contains(got, "NEEDLE") {
		t.Errorf("snippet %q does not contain match", got)
	}
}

func TestExtractSnippetMultibyteNoMatchFallback(t *testing.T) {
	long := strings.Repeat("世", 400)
	got := extractSnippet(long, "absent")
	if !utf8.ValidString(got) {
		t.Fatalf("fallback snippet is not valid UTF-8: %q", got)
	}
	if runes := []rune(got); len(runes) != 2*snippetContext+3 {
		t.Errorf("fallback snippet = %d runes, want %d", len(runes), 2*snippetContext+3)
	}
}

func TestExtractSnippetNoMatchFallback(t *testing.T) {
	long := strings.Repeat("y", 500)
	got := extractSnippet(long, "absent")
	if len(got) != 2*snippetContext+3 {
		t.Errorf("fallback snippet length = %d, want %d", len(got), 2*snippetContext+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("fallback snippet %q missing ellipsis", got)
	}
}

func TestGetPagesByTheme(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()

	rec := pageRecord(1, "text", []string{"exile"}, nil)
	rec.Title = strPtr("Odyssey")
	bookID, err := repo.CreateBook(ctx, "/scans/theme", []structurer.Record{rec})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	pages, err := repo.GetPagesByTheme(ctx, "exile")
	if err != nil {
		t.Fatalf("GetPagesByTheme: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if pages[0].BookID != bookID || pages[0].PageNumber != 1 {
		t.Errorf("page = %+v", pages[0])
	}

	unknown, err := repo.GetPagesByTheme(ctx, "no-such-theme")
	if err != nil {
		t.Fatalf("GetPagesByTheme: %v", err)
	}
	if len(unknown) != 0 {
		t.Fatalf("got %d pages for unknown theme, want 0", len(unknown))
	}
}

func TestListBooksNewestFirst(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.CreateBook(ctx, "/scans/first", []structurer.Record{pageRecord(1, "a", nil, nil)})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	second, err := repo.CreateBook(ctx, "/scans/second", []structurer.Record{pageRecord(1, "b", nil, nil)})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	books, err := repo.ListBooks(ctx)
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2", len(books))
	}
	if books[0].ID != second || books[1].ID != first {
		t.Errorf("order = [%d, %d], want newest first", books[0].ID, books[1].ID)
	}
}
