package store

// Relational schema: books own pages, pages own passages and share themes
// through a join table. Deleting a book cascades to its pages, passages and
// join rows; themes are never deleted by cascade.
const schema = `
CREATE TABLE IF NOT EXISTS books (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	title            TEXT,
	author           TEXT,
	genre            TEXT,
	detected_language TEXT,
	language_code    TEXT,
	estimated_period TEXT,
	source_directory TEXT NOT NULL,
	total_pages      INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id          INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	page_number      INTEGER NOT NULL,
	source_file      TEXT NOT NULL,
	chapter          TEXT,
	raw_ocr_text     TEXT,
	ocr_confidence   REAL,
	cleaned_text     TEXT,
	summary          TEXT,
	writing_style    TEXT,
	confidence_notes TEXT,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (book_id, page_number)
);

CREATE TABLE IF NOT EXISTS passages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id      INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	text         TEXT NOT NULL,
	passage_type TEXT NOT NULL DEFAULT 'quote',
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS themes (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS page_themes (
	page_id  INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	theme_id INTEGER NOT NULL REFERENCES themes(id) ON DELETE CASCADE,
	PRIMARY KEY (page_id, theme_id)
);

CREATE INDEX IF NOT EXISTS idx_pages_book_id ON pages(book_id);
CREATE INDEX IF NOT EXISTS idx_passages_page_id ON passages(page_id);

CREATE TRIGGER IF NOT EXISTS trg_books_updated_at
AFTER UPDATE ON books
BEGIN
	UPDATE books SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END;
`
