package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/bookdigitizer/internal/ai"
	"github.com/local/bookdigitizer/internal/archive"
	cfgpkg "github.com/local/bookdigitizer/internal/config"
	"github.com/local/bookdigitizer/internal/ocr"
	"github.com/local/bookdigitizer/internal/orchestrator"
	"github.com/local/bookdigitizer/internal/store"
	"github.com/local/bookdigitizer/internal/structurer"
)

func openRepository(cfg cfgpkg.Config) (*sql.DB, *store.Repository, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return db, store.NewRepository(db), nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repo.CreateTables(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Database initialized successfully.")
			return nil
		},
	}
}

func newDigitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digitize <source>...",
		Short: "Digitize scanned book pages from files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repo.CreateTables(cmd.Context()); err != nil {
				return err
			}

			pipeline, cleanup, err := buildPipeline(cmd.Context(), cfg, repo)
			if err != nil {
				return err
			}
			defer cleanup()

			results := pipeline.RunBatch(cmd.Context(), args)
			var failed int
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Printf("FAILED  %s: %v\n", r.Source, r.Err)
					continue
				}
				fmt.Printf("OK      %s -> book ID %d\n", r.Source, r.BookID)
			}
			if failed == len(results) {
				return fmt.Errorf("all %d source(s) failed", failed)
			}
			fmt.Printf("\nDigitization complete: %d succeeded, %d failed.\n", len(results)-failed, failed)
			return nil
		},
	}
}

func buildPipeline(ctx context.Context, cfg cfgpkg.Config, repo *store.Repository) (*orchestrator.Pipeline, func(), error) {
	engine := ocr.NewTesseractEngine(cfg.OCR.Language)
	extractor := ocr.NewExtractor(cfg.OCR, engine)
	textStructurer := structurer.New(ai.NewOpenAIClient(cfg.OpenAI))

	var savers []archive.Saver
	if cfg.Archive.Dir != "" {
		savers = append(savers, archive.NewLocalSaver(cfg.Archive.Dir, cfg.Archive.Password))
	}
	if cfg.Archive.Bucket != "" {
		s3Saver, err := archive.NewS3Saver(ctx, cfg.Archive.Bucket, cfg.Archive.Password)
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 archive: %w", err)
		}
		savers = append(savers, s3Saver)
	}

	cleanup := func() {}
	var status orchestrator.StatusStore
	if cfg.Redis.URL != "" {
		rs, err := store.NewRedisStatus(cfg.Redis.URL)
		if err != nil {
			// status tracking is best effort; run without it
			log.Warn().Err(err).Msg("run status store unavailable")
		} else {
			status = rs
			cleanup = func() { _ = rs.Close() }
		}
	}

	pipeline := orchestrator.New(orchestrator.Dependencies{
		Extractor:  extractor,
		Structurer: textStructurer,
		Store:      repo,
		Savers:     savers,
		Status:     status,
	})
	return pipeline, cleanup, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all digitized books",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			books, err := repo.ListBooks(cmd.Context())
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Println("No books found.")
				return nil
			}
			fmt.Printf("%-5s %-40s %-25s %-10s %-6s\n", "ID", "Title", "Author", "Lang", "Pages")
			fmt.Println(divider(90))
			for _, b := range books {
				fmt.Printf("%-5d %-40s %-25s %-10s %-6d\n",
					b.ID,
					orDefault(b.Title, "Untitled"),
					orDefault(b.Author, "Unknown"),
					orDefault(b.DetectedLanguage, "?"),
					b.TotalPages,
				)
			}
			return nil
		},
	}
}

func newPagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages <book-id>",
		Short: "View pages of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}

			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			pages, err := repo.GetBookPages(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				fmt.Printf("No pages found for book ID %d.\n", bookID)
				return nil
			}
			for _, p := range pages {
				fmt.Printf("\n--- Page %d ---\n", p.PageNumber)
				if p.Chapter != nil {
					fmt.Printf("Chapter: %s\n", *p.Chapter)
				}
				if len(p.Themes) > 0 {
					fmt.Printf("Themes: %s\n", strings.Join(p.Themes, ", "))
				}
				if p.Summary != "" {
					fmt.Printf("Summary: %s\n", p.Summary)
				}
				fmt.Printf("\n%s\n", truncate(p.CleanedText, 500))
			}
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search across all digitized text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := repo.SearchText(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Printf("No results for: %q\n", args[0])
				return nil
			}
			fmt.Printf("\nFound %d result(s) for %q:\n\n", len(results), args[0])
			for _, r := range results {
				fmt.Printf("  Book: %s (ID: %d), Page %d\n", orDefault(r.BookTitle, "Untitled"), r.BookID, r.PageNumber)
				if r.Chapter != nil {
					fmt.Printf("  Chapter: %s\n", *r.Chapter)
				}
				fmt.Printf("  %s\n\n", r.Snippet)
			}
			return nil
		},
	}
}

func newThemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "List all discovered themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			themes, err := repo.GetAllThemes(cmd.Context())
			if err != nil {
				return err
			}
			if len(themes) == 0 {
				fmt.Println("No themes found.")
				return nil
			}
			fmt.Printf("%-40s %-6s\n", "Theme", "Pages")
			fmt.Println(divider(50))
			for _, t := range themes {
				fmt.Printf("%-40s %-6d\n", t.Name, t.PageCount)
			}
			return nil
		},
	}
}

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "theme <name>",
		Short: "List pages tagged with a theme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgpkg.FromEnv()
			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			pages, err := repo.GetPagesByTheme(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				fmt.Printf("No pages found for theme %q.\n", args[0])
				return nil
			}
			for _, p := range pages {
				fmt.Printf("  Book: %s (ID: %d), Page %d\n", orDefault(p.BookTitle, "Untitled"), p.BookID, p.PageNumber)
				if p.Summary != "" {
					fmt.Printf("  Summary: %s\n", p.Summary)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func divider(n int) string {
	return strings.Repeat("-", n)
}
