package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSaver writes book archives to a local directory.
type LocalSaver struct {
	dir      string
	password string
}

func NewLocalSaver(dir, password string) *LocalSaver {
	return &LocalSaver{dir: dir, password: password}
}

func (l *LocalSaver) Name() string { return "local" }

func (l *LocalSaver) Save(ctx context.Context, bookID int64, data []byte) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}
	if l.password != "" {
		sealed, err := seal(data, l.password)
		if err != nil {
			return "", err
		}
		data = sealed
	}
	p := filepath.Join(l.dir, fmt.Sprintf("book_%d.json", bookID))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}
