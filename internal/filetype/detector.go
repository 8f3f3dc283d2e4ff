package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Info contains detected file type information.
type Info struct {
	MIMEType string
	IsImage  bool
	IsPDF    bool
}

// Detector identifies scan inputs by magic bytes rather than filename, so a
// renamed text file never reaches the OCR engine.
type Detector struct{}

// New creates a new file type detector.
func New() *Detector {
	return &Detector{}
}

// Detect returns the content type of the file at path.
func (d *Detector) Detect(path string) (*Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	log.Debug().Str("mime", mimeType).Str("file", path).Msg("detected file type")

	return &Info{
		MIMEType: mimeType,
		IsImage:  strings.HasPrefix(mimeType, "image/"),
		IsPDF:    mtype.Is("application/pdf"),
	}, nil
}
