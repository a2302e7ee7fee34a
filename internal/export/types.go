// Package export renders a tracker's year grid as an HTML report or a PDF
// printed through headless Chrome.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	OwnerID string
	Title   string
	Format  Format
}

// Report is the assembled year-report input.
type Report struct {
	Owner       string
	Title       string
	Days        string // one char per day, '1' checked
	CheckedDays int
	Experience  int
	Level       int
	GeneratedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
