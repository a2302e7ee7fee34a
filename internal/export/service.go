package export

import (
	"context"
	"fmt"
)

// ReportStore defines the data access the exporter needs.
type ReportStore interface {
	GetReport(ctx context.Context, ownerID, title string) (Report, error)
}

// Service renders tracker year reports.
type Service struct {
	store ReportStore
}

// NewService creates a new export service
func NewService(store ReportStore) *Service {
	return &Service{store: store}
}

// Export generates a year report in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.store.GetReport(ctx, req.OwnerID, req.Title)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}

	data := TemplateData{
		Owner:       report.Owner,
		Title:       report.Title,
		CheckedDays: report.CheckedDays,
		Experience:  report.Experience,
		Level:       report.Level,
		GeneratedAt: report.GeneratedAt,
		Weeks:       buildWeeks(report.Days),
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(report.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, report.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
