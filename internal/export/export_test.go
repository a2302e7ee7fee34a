package export

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeReportStore struct {
	report Report
	err    error
}

func (f *fakeReportStore) GetReport(context.Context, string, string) (Report, error) {
	return f.report, f.err
}

func gridDays(checked ...int) string {
	days := []byte(strings.Repeat("0", 365))
	for _, d := range checked {
		days[d] = '1'
	}
	return string(days)
}

func TestExportHTMLContainsStats(t *testing.T) {
	svc := NewService(&fakeReportStore{report: Report{
		Owner:       "casey",
		Title:       "Morning Run",
		Days:        gridDays(0, 1, 363),
		CheckedDays: 3,
		Experience:  3,
		Level:       1,
		GeneratedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}})

	result, err := svc.Export(context.Background(), Request{
		OwnerID: "usr_1",
		Title:   "Morning Run",
		Format:  FormatHTML,
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Fatalf("mime type = %q", result.MimeType)
	}
	if result.Filename != "Morning-Run.html" {
		t.Fatalf("filename = %q", result.Filename)
	}

	html := string(result.Data)
	for _, want := range []string{"Morning Run", "casey", "<b>3</b> days checked", "Jun 1, 2025"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if got := strings.Count(html, `class="day checked"`); got != 3 {
		t.Errorf("checked cells = %d, want 3", got)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeReportStore{report: Report{Days: gridDays()}})
	if _, err := svc.Export(context.Background(), Request{Format: Format("docx")}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestBuildWeeksShape(t *testing.T) {
	weeks := buildWeeks(gridDays(364))
	if len(weeks) != 53 {
		t.Fatalf("weeks = %d, want 53", len(weeks))
	}
	last := weeks[52]
	if !last[0].Checked {
		t.Error("day 364 should be checked")
	}
	empties := 0
	for _, cell := range last {
		if cell.Empty {
			empties++
		}
	}
	if empties != 6 {
		t.Errorf("padding cells = %d, want 6", empties)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Morning Run":   "Morning-Run",
		"été & café!!!": "t--caf",
		"":              "tracker",
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
