package export

import (
	"bytes"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(reportTemplateText))

// TemplateData holds data for year-report rendering.
type TemplateData struct {
	Owner       string
	Title       string
	CheckedDays int
	Experience  int
	Level       int
	GeneratedAt time.Time
	Weeks       [][]DayCell
}

// DayCell is one day slot in the rendered grid.
type DayCell struct {
	Day     int
	Checked bool
	Empty   bool
}

// RenderReportHTML renders the year-report template with provided data.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildWeeks folds the 365-char day string into 7-day columns, GitHub
// contribution-graph style. The final week is padded with empty cells.
func buildWeeks(days string) [][]DayCell {
	weeks := make([][]DayCell, 0, (len(days)+6)/7)
	for start := 0; start < len(days); start += 7 {
		week := make([]DayCell, 7)
		for i := 0; i < 7; i++ {
			day := start + i
			if day >= len(days) {
				week[i] = DayCell{Empty: true}
				continue
			}
			week[i] = DayCell{Day: day, Checked: days[day] == '1'}
		}
		weeks = append(weeks, week)
	}
	return weeks
}

const reportTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}} — year report</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .stats { display: flex; gap: 2rem; margin-bottom: 2rem; }
    .stat { background: #f5f5f5; padding: 0.75rem 1.25rem; border-left: 3px solid #333; }
    .stat b { display: block; font-size: 1.4em; }
    .grid { display: flex; gap: 2px; }
    .week { display: flex; flex-direction: column; gap: 2px; }
    .day { width: 10px; height: 10px; background: #ebedf0; border-radius: 2px; }
    .day.checked { background: #2da44e; }
    .day.empty { background: transparent; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Owner}} | generated {{formatDate .GeneratedAt "Jan 2, 2006"}}</div>
  <div class="stats">
    <div class="stat"><b>{{.CheckedDays}}</b> days checked</div>
    <div class="stat"><b>{{.Experience}}</b> experience</div>
    <div class="stat"><b>{{.Level}}</b> level</div>
  </div>
  <div class="grid">
    {{range .Weeks}}<div class="week">{{range .}}<div class="day{{if .Checked}} checked{{end}}{{if .Empty}} empty{{end}}"></div>{{end}}</div>{{end}}
  </div>
</body>
</html>`
