package dataset

import (
	"html/template"
	"io"

	"github.com/a3tai/exam-dataset/internal/fileutil"
)

// ReportItem pairs a record with its question crop.
type ReportItem struct {
	CropPath string
	Record   Record
}

type reportOption struct {
	Letter string
	Text   string
	Image  string
}

type reportRow struct {
	ReportItem
	Options []reportOption
	Answer  string
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Dataset report</title>
<style>img{max-width:600px;} .flag{color:#b00;} .item{margin-bottom:40px;}</style></head><body>
{{range .}}<div class="item">
<h3>{{.Record.ID}}</h3>
<p><strong>Points:</strong> {{.Record.Points}} | <strong>Answer:</strong> {{.Answer}}</p>
{{with .Record.Quality}}{{if .NeedsReview}}<p class="flag">needs review:
{{if .OCRShortText}} ocr_short_text{{end}}{{if .OptionsMissingOrExtra}} options_missing_or_extra{{end}}{{if .KeyMismatch}} key_mismatch{{end}}{{if .AnswerMissing}} answer_missing{{end}}</p>{{end}}{{end}}
{{if .CropPath}}<img src="{{.CropPath}}" alt="question">{{end}}
<pre>{{.Record.ProblemStatement}}</pre>
<ul>{{range .Options}}
<li>{{.Letter}}: {{if .Image}}<img src="{{.Image}}" alt="opt{{.Letter}}">{{else}}{{.Text}}{{end}}</li>{{end}}
</ul>
{{if .Record.AssociatedImages}}<p>Associated images:</p><div>{{range .Record.AssociatedImages}}<img src="{{.}}" alt="assoc">{{end}}</div>{{end}}
</div>
{{end}}</body></html>
`))

// RenderReport writes a single-page HTML spot-check of items.
func RenderReport(w io.Writer, items []ReportItem) error {
	rows := make([]reportRow, 0, len(items))
	for _, it := range items {
		row := reportRow{ReportItem: it, Answer: it.Record.AnswerLetter()}
		for _, l := range Letters {
			row.Options = append(row.Options, reportOption{
				Letter: l,
				Text:   it.Record.Option(l),
				Image:  it.Record.OptionImage(l),
			})
		}
		rows = append(rows, row)
	}
	return reportTemplate.Execute(w, rows)
}

// WriteReport renders the report to path atomically.
func WriteReport(path string, items []ReportItem) error {
	return fileutil.WriteWith(path, 0o644, func(w io.Writer) error {
		return RenderReport(w, items)
	})
}
