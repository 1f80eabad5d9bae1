package runner

import (
	"bytes"
	"fmt"
	"html/template"

	"lib2notes/internal/analyzer"
)

// noteTemplate renders the analysis as the HTML body of a library note
var noteTemplate = template.Must(template.New("note").Parse(`<h1>Summary: {{.Title}}</h1>
<p>{{.Summary}}</p>
{{if .KeyPoints}}<h2>Key points</h2>
<ul>
{{range .KeyPoints}}<li>{{.}}</li>
{{end}}</ul>
{{end}}`))

type noteData struct {
	Title     string
	Summary   string
	KeyPoints []string
}

func renderNote(title string, analysis *analyzer.Analysis) (string, error) {
	var buf bytes.Buffer
	err := noteTemplate.Execute(&buf, noteData{
		Title:     title,
		Summary:   analysis.Summary,
		KeyPoints: analysis.KeyPoints,
	})
	if err != nil {
		return "", fmt.Errorf("rendering note: %w", err)
	}
	return buf.String(), nil
}
