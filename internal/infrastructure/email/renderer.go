package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

const newsletterHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 640px; margin: 0 auto; padding: 16px;">
  <h1 style="font-size: 22px;">Good morning{{if .Name}}, {{.Name}}{{end}} 👋</h1>
  <p style="color: #555;">Your personalized briefing for {{.Date}}.</p>
  {{range .Sections}}
  <h2 style="font-size: 18px; border-bottom: 1px solid #eee; padding-bottom: 4px;">{{.Tag}} {{.Title}}</h2>
  {{range .Items}}
  <div style="margin-bottom: 16px;">
    <a href="{{.Item.URL}}" style="font-size: 16px; font-weight: 600; color: #1a73e8; text-decoration: none;">{{.Item.Title}}</a>
    {{if .Summary}}<p style="margin: 4px 0; color: #333;">{{.Summary}}</p>{{end}}
    <span style="font-size: 12px; color: #999;">score {{printf "%.2f" .Composite}} · {{.Item.SourceID}}</span>
  </div>
  {{end}}
  {{end}}
  <p style="font-size: 12px; color: #999; margin-top: 32px;">Assembled by newsforge.</p>
</body>
</html>`

// Renderer assembles the curated newsletter into a MIME-ready artifact
// with HTML and plain-text alternatives.
type Renderer struct {
	tmpl *template.Template
	now  func() time.Time
}

var _ ports.Renderer = (*Renderer)(nil)

// NewRenderer parses the embedded template once.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("newsletter").Parse(newsletterHTML)
	if err != nil {
		return nil, fmt.Errorf("parse newsletter template: %w", err)
	}
	return &Renderer{tmpl: tmpl, now: time.Now}, nil
}

// Render produces the deliverable artifact. Any failure here is fatal to
// the run; a malformed artifact must never reach the dispatcher.
func (r *Renderer) Render(newsletter *domain.Newsletter, profile *domain.UserProfile) (domain.Artifact, error) {
	if newsletter == nil || newsletter.TotalArticles() == 0 {
		return domain.Artifact{}, &domain.RenderError{Err: fmt.Errorf("nothing to render")}
	}

	subject := fmt.Sprintf("Your briefing: %d stories worth your time", newsletter.TotalArticles())

	data := struct {
		Subject  string
		Name     string
		Date     string
		Sections []domain.Section
	}{
		Subject:  subject,
		Name:     profile.Name,
		Date:     r.now().Format("Monday, 2 January 2006"),
		Sections: newsletter.Sections,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return domain.Artifact{}, &domain.RenderError{Err: err}
	}

	return domain.Artifact{
		Subject: subject,
		HTML:    buf.Bytes(),
		Text:    []byte(renderText(newsletter, data.Date)),
	}, nil
}

func renderText(newsletter *domain.Newsletter, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your briefing for %s\n\n", date)
	for _, section := range newsletter.Sections {
		fmt.Fprintf(&b, "%s %s\n", section.Tag, section.Title)
		for _, item := range section.Items {
			fmt.Fprintf(&b, "- %s\n  %s\n", item.Item.Title, item.Item.URL)
			if item.Summary != "" {
				fmt.Fprintf(&b, "  %s\n", item.Summary)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
