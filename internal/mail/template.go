package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/lalithlochan/courier/internal/db"
)

// Title and message pass through html/template and are therefore
// escaped. The upstream system interpolated them into the document
// verbatim; escaping is the documented divergence here.
const bodyTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #007bff; color: white; padding: 20px; text-align: center; }
    .content { padding: 20px; background: #f9f9f9; }
    .footer { padding: 20px; text-align: center; font-size: 12px; color: #666; }
    .button { display: inline-block; padding: 10px 20px; background: #007bff; color: white; text-decoration: none; border-radius: 5px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Customer Service Update</h1>
    </div>
    <div class="content">
      <h2>{{.Title}}</h2>
      <p>{{.Message}}</p>
      {{if .QueryURL}}
      <p>
        <a href="{{.QueryURL}}" class="button">View Query Details</a>
      </p>
      {{end}}
    </div>
    <div class="footer">
      <p>This is an automated message from our customer service system.</p>
      <p>If you have any questions, please contact our support team.</p>
    </div>
  </div>
</body>
</html>
`

type templateData struct {
	Title    string
	Message  string
	QueryURL string
}

// Renderer builds the HTML body for notification emails, including the
// deep link back to the related support query when one exists.
type Renderer struct {
	frontendURL string
	tmpl        *template.Template
}

// NewRenderer creates a renderer rooted at the front-end base URL.
func NewRenderer(frontendURL string) *Renderer {
	return &Renderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		tmpl:        template.Must(template.New("notification").Parse(bodyTemplate)),
	}
}

// Render produces the HTML document for one notification.
func (r *Renderer) Render(notif *db.Notification) (string, error) {
	data := templateData{
		Title:   notif.Title,
		Message: notif.Message,
	}
	if notif.RelatedQuery != nil {
		data.QueryURL = fmt.Sprintf("%s/queries/%s", r.frontendURL, notif.RelatedQuery)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}

	return buf.String(), nil
}
