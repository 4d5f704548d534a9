package mailer

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/token"
)

// Conference is everything an email about one signup needs to say.
type Conference struct {
	Email             string
	ParentName        string
	ChildName         string
	TeacherName       string
	Start             time.Time
	End               time.Time
	HideTime          bool
	HideEndTime       bool
	CancellationToken string
}

var bodies = template.Must(template.New("mail").Funcs(template.FuncMap{"md": escapeMarkdown}).Parse(`
{{define "confirmation"}}
# Conference Confirmed!

Hi {{md .ParentName}},

Your parent-teacher conference has been confirmed. Here are the details:

**Date & time:** {{.When}}

**Teacher:** {{md .TeacherName}}
{{if .ChildName}}
**Student:** {{md .ChildName}}
{{end}}
We look forward to seeing you! If you need to cancel, use this link:

[Cancel registration]({{.CancelURL}})

{{.CancelURL}}
{{end}}

{{define "reminder"}}
# Conference Tomorrow

Hi {{md .ParentName}},

This is a reminder about your parent-teacher conference for **{{md .ChildName}}**.

**Date & time:** {{.When}}

**Teacher:** {{md .TeacherName}}

If you can no longer attend, please cancel so another family can take the spot:

[Cancel registration]({{.CancelURL}})
{{end}}

{{define "cancellation"}}
# Conference Cancelled

Hi {{md .ParentName}},

Your parent-teacher conference scheduled for **{{.When}}** has been cancelled.

You can sign up for a different time slot at any time by visiting our website.
{{end}}
`))

type Renderer struct {
	md      goldmark.Markdown
	loc     *time.Location
	school  string
	baseURL string
}

func NewRenderer(baseURL, school string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		loc:     loc,
		school:  school,
		baseURL: baseURL,
	}
}

type view struct {
	ParentName  string
	ChildName   string
	TeacherName string
	When        string
	CancelURL   string
}

func (r *Renderer) Confirmation(c Conference) (Email, error) {
	v := r.view(c)
	body, err := r.render("confirmation", v)
	if err != nil {
		return Email{}, err
	}
	return Email{To: c.Email, Subject: r.subject("Conference Confirmed"), HTML: body, CancelURL: v.CancelURL}, nil
}

func (r *Renderer) Reminder(c Conference) (Email, error) {
	v := r.view(c)
	if v.ChildName == "" {
		v.ChildName = "your student"
	}
	body, err := r.render("reminder", v)
	if err != nil {
		return Email{}, err
	}
	return Email{To: c.Email, Subject: r.subject("Reminder: Conference Tomorrow"), HTML: body, CancelURL: v.CancelURL}, nil
}

func (r *Renderer) Cancellation(email, parentName string, start time.Time) (Email, error) {
	v := view{ParentName: parentName, When: FormatWhen(start, start, true, false, r.loc)}
	body, err := r.render("cancellation", v)
	if err != nil {
		return Email{}, err
	}
	return Email{To: email, Subject: r.subject("Conference Cancelled"), HTML: body}, nil
}

func (r *Renderer) view(c Conference) view {
	return view{
		ParentName:  c.ParentName,
		ChildName:   c.ChildName,
		TeacherName: c.TeacherName,
		When:        FormatWhen(c.Start, c.End, c.HideEndTime, c.HideTime, r.loc),
		CancelURL:   token.CancelURL(r.baseURL, c.CancellationToken),
	}
}

func (r *Renderer) subject(s string) string {
	if r.school == "" {
		return s
	}
	return s + " - " + r.school
}

func (r *Renderer) render(name string, v view) (string, error) {
	var src bytes.Buffer
	if err := bodies.ExecuteTemplate(&src, name, v); err != nil {
		return "", fmt.Errorf("execute %s template: %w", name, err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"></head>\n<body style=\"font-family: Arial, sans-serif;\">\n")
	if err := r.md.Convert(src.Bytes(), &out); err != nil {
		return "", fmt.Errorf("convert %s markdown: %w", name, err)
	}
	if r.school != "" {
		out.WriteString("<hr>\n<p>" + html.EscapeString(r.school) + "<br>Parent-Teacher Conference System</p>\n")
	}
	out.WriteString("</body>\n</html>\n")
	return out.String(), nil
}

// FormatWhen renders a slot time the way parents see it, in the school's time zone.
func FormatWhen(start, end time.Time, hideEndTime, hideTime bool, loc *time.Location) string {
	start = start.In(loc)
	end = end.In(loc)
	date := start.Format("Monday, January 2, 2006")
	if hideTime {
		return date
	}
	if hideEndTime {
		return date + " " + start.Format("3:04 PM")
	}
	return date + " " + start.Format("3:04 PM") + " - " + end.Format("3:04 PM")
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", "&lt;", ">", "&gt;", "#", `\#`, "!", `\!`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
