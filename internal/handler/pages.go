package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/remindmail/remindmail/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names, also used for navigation highlighting
const (
	pageHome      = "home"
	pageAbout     = "about"
	pageSchedule  = "schedule"
	pageReminders = "reminders"
)

var pageFiles = map[string]string{
	pageHome:      "templates/index.html",
	pageAbout:     "templates/about.html",
	pageSchedule:  "templates/schedule.html",
	pageReminders: "templates/reminders.html",
}

// pageData is passed to every template
type pageData struct {
	Title       string
	CurrentPage string
	Success     bool
	Error       bool
	Reminders   []model.Reminder
}

type pages struct {
	tmpl map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.Local().Format("Jan 2, 2006 15:04")
	},
}

func loadPages() (*pages, error) {
	p := &pages{tmpl: make(map[string]*template.Template, len(pageFiles))}
	for name, file := range pageFiles {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		p.tmpl[name] = t
	}
	return p, nil
}

// render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (p *pages) render(w http.ResponseWriter, status int, name string, data pageData) error {
	t, ok := p.tmpl[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	data.CurrentPage = name

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded stylesheet and assets under /static/
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
