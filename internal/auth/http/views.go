package http

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/gorilla/csrf"
)

const siteName = "Gatehouse"

//go:embed templates
var templateFS embed.FS

var viewFuncs = template.FuncMap{
	"date": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return t.Format("2006-01-02 15:04")
		case *time.Time:
			if t != nil {
				return t.Format("2006-01-02 15:04")
			}
		}
		return "Never"
	},
	"add": func(a, b int) int { return a + b },
}

// views holds one template set per page, each layered over base.html.
type views struct {
	pages map[string]*template.Template
}

func loadViews() *views {
	base := template.Must(template.New("base.html").Funcs(viewFuncs).ParseFS(templateFS, "templates/base.html"))

	files, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		panic(err)
	}

	v := &views{pages: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		t := template.Must(template.Must(base.Clone()).ParseFS(templateFS, f))
		v.pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return v
}

// page is the data every template receives.
type page struct {
	Title     string
	SiteName  string
	Year      int
	User      *domain.User
	Flashes   []flash
	CSRFField template.HTML
	Form      any
	Errors    map[string]string
	Data      any
}

// web bundles what every HTML handler needs to answer a request.
type web struct {
	views   *views
	cookies *cookieJar
}

// render executes the named page into a buffer first so a template error
// becomes a clean 500 instead of half a page.
func (h web) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	log := slogx.FromContext(r.Context())

	t, ok := h.views.pages[name]
	if !ok {
		log.Error("unknown template", slog.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	p.SiteName = siteName
	p.Year = time.Now().Year()
	p.CSRFField = csrf.TemplateField(r)
	if u, ok := userFrom(r.Context()); ok {
		p.User = &u
	}
	p.Flashes = append(h.cookies.popFlashes(w, r), p.Flashes...)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", p); err != nil {
		log.Error("failed to render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h web) redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h web) flashRedirect(w http.ResponseWriter, r *http.Request, category, msg, to string) {
	h.cookies.addFlash(w, r, category, msg)
	h.redirect(w, r, to)
}

func (h web) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "error", page{
		Title: "Page Not Found",
		Data:  errorPage{Code: http.StatusNotFound, Message: "The page you are looking for does not exist."},
	})
}

func (h web) forbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "error", page{
		Title: "Access Denied",
		Data:  errorPage{Code: http.StatusForbidden, Message: "Admin access required."},
	})
}

func (h web) serverError(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
	h.render(w, r, http.StatusInternalServerError, "error", page{
		Title: "Server Error",
		Data:  errorPage{Code: http.StatusInternalServerError, Message: "Something went wrong on our end. Please try again."},
	})
}

type errorPage struct {
	Code    int
	Message string
}
