// CLAUDE:SUMMARY Stand-in LAU portal: sign-in, five audit search forms with GOV.UK error summaries, paginated results. Served by chi; defects can be switched on to exercise failing checks.
// Package fixture provides a stand-in for the LAU portal and an in-process
// browser driver for it. The Site serves the pages the checks expect; the
// Driver implements browser.Page over any http.Handler so the checks can be
// exercised without a Chrome binary.
package fixture

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/lauaudit/catalogue"
	"github.com/hazyhaar/lauaudit/idgen"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const sessionCookie = "lau_session"

// Defects switch on accessibility faults, one per check, so that failing
// paths can be tested against a known-bad page.
type Defects struct {
	// FlatHeadings renders the level-1 heading smaller than the level-2 heading.
	FlatHeadings bool
	// SharedTitle gives every audit page the same title.
	SharedTitle bool
	// ConflictingLinks adds two "Help" links with different destinations.
	ConflictingLinks bool
	// WrongSkipTarget points the skip link at an anchor other than #main-content.
	WrongSkipTarget bool
	// MissingLang drops the lang attribute from the root element.
	MissingLang bool
	// NoFocusOutline suppresses the focus indicator of form inputs.
	NoFocusOutline bool
	// InvertedHeadings renders the search heading before the page heading.
	InvertedHeadings bool
	// DuplicateIntro repeats the introductory paragraph of the search form.
	DuplicateIntro bool
	// ErrorLinkWrongTarget points the first error summary link at the last
	// field in error instead of its own.
	ErrorLinkWrongTarget bool
}

// SiteConfig configures the fixture portal.
type SiteConfig struct {
	// Username and Password are the accepted credentials. When Username is
	// empty any non-empty pair signs in.
	Username string
	Password string

	// ResultPages is the number of result pages of a valid search. Default: 3.
	ResultPages int

	Defects Defects
	Logger  *slog.Logger
}

func (c *SiteConfig) defaults() {
	if c.ResultPages <= 0 {
		c.ResultPages = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Site is the fixture portal. It is an http.Handler safe for concurrent use.
type Site struct {
	cfg    SiteConfig
	router chi.Router
	token  idgen.Generator

	mu       sync.RWMutex
	sessions map[string]string
}

// NewSite builds the portal.
func NewSite(cfg SiteConfig) *Site {
	cfg.defaults()
	s := &Site{
		cfg:      cfg,
		token:    idgen.Prefixed("sess_", idgen.NanoID(24)),
		sessions: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(headToGet)
	r.Use(securityHeaders(defaultHeaders()))
	r.Use(maxFormBody(64 << 10))

	assets, _ := fs.Sub(assetFS, "assets")
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assets))))

	r.Get("/", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)
	r.Get("/csv-guide", s.info("CSV usage guide", "Results can be downloaded as comma separated values and opened in a spreadsheet."))
	r.Get("/accessibility", s.info("Accessibility statement", "This service aims to meet WCAG 2.2 level AA."))
	r.Get("/cookies", s.info("Cookies", "This service uses one essential cookie to keep you signed in."))
	r.Get("/help", s.info("Help", "Contact the service desk for help with audit searches."))
	r.Get("/support", s.info("Support", "Raise a support ticket."))

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/{profile}", s.handleSearchPage)
		r.Post("/{profile}", s.handleSearch)
		r.Get("/{profile}/results", s.handleResults)
	})

	s.router = r
	return s
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Site) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Debug("fixture: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Site) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err == nil {
			s.mu.RLock()
			_, ok := s.sessions[c.Value]
			s.mu.RUnlock()
			if ok {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

type link struct {
	Label string
	Href  string
}

type fieldView struct {
	ID      string
	Label   string
	Kind    fieldKind
	Value   string
	Error   string
	Options []optionView
}

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type row struct {
	User      string
	Timestamp string
	Activity  string
}

type pageData struct {
	Title     string
	Lang      string
	SkipHref  string
	Nav       []link
	Footer    []link
	H1        string
	H1Style   template.CSS
	Errors    []fieldError
	NoOutline bool

	InvertedHeadings bool
	DuplicateIntro   bool

	// login
	Username string

	// search
	Action string
	Fields []fieldView

	// results
	Rows             []row
	Page, Pages      int
	Prev, Next, Last string
	CSV              bool

	// info
	Body string
}

func (s *Site) base(h1 string, signedIn bool) pageData {
	d := pageData{
		Title:    h1 + " - Log and Audit - GOV.UK",
		Lang:     "en",
		SkipHref: "#main-content",
		H1:       h1,
		Footer: []link{
			{Label: "Accessibility statement", Href: "/accessibility"},
			{Label: "Cookies", Href: "/cookies"},
			{Label: "Help", Href: "/help"},
		},
	}
	if signedIn {
		for _, p := range catalogue.Profiles {
			d.Nav = append(d.Nav, link{Label: forms[p].h1, Href: p.Route()})
		}
		d.Nav = append(d.Nav, link{Label: "Sign out", Href: "/logout"})
	}
	df := s.cfg.Defects
	if df.MissingLang {
		d.Lang = ""
	}
	if df.WrongSkipTarget {
		d.SkipHref = "#content"
	}
	if df.FlatHeadings {
		d.H1Style = "font-size: 20px"
	}
	if df.ConflictingLinks && signedIn {
		d.Nav = append(d.Nav, link{Label: "Help", Href: "/support"})
	}
	d.NoOutline = df.NoFocusOutline
	d.InvertedHeadings = df.InvertedHeadings
	d.DuplicateIntro = df.DuplicateIntro
	return d
}

func (s *Site) render(w http.ResponseWriter, name string, d pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, d); err != nil {
		s.cfg.Logger.Error("fixture: render", "template", name, "error", err)
	}
}

func (s *Site) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login", s.base("Sign in", false))
}

func (s *Site) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user, pass := r.PostForm.Get("username"), r.PostForm.Get("password")
	if !s.accepts(user, pass) {
		d := s.base("Sign in", false)
		d.Title = "Error: " + d.Title
		d.Username = user
		d.Errors = []fieldError{{ID: "username", Message: "Enter a valid email address and password"}}
		s.render(w, "login", d)
		return
	}

	tok := s.token()
	s.mu.Lock()
	s.sessions[tok] = user
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.cfg.Logger.Info("fixture: signed in", "user", user)
	http.Redirect(w, r, catalogue.CaseAudit.Route(), http.StatusSeeOther)
}

func (s *Site) accepts(user, pass string) bool {
	if user == "" || pass == "" {
		return false
	}
	if s.cfg.Username == "" {
		return true
	}
	return user == s.cfg.Username && pass == s.cfg.Password
}

func (s *Site) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Site) info(h1, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie(sessionCookie)
		d := s.base(h1, err == nil)
		d.Body = body
		s.render(w, "info", d)
	}
}

func (s *Site) form(w http.ResponseWriter, r *http.Request) (formSpec, bool) {
	spec, ok := forms[catalogue.Profile(chi.URLParam(r, "profile"))]
	if !ok {
		http.NotFound(w, r)
	}
	return spec, ok
}

func (s *Site) title(spec formSpec) string {
	if s.cfg.Defects.SharedTitle {
		return "Log and Audit - GOV.UK"
	}
	return spec.h1 + " - Log and Audit - GOV.UK"
}

func (s *Site) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.form(w, r)
	if !ok {
		return
	}
	s.renderSearch(w, spec, nil, nil)
}

func (s *Site) handleSearch(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.form(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if errs := spec.validate(r.PostForm); len(errs) > 0 {
		s.renderSearch(w, spec, r.PostForm, errs)
		return
	}
	http.Redirect(w, r, spec.profile.Route()+"/results?page=1", http.StatusSeeOther)
}

func (s *Site) renderSearch(w http.ResponseWriter, spec formSpec, values url.Values, errs []fieldError) {
	d := s.base(spec.h1, true)
	d.Title = s.title(spec)
	if len(errs) > 0 {
		d.Title = "Error: " + d.Title
	}
	d.Action = spec.profile.Route()
	d.Errors = errs
	if s.cfg.Defects.ErrorLinkWrongTarget && len(errs) > 1 {
		d.Errors = append([]fieldError(nil), errs...)
		d.Errors[0].ID = errs[len(errs)-1].ID
	}

	msg := make(map[string]string, len(errs))
	for _, e := range errs {
		if _, dup := msg[e.ID]; !dup {
			msg[e.ID] = e.Message
		}
	}
	for _, f := range spec.fields {
		v := fieldView{ID: f.ID, Label: f.Label, Kind: f.Kind, Value: values.Get(f.ID), Error: msg[f.ID]}
		for _, o := range f.Options {
			v.Options = append(v.Options, optionView{Value: o.Value, Label: o.Label, Selected: o.Value == v.Value})
		}
		d.Fields = append(d.Fields, v)
	}
	s.render(w, "search", d)
}

func (s *Site) handleResults(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.form(w, r)
	if !ok {
		return
	}
	n := s.cfg.ResultPages
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	if page > n {
		page = n
	}

	d := s.base(spec.h1, true)
	d.Title = "Results - " + s.title(spec)
	d.Page, d.Pages = page, n
	d.CSV = spec.csv
	pageURL := func(p int) string { return fmt.Sprintf("%s/results?page=%d", spec.profile.Route(), p) }
	if page > 1 {
		d.Prev = pageURL(page - 1)
	}
	if page < n {
		d.Next = pageURL(page + 1)
		d.Last = pageURL(n)
	}
	activities := []string{"Create", "Update", "View"}
	for i := range 3 {
		k := (page-1)*3 + i
		d.Rows = append(d.Rows, row{
			User:      fmt.Sprintf("user-%03d", k+1),
			Timestamp: time.Date(2024, 1, 1+k, 9, 30, 0, 0, time.UTC).Format("2 Jan 2006 15:04"),
			Activity:  activities[k%len(activities)],
		})
	}
	s.render(w, "results", d)
}
