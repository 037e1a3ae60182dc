package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/bookmap/pkg/bookmarks"
	"github.com/rubiojr/bookmap/pkg/geocode"
	"github.com/rubiojr/bookmap/pkg/history"
	"github.com/rubiojr/bookmap/pkg/logger"
	"github.com/rubiojr/bookmap/pkg/session"
)

//go:embed templates/index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(indexHTML))

const (
	sessionCookie = "bookmap_session"
	maxSessions   = 256
	recentLimit   = 8

	maxImportBytes    = 16 << 20
	defaultImportDesc = "Imported from GPX"
)

// sessionStore keeps one interaction session per browser.
type sessionStore struct {
	mu   sync.Mutex
	m    map[string]session.Session
	seen map[string]time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		m:    make(map[string]session.Session),
		seen: make(map[string]time.Time),
	}
}

func (ss *sessionStore) get(id string) session.Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.m[id]; ok {
		return s
	}
	return session.New()
}

func (ss *sessionStore) put(id string, s session.Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.m[id] = s
	ss.seen[id] = time.Now()
	if len(ss.m) <= maxSessions {
		return
	}
	// Drop the least recently used half.
	ids := make([]string, 0, len(ss.seen))
	for k := range ss.seen {
		ids = append(ids, k)
	}
	sort.Slice(ids, func(i, j int) bool { return ss.seen[ids[i]].Before(ss.seen[ids[j]]) })
	for _, k := range ids[:len(ids)/2] {
		delete(ss.m, k)
		delete(ss.seen, k)
	}
}

// api holds the collaborators shared by all handlers.
type api struct {
	app      *session.App
	store    *bookmarks.Store
	resolver session.Resolver
	history  *history.DB
	sessions *sessionStore
}

// sessionFor returns the caller's session id and state, issuing a cookie
// on first contact.
func (a *api) sessionFor(w http.ResponseWriter, r *http.Request) (string, session.Session) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value, a.sessions.get(c.Value)
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, session.New()
}

func (a *api) finish(w http.ResponseWriter, r *http.Request, id string, s session.Session) {
	a.sessions.put(id, s)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ----------------- UI -----------------

type indexData struct {
	Page     session.Page
	StoreErr string
	Recent   []history.Entry
	Map      mapData
}

type mapData struct {
	Markers []session.Marker `json:"markers"`
	View    session.View     `json:"view"`
}

func (a *api) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, s := a.sessionFor(w, r)
	page, err := a.app.Render(s)
	data := indexData{Page: page, Map: mapData{Markers: page.Markers, View: page.View}}
	if err != nil {
		logger.Error("render: %v", err)
		data.StoreErr = err.Error()
	}
	if a.history != nil {
		if recent, herr := a.history.Recent(r.Context(), recentLimit); herr == nil {
			data.Recent = recent
		} else {
			logger.Debug("recent history unavailable: %v", herr)
		}
	}
	// Notices are shown once.
	a.sessions.put(id, s.WithoutNotice())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		logger.Error("render template: %v", err)
	}
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	id, s := a.sessionFor(w, r)
	q := r.FormValue("q")
	logger.Debug("POST /search q=%q state=%s", q, s.State)
	a.finish(w, r, id, a.app.Search(r.Context(), s, q))
}

func (a *api) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, s := a.sessionFor(w, r)
	i, err := strconv.Atoi(r.FormValue("candidate"))
	if err != nil {
		i = -1
	}
	a.finish(w, r, id, a.app.Select(s, i))
}

func (a *api) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, s := a.sessionFor(w, r)
	next, err := a.app.Commit(r.Context(), s, r.FormValue("desc"))
	if err != nil {
		logger.Debug("POST /commit rejected: %v", err)
	}
	a.finish(w, r, id, next)
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, s := a.sessionFor(w, r)
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		index = -1
	}
	next, err := a.app.Delete(r.Context(), s, index, r.FormValue("id"))
	if err != nil {
		logger.Debug("POST /delete index=%d: %v", index, err)
	}
	a.finish(w, r, id, next)
}

func (a *api) handleReset(w http.ResponseWriter, r *http.Request) {
	id, _ := a.sessionFor(w, r)
	a.finish(w, r, id, session.New())
}

// ----------------- Bookmark Handlers -----------------

func (a *api) handleGetBookmarks(w http.ResponseWriter, _ *http.Request) {
	bms, err := a.store.LoadAll()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, bms)
}

func (a *api) handlePostBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string  `json:"name"`
		Desc string  `json:"desc"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	logger.Debug("POST /api/bookmarks decode ok name=%q lat=%.6f lon=%.6f descLen=%d",
		req.Name, req.Lat, req.Lon, len(req.Desc))
	saved, err := a.store.Append(bookmarks.Bookmark{Name: req.Name, Desc: req.Desc, Lat: req.Lat, Lon: req.Lon})
	if err != nil {
		if errors.Is(err, bookmarks.ErrInvalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("save bookmark: %v", err)
		http.Error(w, "save error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (a *api) handleDeleteBookmarkAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		http.Error(w, "index required", http.StatusBadRequest)
		return
	}
	found, err := a.store.DeleteAt(index)
	if err != nil {
		http.Error(w, "delete error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "index": index})
}

func (a *api) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := a.store.Delete(id)
	if err != nil {
		http.Error(w, "delete error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (a *api) handlePatchBookmark(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	found, err := a.store.Rename(id, req.Name)
	if err != nil {
		if errors.Is(err, bookmarks.ErrInvalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "rename error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"renamed": true, "id": id, "name": req.Name})
}

func (a *api) handleGetGPX(w http.ResponseWriter, _ *http.Request) {
	bms, err := a.store.LoadAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="bookmarks.gpx"`)
	if err := bookmarks.WriteGPX(w, bms); err != nil {
		logger.Error("export gpx: %v", err)
	}
}

func (a *api) handlePostImport(w http.ResponseWriter, r *http.Request) {
	incoming, err := bookmarks.ReadGPX(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	desc := strings.TrimSpace(r.URL.Query().Get("desc"))
	if desc == "" {
		desc = defaultImportDesc
	}
	added, err := a.store.Import(incoming, desc)
	if err != nil {
		http.Error(w, "import error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Debug("POST /api/import read=%d added=%d", len(incoming), added)
	writeJSON(w, http.StatusOK, map[string]any{"read": len(incoming), "added": added})
}

// ----------------- Search & history -----------------

func (a *api) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := a.app.Config().SearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	res, err := a.resolver.Search(r.Context(), q, limit)
	switch {
	case errors.Is(err, geocode.ErrEmptyQuery):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter 'q'"})
		return
	case err != nil:
		logger.Error("search %q: %v", q, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if res == nil {
		res = []geocode.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": res,
		"total":   len(res),
	})
}

func (a *api) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		http.Error(w, "history db unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recent, err := a.history.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

// handleGetVersion returns runtime version information
func handleGetVersion(w http.ResponseWriter, _ *http.Request) {
	versionInfo := map[string]any{
		"go_version": runtime.Version(),
		"go_os":      runtime.GOOS,
		"go_arch":    runtime.GOARCH,
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		versionInfo["go_module"] = buildInfo.Path
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			versionInfo["app_version"] = buildInfo.Main.Version
		}
		for _, setting := range buildInfo.Settings {
			if setting.Key == "vcs.revision" {
				versionInfo["commit"] = setting.Value
			}
		}
	}
	writeJSON(w, http.StatusOK, versionInfo)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Error("encode response: %v", err)
	}
}

// ---------------- RegisterAPI ----------------

// RegisterAPI wires all HTTP endpoints using Go 1.22 method-aware patterns.
func RegisterAPI(mux *http.ServeMux, app *session.App, store *bookmarks.Store, resolver session.Resolver, hist *history.DB) {
	a := &api{
		app:      app,
		store:    store,
		resolver: resolver,
		history:  hist,
		sessions: newSessionStore(),
	}

	// UI
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("POST /search", a.handleSearch)
	mux.HandleFunc("POST /select", a.handleSelect)
	mux.HandleFunc("POST /commit", a.handleCommit)
	mux.HandleFunc("POST /delete", a.handleDelete)
	mux.HandleFunc("POST /reset", a.handleReset)

	// Bookmarks
	mux.HandleFunc("GET /api/bookmarks", a.handleGetBookmarks)
	mux.HandleFunc("POST /api/bookmarks", a.handlePostBookmark)
	mux.HandleFunc("DELETE /api/bookmarks", a.handleDeleteBookmarkAt)
	mux.HandleFunc("DELETE /api/bookmarks/{id}", a.handleDeleteBookmark)
	mux.HandleFunc("PATCH /api/bookmarks/{id}", a.handlePatchBookmark)
	mux.HandleFunc("GET /api/bookmarks.gpx", a.handleGetGPX)
	mux.HandleFunc("POST /api/import", a.handlePostImport)

	// Search & history
	mux.HandleFunc("GET /api/search", a.handleGetSearch)
	mux.HandleFunc("GET /api/history", a.handleGetHistory)

	// Version info
	mux.HandleFunc("GET /api/version", handleGetVersion)
}
