// Package session implements the bookmark map interaction: a query is
// resolved into candidates, one candidate is selected and committed with a
// description, and every render is rebuilt from the persisted store.
//
// The interaction state lives in a Session value. Every transition takes
// the current Session and returns the next one; nothing is kept in package
// or App state between calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/bookmap/pkg/bookmarks"
	"github.com/rubiojr/bookmap/pkg/geocode"
	"go.uber.org/zap"
)

var (
	// ErrDescriptionRequired rejects a commit without a description.
	ErrDescriptionRequired = errors.New("description required")
	// ErrNoSelection rejects a commit or select outside a result list.
	ErrNoSelection = errors.New("no candidate selected")
)

// State of one interaction session.
type State int

const (
	Idle State = iota
	// Searching is only observable while the resolver call is in flight.
	Searching
	Results
	NoResults
	Failed
	Selected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Results:
		return "results"
	case NoResults:
		return "no-results"
	case Failed:
		return "failed"
	case Selected:
		return "selected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Level of an inline notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a message shown once to the operator.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Session is the explicit interaction state.
type Session struct {
	State       State               `json:"state"`
	Query       string              `json:"query,omitempty"`
	Candidates  []geocode.Candidate `json:"candidates,omitempty"`
	Selected    int                 `json:"selected"`
	Description string              `json:"description,omitempty"`
	Notice      *Notice             `json:"notice,omitempty"`
}

// New returns an Idle session.
func New() Session {
	return Session{State: Idle, Selected: -1}
}

// Candidate returns the selected candidate, if any.
func (s Session) Candidate() (geocode.Candidate, bool) {
	if s.State != Selected || s.Selected < 0 || s.Selected >= len(s.Candidates) {
		return geocode.Candidate{}, false
	}
	return s.Candidates[s.Selected], true
}

// WithoutNotice returns s with the notice consumed.
func (s Session) WithoutNotice() Session {
	s.Notice = nil
	return s
}

func (s Session) notify(l Level, format string, args ...any) Session {
	s.Notice = &Notice{Level: l, Text: fmt.Sprintf(format, args...)}
	return s
}

// Store is the persistence the application needs.
type Store interface {
	LoadAll() ([]bookmarks.Bookmark, error)
	Append(bookmarks.Bookmark) (bookmarks.Bookmark, error)
	DeleteAt(index int) (bool, error)
	DeleteAtID(index int, id string) (bool, error)
}

// Resolver turns a query into candidates. An empty slice with a nil error
// means no match.
type Resolver interface {
	Search(ctx context.Context, query string, limit int) ([]geocode.Candidate, error)
}

// Recorder receives queries and committed coordinates.
type Recorder interface {
	Record(ctx context.Context, query string, lat, lon *float64) error
}

// LatLon is a map coordinate.
type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Config holds map defaults and the candidate limit.
type Config struct {
	DefaultCenter LatLon
	DefaultZoom   int
	SelectedZoom  int
	SearchLimit   int
}

// DefaultConfig centers on Seoul City Hall.
func DefaultConfig() Config {
	return Config{
		DefaultCenter: LatLon{Lat: 37.5665, Lon: 126.9780},
		DefaultZoom:   12,
		SelectedZoom:  16,
		SearchLimit:   geocode.DefaultLimit,
	}
}

// Option configures an App.
type Option func(*App)

// WithRecorder records every successful search and commit.
func WithRecorder(r Recorder) Option {
	return func(a *App) { a.history = r }
}

// WithLogger sets the application logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// App wires the store and resolver. It is safe for concurrent use as long
// as its collaborators are.
type App struct {
	store    Store
	resolver Resolver
	history  Recorder
	cfg      Config
	log      *zap.Logger
}

// NewApp returns an App. Zero fields in cfg fall back to DefaultConfig.
func NewApp(store Store, resolver Resolver, cfg Config, opts ...Option) *App {
	def := DefaultConfig()
	if cfg.DefaultCenter == (LatLon{}) {
		cfg.DefaultCenter = def.DefaultCenter
	}
	if cfg.DefaultZoom <= 0 {
		cfg.DefaultZoom = def.DefaultZoom
	}
	if cfg.SelectedZoom <= 0 {
		cfg.SelectedZoom = def.SelectedZoom
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}
	a := &App{store: store, resolver: resolver, cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *App) Config() Config {
	return a.cfg
}

// Search resolves query. A blank query returns to Idle. Re-submitting the
// query that produced the current results keeps them (and the selection).
func (a *App) Search(ctx context.Context, s Session, query string) Session {
	query = strings.TrimSpace(query)
	if query == "" {
		return New()
	}
	if query == s.Query && (s.State == Results || s.State == Selected) {
		return s
	}

	next := Session{State: Searching, Query: query, Selected: -1}
	cands, err := a.resolver.Search(ctx, query, a.cfg.SearchLimit)
	if err != nil {
		a.log.Warn("search failed", zap.String("query", query), zap.Error(err))
		next.State = Failed
		return next.notify(LevelError, "Search failed for %q: %v", query, err)
	}
	a.record(ctx, query, nil)
	if len(cands) == 0 {
		next.State = NoResults
		return next.notify(LevelInfo, "No places found for %q.", query)
	}
	next.State = Results
	next.Candidates = cands
	return next
}

// Select picks candidate i from the current result list.
func (a *App) Select(s Session, i int) Session {
	if s.State != Results && s.State != Selected {
		return s.notify(LevelWarning, "Search for a place before selecting a result.")
	}
	if i < 0 || i >= len(s.Candidates) {
		return s.notify(LevelWarning, "Result #%d does not exist.", i+1)
	}
	s.State = Selected
	s.Selected = i
	s.Notice = nil
	return s
}

// Commit stores the selected candidate with desc. On success the session
// returns to Idle; on any failure it stays Selected and the store is left
// as it was.
func (a *App) Commit(ctx context.Context, s Session, desc string) (Session, error) {
	cand, ok := s.Candidate()
	if !ok {
		return s.notify(LevelWarning, "Select a search result first."), ErrNoSelection
	}
	s.Description = desc
	if strings.TrimSpace(desc) == "" {
		return s.notify(LevelWarning, "Please enter a description."), ErrDescriptionRequired
	}

	saved, err := a.store.Append(bookmarks.Bookmark{
		Name: cand.DisplayName,
		Desc: desc,
		Lat:  cand.Lat,
		Lon:  cand.Lon,
	})
	if err != nil {
		if errors.Is(err, bookmarks.ErrInvalid) {
			return s.notify(LevelWarning, "Cannot save this place: %v", err), err
		}
		a.log.Error("commit failed", zap.String("name", cand.DisplayName), zap.Error(err))
		return s.notify(LevelError, "Bookmark was not saved: %v", err), err
	}

	a.record(ctx, s.Query, &LatLon{Lat: saved.Lat, Lon: saved.Lon})
	next := New()
	return next.notify(LevelSuccess, "Saved bookmark %q.", saved.Name), nil
}

// Delete removes the bookmark at position index. When id is given the
// position must still hold that bookmark, otherwise nothing is deleted and
// the operator is asked to look at the refreshed list.
func (a *App) Delete(_ context.Context, s Session, index int, id string) (Session, error) {
	var (
		ok  bool
		err error
	)
	if id == "" {
		ok, err = a.store.DeleteAt(index)
	} else {
		ok, err = a.store.DeleteAtID(index, id)
	}
	switch {
	case errors.Is(err, bookmarks.ErrStalePosition):
		return s.notify(LevelWarning, "The bookmark list changed; nothing was deleted. Please try again."), err
	case err != nil:
		a.log.Error("delete failed", zap.Int("index", index), zap.Error(err))
		return s.notify(LevelError, "Bookmark was not deleted: %v", err), err
	case !ok:
		return s.notify(LevelInfo, "There is no bookmark #%d.", index+1), nil
	}
	return s.notify(LevelSuccess, "Deleted bookmark #%d.", index+1), nil
}

func (a *App) record(ctx context.Context, query string, at *LatLon) {
	if a.history == nil {
		return
	}
	var lat, lon *float64
	if at != nil {
		lat, lon = &at.Lat, &at.Lon
	}
	if err := a.history.Record(ctx, query, lat, lon); err != nil {
		a.log.Warn("history record failed", zap.String("query", query), zap.Error(err))
	}
}
