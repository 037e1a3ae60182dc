package session

import (
	"github.com/rubiojr/bookmap/pkg/bookmarks"
)

// MarkerStyle distinguishes persisted bookmarks from the selection preview.
type MarkerStyle string

const (
	StyleBookmark MarkerStyle = "bookmark"
	StylePreview  MarkerStyle = "preview"
)

// Marker is one point handed to the map surface.
type Marker struct {
	Lat     float64     `json:"lat"`
	Lon     float64     `json:"lon"`
	Label   string      `json:"label"`
	Detail  string      `json:"detail,omitempty"`
	Tooltip string      `json:"tooltip"`
	Style   MarkerStyle `json:"style"`
}

// View is the map center and zoom level.
type View struct {
	Center LatLon `json:"center"`
	Zoom   int    `json:"zoom"`
}

// Listed is a bookmark with the position it currently occupies.
type Listed struct {
	Position int `json:"position"`
	bookmarks.Bookmark
}

// Page is everything needed to draw one screen.
type Page struct {
	Session   Session  `json:"session"`
	Bookmarks []Listed `json:"bookmarks"`
	Markers   []Marker `json:"markers"`
	View      View     `json:"view"`
}

// Render re-reads the store and builds the page for s. On a store error the
// page still carries the session, the preview marker and a view, so the
// caller can show the failure next to the map.
func (a *App) Render(s Session) (Page, error) {
	bms, err := a.store.LoadAll()
	if err != nil {
		bms = nil
	}
	return a.page(s, bms), err
}

func (a *App) page(s Session, bms []bookmarks.Bookmark) Page {
	p := Page{
		Session:   s,
		Bookmarks: make([]Listed, 0, len(bms)),
		Markers:   Markers(bms, s),
		View:      a.ViewFor(bms, s),
	}
	for i, b := range bms {
		p.Bookmarks = append(p.Bookmarks, Listed{Position: i, Bookmark: b})
	}
	return p
}

// Markers returns one marker per bookmark in order, followed by a preview
// marker for the selected candidate.
func Markers(bms []bookmarks.Bookmark, s Session) []Marker {
	out := make([]Marker, 0, len(bms)+1)
	for _, b := range bms {
		out = append(out, Marker{
			Lat:     b.Lat,
			Lon:     b.Lon,
			Label:   b.Name,
			Detail:  b.Desc,
			Tooltip: b.Name,
			Style:   StyleBookmark,
		})
	}
	if c, ok := s.Candidate(); ok {
		out = append(out, Marker{
			Lat:     c.Lat,
			Lon:     c.Lon,
			Label:   c.DisplayName,
			Tooltip: c.DisplayName,
			Style:   StylePreview,
		})
	}
	return out
}

// ViewFor picks the map view: the selected candidate at the tighter zoom,
// else the last appended bookmark, else the default center.
func (a *App) ViewFor(bms []bookmarks.Bookmark, s Session) View {
	if c, ok := s.Candidate(); ok {
		return View{Center: LatLon{Lat: c.Lat, Lon: c.Lon}, Zoom: a.cfg.SelectedZoom}
	}
	v := View{Center: a.cfg.DefaultCenter, Zoom: a.cfg.DefaultZoom}
	if n := len(bms); n > 0 {
		v.Center = LatLon{Lat: bms[n-1].Lat, Lon: bms[n-1].Lon}
	}
	return v
}
