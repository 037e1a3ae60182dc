package bookmarks

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GPX interchange for bookmarks: export to <wpt> elements and import from
// any GPX file's waypoints.

// coordKeyPrecision is the number of decimal places coordinates are
// normalized to when deciding whether two records are the same place.
const coordKeyPrecision = 6

type gpxWaypoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Time string  `xml:"time,omitempty"`
	Name string  `xml:"name,omitempty"`
	Desc string  `xml:"desc,omitempty"`
}

type gpxRoot struct {
	XMLName   xml.Name      `xml:"gpx"`
	Version   string        `xml:"version,attr,omitempty"`
	Creator   string        `xml:"creator,attr,omitempty"`
	Xmlns     string        `xml:"xmlns,attr,omitempty"`
	Waypoints []gpxWaypoint `xml:"wpt"`
}

// WriteGPX writes bms as a GPX 1.1 document.
func WriteGPX(w io.Writer, bms []Bookmark) error {
	root := gpxRoot{
		Version: "1.1",
		Creator: "bookmap",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
	}
	for _, b := range bms {
		root.Waypoints = append(root.Waypoints, gpxWaypoint{
			Lat:  b.Lat,
			Lon:  b.Lon,
			Time: b.Created,
			Name: b.Name,
			Desc: b.Desc,
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode gpx: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ReadGPX parses the waypoints of a GPX document into bookmarks. Timestamps
// are normalized to RFC3339 UTC; waypoints without a name are skipped.
func ReadGPX(r io.Reader) ([]Bookmark, error) {
	var root gpxRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse gpx: %w", err)
	}
	out := make([]Bookmark, 0, len(root.Waypoints))
	for _, w := range root.Waypoints {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			continue
		}
		b := Bookmark{Name: name, Desc: strings.TrimSpace(w.Desc), Lat: w.Lat, Lon: w.Lon}
		if ts := strings.TrimSpace(w.Time); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				b.Created = t.UTC().Format(time.RFC3339)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// placeKey returns a stable identity key combining name and normalized
// coordinates.
func placeKey(b Bookmark) string {
	lat := strconv.FormatFloat(roundTo(b.Lat, coordKeyPrecision), 'f', coordKeyPrecision, 64)
	lon := strconv.FormatFloat(roundTo(b.Lon, coordKeyPrecision), 'f', coordKeyPrecision, 64)
	return b.Name + "|" + lat + "|" + lon
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Dedupe returns bms without later duplicates of the same place, keeping
// first-occurrence order. The input is not modified.
func Dedupe(bms []Bookmark) []Bookmark {
	seen := make(map[string]struct{}, len(bms))
	out := make([]Bookmark, 0, len(bms))
	for _, b := range bms {
		k := placeKey(b)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b)
	}
	return out
}

// Import appends every incoming bookmark that is valid and not already
// stored (same name at the same coordinates), in one rewrite. Imported
// records without a description get fallback. Returns the number added.
func (s *Store) Import(incoming []Bookmark, fallback string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, b := range existing {
		seen[placeKey(b)] = struct{}{}
	}
	now := s.now().UTC().Format(time.RFC3339)

	out := existing
	for _, b := range Dedupe(incoming) {
		if _, ok := seen[placeKey(b)]; ok {
			continue
		}
		if strings.TrimSpace(b.Desc) == "" {
			b.Desc = fallback
		}
		if err := b.Validate(); err != nil {
			continue
		}
		b.ID = uuid.NewString()
		if b.Created == "" {
			b.Created = now
		}
		out = append(out, b)
	}
	added := len(out) - len(existing)
	if added == 0 {
		return 0, nil
	}
	if err := s.write(out); err != nil {
		return 0, err
	}
	return added, nil
}
