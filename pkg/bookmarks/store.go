package bookmarks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/bookmap/pkg/logger"
)

// Persistence layer for bookmarks.
//
// Responsibilities:
//   - Load the ordered bookmark list from a JSON file (missing file = empty list).
//   - Rewrite the whole list on every mutation using atomic writes.
//   - Append, delete (by position or id) and rename bookmarks.
//
// Concurrency:
//   - `mu` serializes every read-modify-write cycle of a Store, so two HTTP
//     sessions in the same process cannot lose each other's updates.
//   - Two processes writing the same file still race (last write wins).
//
// Atomic write pattern:
//   - Write to `file.tmp` then `os.Rename` over the original to avoid partial files.

var (
	// ErrInvalid is returned when a bookmark fails validation.
	ErrInvalid = errors.New("invalid bookmark")
	// ErrStoreIO wraps every failure to read or write the backing file.
	ErrStoreIO = errors.New("bookmark store i/o")
	// ErrStalePosition means the list changed since the caller read it.
	ErrStalePosition = errors.New("bookmark position is stale")
)

// Bookmark is a named, described, persisted geographic point.
type Bookmark struct {
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name"`
	Desc    string  `json:"desc"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Created string  `json:"created,omitempty"`
}

// Validate checks the fields required for a bookmark to be stored.
func (b Bookmark) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if strings.TrimSpace(b.Desc) == "" {
		return fmt.Errorf("%w: description required", ErrInvalid)
	}
	if b.Lat < -90 || b.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalid, b.Lat)
	}
	if b.Lon < -180 || b.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalid, b.Lon)
	}
	return nil
}

// Store owns the bookmark file at a fixed path. It keeps no cached copy
// between calls; every operation reads the file first.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore returns a Store persisting to path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// LoadAll returns the persisted bookmarks in order. A missing or empty
// file yields an empty slice.
func (s *Store) LoadAll() ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// SaveAll atomically replaces the persisted list with bms.
func (s *Store) SaveAll(bms []Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(bms)
}

// Append validates b, stamps a fresh id and creation time when missing and
// stores it at the end of the list. The stored record is returned.
func (s *Store) Append(b Bookmark) (Bookmark, error) {
	if err := b.Validate(); err != nil {
		return b, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Created == "" {
		b.Created = s.now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return b, err
	}
	if err := s.write(append(existing, b)); err != nil {
		return b, err
	}
	logger.Debug("bookmark appended id=%s name=%q lat=%.6f lon=%.6f", b.ID, b.Name, b.Lat, b.Lon)
	return b, nil
}

// DeleteAt removes the bookmark at position index. An out of range index
// is a no-op and reports false.
func (s *Store) DeleteAt(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bms, err := s.read()
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(bms) {
		return false, nil
	}
	bms = append(bms[:index], bms[index+1:]...)
	if err := s.write(bms); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAtID removes the bookmark at position index only while that
// position still holds the bookmark with the given id. A position that now
// holds a different bookmark returns ErrStalePosition and nothing changes.
func (s *Store) DeleteAtID(index int, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bms, err := s.read()
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(bms) {
		return false, nil
	}
	if bms[index].ID != id {
		return false, ErrStalePosition
	}
	bms = append(bms[:index], bms[index+1:]...)
	if err := s.write(bms); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the bookmark with the given id. Returns (found, error).
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bms, err := s.read()
	if err != nil {
		return false, err
	}
	i := indexOf(bms, id)
	if i < 0 {
		return false, nil
	}
	bms = append(bms[:i], bms[i+1:]...)
	if err := s.write(bms); err != nil {
		return false, err
	}
	return true, nil
}

// Rename changes the name of the bookmark with the given id. Returns (found, error).
// Renaming to the current name is a successful no-op.
func (s *Store) Rename(id, newName string) (bool, error) {
	if strings.TrimSpace(newName) == "" {
		return false, fmt.Errorf("%w: name required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bms, err := s.read()
	if err != nil {
		return false, err
	}
	i := indexOf(bms, id)
	if i < 0 {
		return false, nil
	}
	if bms[i].Name == newName {
		return true, nil
	}
	bms[i].Name = newName
	if err := s.write(bms); err != nil {
		return false, err
	}
	return true, nil
}

// read loads the file. Records written without an id get one assigned in
// memory; it becomes durable with the next write. Caller must hold mu.
func (s *Store) read() ([]Bookmark, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Bookmark{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreIO, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Bookmark{}, nil
	}
	var bms []Bookmark
	if err := json.Unmarshal(data, &bms); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrStoreIO, s.path, err)
	}
	if bms == nil {
		bms = []Bookmark{}
	}
	for i := range bms {
		if bms[i].ID == "" {
			bms[i].ID = legacyID(bms[i], i)
		}
	}
	return bms, nil
}

// write rewrites the file with bms (two-space indentation, UTF-8, no HTML
// escaping). Caller must hold mu.
func (s *Store) write(bms []Bookmark) error {
	if bms == nil {
		bms = []Bookmark{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bms); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStoreIO, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %w", ErrStoreIO, tmp, err)
	}
	return nil
}

// legacyID derives a deterministic id for records that predate ids, so
// repeated loads of an unmodified file agree on it.
func legacyID(b Bookmark, pos int) string {
	key := fmt.Sprintf("%d|%s|%.6f|%.6f", pos, b.Name, b.Lat, b.Lon)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func indexOf(bms []Bookmark, id string) int {
	if id == "" {
		return -1
	}
	for i := range bms {
		if bms[i].ID == id {
			return i
		}
	}
	return -1
}
