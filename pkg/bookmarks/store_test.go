package bookmarks

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "data", "bookmarks.json"))
	s.now = func() time.Time { return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC) }
	return s
}

func sample() []Bookmark {
	return []Bookmark{
		{ID: "a", Name: "Gyeongbokgung", Desc: "palace", Lat: 37.5796, Lon: 126.9770},
		{ID: "b", Name: "남산타워", Desc: "야경 명소 <night view> & more", Lat: 37.5512, Lon: 126.9882},
		{ID: "c", Name: "Bukchon", Desc: "hanok village", Lat: 37.5826, Lon: 126.9831},
	}
}

func TestLoadAllMissingFile(t *testing.T) {
	s := newTestStore(t)
	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.NotNil(t, bms)
	assert.Empty(t, bms)
}

func TestLoadAllEmptyFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("  \n"), 0o644))
	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, bms)
}

func TestLoadAllMalformed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	_, err := s.LoadAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreIO)
}

func TestSaveAllRoundTrip(t *testing.T) {
	cases := map[string][]Bookmark{
		"empty":  {},
		"single": sample()[:1],
		"many":   sample(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.SaveAll(in))
			first, err := os.ReadFile(s.Path())
			require.NoError(t, err)

			loaded, err := s.LoadAll()
			require.NoError(t, err)
			assert.Equal(t, in, loaded)

			require.NoError(t, s.SaveAll(loaded))
			second, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestSaveAllWritesReadableUTF8(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()))
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "남산타워")
	assert.Contains(t, text, "<night view> & more")
	assert.Contains(t, text, "\n  {\n    \"id\": \"a\",")
	assert.NoFileExists(t, s.Path()+".tmp")
}

func TestAppend(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()[:2]))

	got, err := s.Append(Bookmark{Name: "Seoul Station, Seoul", Desc: "daily commute hub", Lat: 37.5547, Lon: 126.9707})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "2025-05-01T09:30:00Z", got.Created)

	bms, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, bms, 3)
	assert.Equal(t, sample()[:2], bms[:2])
	assert.Equal(t, got, bms[2])
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t)
	bad := []Bookmark{
		{Name: "", Desc: "x", Lat: 1, Lon: 1},
		{Name: "x", Desc: "   ", Lat: 1, Lon: 1},
		{Name: "x", Desc: "x", Lat: 91, Lon: 1},
		{Name: "x", Desc: "x", Lat: 1, Lon: -181},
	}
	for _, b := range bad {
		_, err := s.Append(b)
		assert.ErrorIs(t, err, ErrInvalid)
	}
	assert.NoFileExists(t, s.Path())
}

func TestDeleteAt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()))

	ok, err := s.DeleteAt(1)
	require.NoError(t, err)
	assert.True(t, ok)

	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []Bookmark{sample()[0], sample()[2]}, bms)
}

func TestDeleteAtOutOfRange(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	for _, i := range []int{-1, 3, 100} {
		ok, err := s.DeleteAt(i)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteAtEmptyStore(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.DeleteAt(0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, s.Path())
}

func TestDeleteAtID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()))

	ok, err := s.DeleteAtID(1, "c")
	assert.ErrorIs(t, err, ErrStalePosition)
	assert.False(t, ok)

	ok, err = s.DeleteAtID(7, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteAtID(1, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []Bookmark{sample()[0], sample()[2]}, bms)
}

func TestDeleteByID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()))

	ok, err := s.Delete("c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, sample()[:2], bms)
}

func TestRename(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveAll(sample()))

	ok, err := s.Rename("a", "경복궁")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Rename("zzz", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Rename("a", " ")
	assert.ErrorIs(t, err, ErrInvalid)

	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, "경복궁", bms[0].Name)
}

func TestLegacyRecordsGetStableIDs(t *testing.T) {
	s := newTestStore(t)
	legacy := `[
  {"name": "서울시청", "desc": "기본 위치", "lat": 37.5665, "lon": 126.978}
]`
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	first, err := s.LoadAll()
	require.NoError(t, err)
	second, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.NotEmpty(t, first[0].ID)
	assert.Equal(t, first[0].ID, second[0].ID)

	ok, err := s.Delete(first[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(Bookmark{Name: strings.Repeat("x", i+1), Desc: "d", Lat: 1, Lon: 2})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	bms, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, bms, 20)
}

func TestWriteFailureIsStoreIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	s := NewStore(filepath.Join(blocker, "bookmarks.json"))

	_, err := s.Append(Bookmark{Name: "n", Desc: "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreIO)
}
