package library

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"github.com/kodiak-app/kodiak/backend/cache"
	"github.com/kodiak-app/kodiak/backend/jsonrpc"
)

// mockLibraryServer answers the audio library RPC methods from mutable
// fixture collections.
type mockLibraryServer struct {
	mu      sync.Mutex
	artists []Artist
	albums  []Album
	songs   []Song
	genres  []Genre
	stamps  UpdateStamps
}

func newMockLibraryServer() *mockLibraryServer {
	return &mockLibraryServer{
		artists: []Artist{
			{ID: 1, Name: "Miles Davis", Thumbnail: "md.jpg"},
			{ID: 2, Name: "Nina Simone"},
		},
		albums: []Album{
			{ID: 1, Title: "Kind of Blue", Artists: []string{"Miles Davis"}, ArtistIDs: []int{1}, Year: 1959, Thumbnail: "kob.jpg"},
			{ID: 2, Title: "Pastel Blues", Artists: []string{"Nina Simone"}, ArtistIDs: []int{2}, Year: 1965, Thumbnail: "pb.jpg"},
			{ID: 3, Title: "Blue Moods", Artists: []string{"Various Artists"}, ArtistIDs: []int{1, 2}, Year: 1998, Thumbnail: "bm.jpg", Compilation: true},
		},
		songs: []Song{
			{ID: 1, Title: "So What", Album: "Kind of Blue", AlbumID: 1, Genres: []string{"Jazz"}, GenreIDs: []int{1}, Disc: 1, Track: 1, DateAdded: "2024-01-01 08:00:00"},
			{ID: 2, Title: "Freddie Freeloader", Album: "Kind of Blue", AlbumID: 1, Genres: []string{"Jazz"}, GenreIDs: []int{1}, Disc: 1, Track: 2, DateAdded: "2024-01-01 08:00:00"},
			{ID: 3, Title: "Blue in Green", Album: "Kind of Blue", AlbumID: 1, Genres: []string{"Jazz"}, GenreIDs: []int{1}, Disc: 1, Track: 3, DateAdded: "2024-01-01 08:00:00"},
			{ID: 4, Title: "All Blues", Album: "Kind of Blue", AlbumID: 1, Genres: []string{"Jazz"}, GenreIDs: []int{1}, Disc: 1, Track: 4, DateAdded: "2024-01-01 08:00:00"},
			{ID: 5, Title: "Sinnerman", Album: "Pastel Blues", AlbumID: 2, Genres: []string{"Vocal"}, GenreIDs: []int{2}, Disc: 1, Track: 1, PlayCount: 7, DateAdded: "2024-02-10 12:00:00", LastPlayed: "2024-03-02 20:00:00"},
			{ID: 6, Title: "Strange Fruit", Album: "Pastel Blues", AlbumID: 2, Genres: []string{"Vocal"}, GenreIDs: []int{2}, Disc: 1, Track: 2, DateAdded: "2024-02-10 12:00:00"},
			{ID: 7, Title: "Trouble in Mind", Album: "Pastel Blues", AlbumID: 2, Genres: []string{"Vocal"}, GenreIDs: []int{2}, Disc: 1, Track: 3, DateAdded: "2024-02-10 12:00:00"},
			{ID: 8, Title: "Mood One", Album: "Blue Moods", AlbumID: 3, Genres: []string{"Jazz"}, GenreIDs: []int{1}, Disc: 1, Track: 1, DateAdded: "2024-03-01 09:00:00"},
			{ID: 9, Title: "Mood Two", Album: "Blue Moods", AlbumID: 3, Genres: []string{"Jazz"}, GenreIDs: []int{1}, Disc: 1, Track: 2, DateAdded: "2024-03-01 09:00:00"},
			{ID: 10, Title: "Mood Three", Album: "Blue Moods", AlbumID: 3, Genres: []string{"Vocal"}, GenreIDs: []int{2}, Disc: 1, Track: 3, DateAdded: "2024-03-01 09:00:00"},
		},
		genres: []Genre{
			{ID: 1, Label: "Jazz"},
			{ID: 2, Label: "Vocal"},
		},
		stamps: UpdateStamps{
			SongsLastAdded:     "2024-03-01 09:00:00",
			AlbumsLastAdded:    "2024-03-01 09:00:00",
			AlbumsModified:     "2024-03-01 09:00:00",
			LibraryLastUpdated: "2024-03-01 09:00:00",
		},
	}
}

func (m *mockLibraryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var result any
	switch req.Method {
	case jsonrpc.MethodAudioLibraryGetArtists:
		result = map[string]any{"artists": m.artists}
	case jsonrpc.MethodAudioLibraryGetAlbums:
		result = map[string]any{"albums": m.albums}
	case jsonrpc.MethodAudioLibraryGetSongs:
		result = map[string]any{"songs": m.songs}
	case jsonrpc.MethodAudioLibraryGetGenres:
		result = map[string]any{"genres": m.genres}
	case jsonrpc.MethodFilesGetDirectory:
		result = map[string]any{"files": []PlaylistFile{}}
	case jsonrpc.MethodAudioLibraryGetProperties:
		result = m.stamps
	case jsonrpc.MethodAudioLibrarySetSongDetails, jsonrpc.MethodPing:
		result = "OK"
	default:
		http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func newTestStore(t *testing.T, m *mockLibraryServer) (*Store, *cache.Cache, string, func()) {
	t.Helper()
	srv := httptest.NewServer(m)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())
	client := jsonrpc.NewClient(u.Hostname(), port, "", "", jsonrpc.ClientOptions{})
	dir := t.TempDir()
	c := cache.New(dir)
	return NewStore(client, c, u.Hostname(), DefaultOptions()), c, dir, srv.Close
}

func Test_LoadPopulatesMirrorAndCache(t *testing.T) {
	m := newMockLibraryServer()
	s, _, dir, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Loaded() {
		t.Error("Loaded() = false after a successful Load")
	}
	if got := len(s.Songs()); got != 10 {
		t.Errorf("songs = %d, want 10", got)
	}
	if got := len(s.Artists()); got != 2 {
		t.Errorf("artists = %d, want 2", got)
	}
	if got := len(s.Albums()); got != 3 {
		t.Errorf("albums = %d, want 3", got)
	}
	if got := len(s.Genres()); got != 2 {
		t.Errorf("genres = %d, want 2", got)
	}

	for _, key := range []string{"MyArtists", "MyAlbums", "MySongs", "MyGenres", "MyPlaylists"} {
		if _, err := os.Stat(filepath.Join(dir, "127.0.0.1", key+".cache")); err != nil {
			t.Errorf("cache file for %s missing: %v", key, err)
		}
	}
}

func Test_LoadMergesAlbumFields(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	albums := make(map[int]Album)
	for _, a := range s.Albums() {
		albums[a.ID] = a
	}
	for _, sg := range s.Songs() {
		a, ok := albums[sg.AlbumID]
		if !ok {
			t.Fatalf("song %d references unknown album %d", sg.ID, sg.AlbumID)
		}
		if sg.Compilation != a.Compilation {
			t.Errorf("song %d compilation = %v, album says %v", sg.ID, sg.Compilation, a.Compilation)
		}
		if sg.Thumbnail != a.Thumbnail {
			t.Errorf("song %d thumbnail = %q, album says %q", sg.ID, sg.Thumbnail, a.Thumbnail)
		}
		if !reflect.DeepEqual(sg.Artists, a.Artists) {
			t.Errorf("song %d artists = %v, album says %v", sg.ID, sg.Artists, a.Artists)
		}
	}
}

func Test_LoadFromCacheSurvivesServerLoss(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("initial Load: %v", err)
	}
	artists, albums, songs, genres := s.Artists(), s.Albums(), s.Songs(), s.Genres()

	// every collection is cached now, so a cached load must not touch the
	// network at all
	stop()
	if err := s.Load(context.Background(), false); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if !reflect.DeepEqual(s.Artists(), artists) {
		t.Error("artists differ after cached Load")
	}
	if !reflect.DeepEqual(s.Albums(), albums) {
		t.Error("albums differ after cached Load")
	}
	if !reflect.DeepEqual(s.Songs(), songs) {
		t.Error("songs differ after cached Load")
	}
	if !reflect.DeepEqual(s.Genres(), genres) {
		t.Error("genres differ after cached Load")
	}
}

func Test_RefreshSongs(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.mu.Lock()
	m.songs = append(m.songs, Song{ID: 11, Title: "Flamenco Sketches", Album: "Kind of Blue", AlbumID: 1, GenreIDs: []int{1}, Disc: 1, Track: 5, DateAdded: "2024-04-01 10:00:00"})
	m.mu.Unlock()

	if err := s.RefreshSongs(context.Background()); err != nil {
		t.Fatalf("RefreshSongs: %v", err)
	}
	if got := len(s.Songs()); got != 11 {
		t.Errorf("songs = %d after refresh, want 11", got)
	}
	sg, ok := s.Song(11)
	if !ok {
		t.Fatal("new song not found")
	}
	if sg.Thumbnail != "kob.jpg" {
		t.Error("refreshed songs did not go through the album merge pass")
	}
}

func Test_FilterViewByGenre(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sel := Selection{}
	sel.SelectGenre(&Genre{ID: 1, Label: "Jazz"})
	v := s.FilterView(sel)

	want := []int{1, 2, 3, 4} // jazz songs off non-compilation albums, album order
	if got := songIDs(v.Songs); !reflect.DeepEqual(got, want) {
		t.Errorf("jazz songs = %v, want %v", got, want)
	}
}

func Test_CheckLastUpdate(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)
	defer stop()
	ctx := context.Background()

	// establish the baseline
	outdated, err := s.CheckLastUpdate(ctx, true)
	if err != nil {
		t.Fatalf("CheckLastUpdate: %v", err)
	}
	if outdated {
		t.Error("baseline write reported outdated")
	}

	outdated, err = s.CheckLastUpdate(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if outdated {
		t.Error("unchanged stamps reported outdated")
	}

	m.mu.Lock()
	m.stamps.SongsLastAdded = "2024-05-01 00:00:00"
	m.mu.Unlock()

	outdated, err = s.CheckLastUpdate(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !outdated {
		t.Error("changed stamps not reported outdated")
	}
}

func Test_ToggleFavorite(t *testing.T) {
	m := newMockLibraryServer()
	s, c, _, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !s.ToggleFavorite(1) {
		t.Fatal("ToggleFavorite reported unknown song")
	}
	sg, _ := s.Song(1)
	if sg.Rating != DefaultOptions().FavoriteRating {
		t.Errorf("rating = %d after favoriting, want %d", sg.Rating, DefaultOptions().FavoriteRating)
	}

	// the optimistic edit is persisted so it survives a restart
	cached, ok := cache.Get[[]Song](c, "127.0.0.1", "MySongs")
	if !ok {
		t.Fatal("songs missing from cache after ToggleFavorite")
	}
	for _, csg := range cached {
		if csg.ID == 1 && csg.Rating != DefaultOptions().FavoriteRating {
			t.Errorf("cached rating = %d, want %d", csg.Rating, DefaultOptions().FavoriteRating)
		}
	}

	if !s.ToggleFavorite(1) {
		t.Fatal("second ToggleFavorite failed")
	}
	sg, _ = s.Song(1)
	if sg.Rating != 0 {
		t.Errorf("rating = %d after unfavoriting, want 0", sg.Rating)
	}

	if s.ToggleFavorite(999) {
		t.Error("ToggleFavorite succeeded for an unknown song")
	}
}

func Test_ResetPlayStats(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !s.ResetPlayStats(5) {
		t.Fatal("ResetPlayStats reported unknown song")
	}
	sg, _ := s.Song(5)
	if sg.PlayCount != 0 || sg.LastPlayed != "" {
		t.Errorf("play stats not cleared: count=%d lastplayed=%q", sg.PlayCount, sg.LastPlayed)
	}

	// derived lists are recomputed from the edit
	var sel Selection
	sel.SetList(ListMostPlayed)
	if v := s.FilterView(sel); len(v.Songs) != 0 {
		t.Errorf("most played still lists %v", songIDs(v.Songs))
	}
}

func Test_ResetClearsMirror(t *testing.T) {
	m := newMockLibraryServer()
	s, _, _, stop := newTestStore(t, m)
	defer stop()

	if err := s.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Reset("living-room")

	if s.Loaded() {
		t.Error("Loaded() = true after Reset")
	}
	if len(s.Songs()) != 0 {
		t.Error("songs remain after Reset")
	}
	if s.StatusMessage() == "" {
		t.Error("no placeholder status after Reset")
	}
}
