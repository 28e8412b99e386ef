package library

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/kodiak-app/kodiak/backend/cache"
	"github.com/kodiak-app/kodiak/backend/jsonrpc"
	"github.com/kodiak-app/kodiak/sharedutil"
)

// Disk cache keys, one per collection, namespaced per host.
const (
	cacheKeyArtists    = "MyArtists"
	cacheKeyAlbums     = "MyAlbums"
	cacheKeySongs      = "MySongs"
	cacheKeyGenres     = "MyGenres"
	cacheKeyPlaylists  = "MyPlaylists"
	cacheKeyLastUpdate = "LastUpdate"
)

// Options carries the numeric caps and thresholds that differ between
// deployments; they are configuration, not constants.
type Options struct {
	RecentlyAddedCap        int
	RecentlyPlayedCap       int
	MostPlayedCap           int
	RandomCap               int
	FavoriteRatingThreshold int // rating at or above which a song counts as a favorite
	FavoriteRating          int // rating assigned when favoriting a song
}

func DefaultOptions() Options {
	return Options{
		RecentlyAddedCap:        500,
		RecentlyPlayedCap:       100,
		MostPlayedCap:           100,
		RandomCap:               100,
		FavoriteRatingThreshold: 4,
		FavoriteRating:          10,
	}
}

// Store owns the in-memory mirror of one host's music library and its
// loading/reload orchestration. Collections are fully replaced on reload;
// individual songs are mutated in place for rating and play-stat edits.
type Store struct {
	// OnLoaded is invoked once all five collections report loaded,
	// after every successful Load.
	OnLoaded func()

	client    *jsonrpc.Client
	cache     *cache.Cache
	namespace string // host IP
	opts      Options

	mu             sync.Mutex
	artists        []Artist
	albums         []Album
	songs          []Song
	genres         []Genre
	playlists      []PlaylistFile
	artistsLoaded  bool
	albumsLoaded   bool
	songsLoaded    bool
	genresLoaded   bool
	playlistsLoad  bool
	recentlyAdded  []Song
	recentlyPlayed []Song
	mostPlayed     []Song
	neverPlayed    []Song
	random         []Song
	statusMessage  string
}

func NewStore(client *jsonrpc.Client, c *cache.Cache, hostIP string, opts Options) *Store {
	return &Store{
		client:    client,
		cache:     c,
		namespace: hostIP,
		opts:      opts,
	}
}

// Reset clears all collections and re-seeds the placeholder status text
// shown while the new host's library loads.
func (s *Store) Reset(hostName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artists, s.albums, s.songs, s.genres, s.playlists = nil, nil, nil, nil, nil
	s.artistsLoaded, s.albumsLoaded, s.songsLoaded, s.genresLoaded, s.playlistsLoad = false, false, false, false, false
	s.recentlyAdded, s.recentlyPlayed, s.mostPlayed, s.neverPlayed, s.random = nil, nil, nil, nil, nil
	s.statusMessage = fmt.Sprintf("Loading library from %s…", hostName)
}

func (s *Store) StatusMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusMessage
}

// Loaded reports whether all collections have been loaded this session.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artistsLoaded && s.albumsLoaded && s.songsLoaded && s.genresLoaded && s.playlistsLoad
}

// Load populates the library mirror. With reload false each collection is
// independently served from the disk cache when possible; with reload true
// the cache is bypassed and overwritten. Collection fetches fan out
// concurrently and are joined before the song↔album merge pass.
//
// A Load that supersedes an in-flight one is not cancelled; whichever
// commit completes last wins, and each commit fully replaces the mirror.
func (s *Store) Load(ctx context.Context, reload bool) error {
	var (
		artists   []Artist
		albums    []Album
		songs     []Song
		genres    []Genre
		playlists []PlaylistFile
		errs      [5]error
	)
	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		artists, errs[0] = s.loadArtists(ctx, reload)
	}()
	go func() {
		defer wg.Done()
		albums, errs[1] = s.loadAlbums(ctx, reload)
	}()
	go func() {
		defer wg.Done()
		songs, errs[2] = s.loadSongs(ctx, reload)
	}()
	go func() {
		defer wg.Done()
		genres, errs[3] = s.loadGenres(ctx, reload)
	}()
	go func() {
		defer wg.Done()
		playlists, errs[4] = s.loadPlaylists(ctx, reload)
	}()
	wg.Wait()
	if err := errors.Join(errs[:]...); err != nil {
		return err
	}

	mergeSongs(songs, albums)
	sortCollections(artists, albums, songs)

	s.mu.Lock()
	s.artists, s.albums, s.songs, s.genres, s.playlists = artists, albums, songs, genres, playlists
	s.artistsLoaded, s.albumsLoaded, s.songsLoaded, s.genresLoaded, s.playlistsLoad = true, true, true, true, true
	s.deriveListsLocked()
	s.statusMessage = ""
	s.mu.Unlock()

	if s.OnLoaded != nil {
		s.OnLoaded()
	}
	return nil
}

// RefreshSongs refetches the song collection live, keeping the rest of the
// mirror, and recomputes the merge pass and derived lists. Used when the
// server signals a library update outside of a full scan.
func (s *Store) RefreshSongs(ctx context.Context) error {
	songs, err := s.fetchSongs(ctx)
	if err != nil {
		return err
	}
	s.writeCache(cacheKeySongs, songs)

	s.mu.Lock()
	defer s.mu.Unlock()
	mergeSongs(songs, s.albums)
	sortSongs(songs)
	s.songs = songs
	s.songsLoaded = true
	s.deriveListsLocked()
	return nil
}

type artistsResult struct {
	Artists []Artist `json:"artists"`
}

type albumsResult struct {
	Albums []Album `json:"albums"`
}

type songsResult struct {
	Songs []Song `json:"songs"`
}

type genresResult struct {
	Genres []Genre `json:"genres"`
}

type filesResult struct {
	Files []PlaylistFile `json:"files"`
}

type propertiesParams struct {
	Properties []string `json:"properties"`
}

type getArtistsParams struct {
	AlbumArtistsOnly bool     `json:"albumartistsonly"`
	Properties       []string `json:"properties"`
}

type getDirectoryParams struct {
	Directory  string   `json:"directory"`
	Media      string   `json:"media"`
	Properties []string `json:"properties,omitempty"`
}

func (s *Store) loadArtists(ctx context.Context, reload bool) ([]Artist, error) {
	if !reload {
		if cached, ok := cache.Get[[]Artist](s.cache, s.namespace, cacheKeyArtists); ok {
			return cached, nil
		}
	}
	res, err := jsonrpc.Send[artistsResult](ctx, s.client, jsonrpc.MethodAudioLibraryGetArtists, getArtistsParams{
		AlbumArtistsOnly: false,
		Properties:       []string{"description", "thumbnail", "fanart"},
	})
	if err != nil {
		return nil, err
	}
	s.writeCache(cacheKeyArtists, res.Artists)
	return res.Artists, nil
}

func (s *Store) loadAlbums(ctx context.Context, reload bool) ([]Album, error) {
	if !reload {
		if cached, ok := cache.Get[[]Album](s.cache, s.namespace, cacheKeyAlbums); ok {
			return cached, nil
		}
	}
	res, err := jsonrpc.Send[albumsResult](ctx, s.client, jsonrpc.MethodAudioLibraryGetAlbums, propertiesParams{
		Properties: []string{"title", "artist", "artistid", "year", "genre", "description", "thumbnail", "fanart", "compilation", "playcount", "dateadded"},
	})
	if err != nil {
		return nil, err
	}
	s.writeCache(cacheKeyAlbums, res.Albums)
	return res.Albums, nil
}

func (s *Store) loadSongs(ctx context.Context, reload bool) ([]Song, error) {
	if !reload {
		if cached, ok := cache.Get[[]Song](s.cache, s.namespace, cacheKeySongs); ok {
			return cached, nil
		}
	}
	songs, err := s.fetchSongs(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(cacheKeySongs, songs)
	return songs, nil
}

func (s *Store) fetchSongs(ctx context.Context) ([]Song, error) {
	res, err := jsonrpc.Send[songsResult](ctx, s.client, jsonrpc.MethodAudioLibraryGetSongs, propertiesParams{
		Properties: []string{"title", "album", "albumid", "artist", "artistid", "genre", "genreid", "track", "disc", "year", "duration", "playcount", "userrating", "dateadded", "lastplayed", "thumbnail"},
	})
	if err != nil {
		return nil, err
	}
	return res.Songs, nil
}

func (s *Store) loadGenres(ctx context.Context, reload bool) ([]Genre, error) {
	if !reload {
		if cached, ok := cache.Get[[]Genre](s.cache, s.namespace, cacheKeyGenres); ok {
			return cached, nil
		}
	}
	res, err := jsonrpc.Send[genresResult](ctx, s.client, jsonrpc.MethodAudioLibraryGetGenres, propertiesParams{
		Properties: []string{"thumbnail"},
	})
	if err != nil {
		return nil, err
	}
	s.writeCache(cacheKeyGenres, res.Genres)
	return res.Genres, nil
}

func (s *Store) loadPlaylists(ctx context.Context, reload bool) ([]PlaylistFile, error) {
	if !reload {
		if cached, ok := cache.Get[[]PlaylistFile](s.cache, s.namespace, cacheKeyPlaylists); ok {
			return cached, nil
		}
	}
	res, err := jsonrpc.Send[filesResult](ctx, s.client, jsonrpc.MethodFilesGetDirectory, getDirectoryParams{
		Directory: "special://musicplaylists",
		Media:     "music",
	})
	if err != nil {
		return nil, err
	}
	s.writeCache(cacheKeyPlaylists, res.Files)
	return res.Files, nil
}

// PlaylistSongIDs fetches the contents of a playlist file and resolves them
// to library song IDs.
func (s *Store) PlaylistSongIDs(ctx context.Context, file string) ([]int, error) {
	type entry struct {
		ID int `json:"id"`
	}
	type result struct {
		Files []entry `json:"files"`
	}
	res, err := jsonrpc.Send[result](ctx, s.client, jsonrpc.MethodFilesGetDirectory, getDirectoryParams{
		Directory: file,
		Media:     "music",
	})
	if err != nil {
		return nil, err
	}
	return sharedutil.MapSlice(res.Files, func(e entry) int { return e.ID }), nil
}

// writeCache persists a collection, logging and swallowing failures: an
// unsaved entry only means the next session refetches from the server.
func (s *Store) writeCache(key string, val any) {
	if err := cache.Set(s.cache, s.namespace, key, val); err != nil {
		log.Printf("failed to cache %s for host %s: %v", key, s.namespace, err)
	}
}

// mergeSongs denormalizes select album fields onto each song and builds the
// precomputed lowercase search string. Must run only after both songs and
// albums have resolved.
func mergeSongs(songs []Song, albums []Album) {
	byID := make(map[int]*Album, len(albums))
	for i := range albums {
		byID[albums[i].ID] = &albums[i]
	}
	for i := range songs {
		sg := &songs[i]
		if a, ok := byID[sg.AlbumID]; ok {
			sg.Compilation = a.Compilation
			sg.Thumbnail = a.Thumbnail
			sg.Artists = a.Artists
			sg.ArtistIDs = a.ArtistIDs
		}
		sg.searchString = Normalize(strings.Join(sg.Artists, " ") + " " + sg.Album + " " + sg.Title)
	}
}

func sortCollections(artists []Artist, albums []Album, songs []Song) {
	sort.SliceStable(artists, func(i, j int) bool {
		return strings.ToLower(artists[i].Name) < strings.ToLower(artists[j].Name)
	})
	sort.SliceStable(albums, func(i, j int) bool {
		ai, aj := firstOrEmpty(albums[i].Artists), firstOrEmpty(albums[j].Artists)
		if ai != aj {
			return strings.ToLower(ai) < strings.ToLower(aj)
		}
		return albums[i].Year < albums[j].Year
	})
	sortSongs(songs)
}

func sortSongs(songs []Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		if songs[i].AlbumID != songs[j].AlbumID {
			return songs[i].AlbumID < songs[j].AlbumID
		}
		if songs[i].Disc != songs[j].Disc {
			return songs[i].Disc < songs[j].Disc
		}
		return songs[i].Track < songs[j].Track
	})
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// deriveListsLocked recomputes the capped smart lists from the song
// collection. Caller must hold s.mu.
func (s *Store) deriveListsLocked() {
	s.recentlyAdded = capped(sortedByDesc(s.songs, func(sg Song) string { return sg.DateAdded }), s.opts.RecentlyAddedCap)
	s.recentlyPlayed = capped(sortedByDesc(
		sharedutil.FilterSlice(s.songs, func(sg Song) bool { return sg.LastPlayed != "" }),
		func(sg Song) string { return sg.LastPlayed }), s.opts.RecentlyPlayedCap)

	played := sharedutil.FilterSlice(s.songs, func(sg Song) bool { return sg.PlayCount > 0 })
	sort.SliceStable(played, func(i, j int) bool { return played[i].PlayCount > played[j].PlayCount })
	s.mostPlayed = capped(played, s.opts.MostPlayedCap)

	s.neverPlayed = sharedutil.FilterSlice(s.songs, func(sg Song) bool { return sg.PlayCount == 0 })

	shuffled := make([]Song, len(s.songs))
	copy(shuffled, s.songs)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	s.random = capped(shuffled, s.opts.RandomCap)
}

// sortedByDesc returns a copy of songs sorted descending by the given
// timestamp field. The server's "YYYY-MM-DD hh:mm:ss" format sorts
// correctly as a string.
func sortedByDesc(songs []Song, key func(Song) string) []Song {
	out := make([]Song, len(songs))
	copy(out, songs)
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) > key(out[j]) })
	return out
}

func capped(songs []Song, n int) []Song {
	if n > 0 && len(songs) > n {
		return songs[:n]
	}
	return songs
}

// CheckLastUpdate fetches the server's last-modified timestamps. With
// cacheOnWrite true the snapshot becomes the new cached baseline. Otherwise
// it is compared field-by-field against the cached baseline; a mismatch
// means the cached library is outdated. The result is advisory: it drives a
// reload prompt, never an automatic reload.
func (s *Store) CheckLastUpdate(ctx context.Context, cacheOnWrite bool) (outdated bool, err error) {
	stamps, err := jsonrpc.Send[UpdateStamps](ctx, s.client, jsonrpc.MethodAudioLibraryGetProperties, propertiesParams{
		Properties: []string{"songslastadded", "albumslastadded", "albumsmodified", "librarylastupdated"},
	})
	if err != nil {
		return false, err
	}
	if cacheOnWrite {
		s.writeCache(cacheKeyLastUpdate, stamps)
		return false, nil
	}
	baseline, ok := cache.Get[UpdateStamps](s.cache, s.namespace, cacheKeyLastUpdate)
	if !ok {
		// no baseline to compare against; adopt the snapshot
		s.writeCache(cacheKeyLastUpdate, stamps)
		return false, nil
	}
	return !stamps.Equal(baseline), nil
}

type setSongDetailsParams struct {
	SongID     int     `json:"songid"`
	Rating     *int    `json:"userrating,omitempty"`
	PlayCount  *int    `json:"playcount,omitempty"`
	LastPlayed *string `json:"lastplayed,omitempty"`
}

// ToggleFavorite flips a song's favorite status by rating. The in-memory
// mirror is mutated first, persisted to cache, then pushed to the server
// fire-and-forget: local wins until the next full reload.
func (s *Store) ToggleFavorite(songID int) bool {
	s.mu.Lock()
	sg := s.songLocked(songID)
	if sg == nil {
		s.mu.Unlock()
		return false
	}
	if sg.Rating >= s.opts.FavoriteRatingThreshold {
		sg.Rating = 0
	} else {
		sg.Rating = s.opts.FavoriteRating
	}
	rating := sg.Rating
	songs := s.songs
	s.mu.Unlock()

	s.writeCache(cacheKeySongs, songs)
	s.client.Notify(jsonrpc.MethodAudioLibrarySetSongDetails, setSongDetailsParams{
		SongID: songID,
		Rating: &rating,
	})
	return true
}

// ResetPlayStats zeroes a song's play count and last-played timestamp,
// optimistically like ToggleFavorite.
func (s *Store) ResetPlayStats(songID int) bool {
	s.mu.Lock()
	sg := s.songLocked(songID)
	if sg == nil {
		s.mu.Unlock()
		return false
	}
	sg.PlayCount = 0
	sg.LastPlayed = ""
	songs := s.songs
	s.deriveListsLocked()
	s.mu.Unlock()

	s.writeCache(cacheKeySongs, songs)
	zero := 0
	empty := ""
	s.client.Notify(jsonrpc.MethodAudioLibrarySetSongDetails, setSongDetailsParams{
		SongID:     songID,
		PlayCount:  &zero,
		LastPlayed: &empty,
	})
	return true
}

func (s *Store) songLocked(songID int) *Song {
	for i := range s.songs {
		if s.songs[i].ID == songID {
			return &s.songs[i]
		}
	}
	return nil
}

// Accessors return the live backing slices; callers must treat them as
// read-only.

func (s *Store) Artists() []Artist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artists
}

func (s *Store) Albums() []Album {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.albums
}

func (s *Store) Songs() []Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.songs
}

func (s *Store) Genres() []Genre {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genres
}

func (s *Store) Playlists() []PlaylistFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlists
}

func (s *Store) Song(songID int) (Song, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg := s.songLocked(songID); sg != nil {
		return *sg, true
	}
	return Song{}, false
}
