package library

// The JSON tags follow the server's audio library schema; collections are
// decoded straight off the wire and persisted to the disk cache in the same
// shape.

type Artist struct {
	ID          int    `json:"artistid"`
	Name        string `json:"artist"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Fanart      string `json:"fanart,omitempty"`
}

type Album struct {
	ID          int      `json:"albumid"`
	Title       string   `json:"title"`
	Artists     []string `json:"artist"`
	ArtistIDs   []int    `json:"artistid"`
	Year        int      `json:"year"`
	Genres      []string `json:"genre,omitempty"`
	Description string   `json:"description,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Fanart      string   `json:"fanart,omitempty"`
	Compilation bool     `json:"compilation"`
	PlayCount   int      `json:"playcount,omitempty"`
	DateAdded   string   `json:"dateadded,omitempty"`
}

type Song struct {
	ID         int      `json:"songid"`
	Title      string   `json:"title"`
	Album      string   `json:"album"`
	AlbumID    int      `json:"albumid"`
	Artists    []string `json:"artist"`
	ArtistIDs  []int    `json:"artistid"`
	Genres     []string `json:"genre,omitempty"`
	GenreIDs   []int    `json:"genreid,omitempty"`
	Track      int      `json:"track"`
	Disc       int      `json:"disc"`
	Year       int      `json:"year"`
	Duration   int      `json:"duration"`
	PlayCount  int      `json:"playcount"`
	Rating     int      `json:"userrating"`
	DateAdded  string   `json:"dateadded,omitempty"`
	LastPlayed string   `json:"lastplayed,omitempty"`
	Thumbnail  string   `json:"thumbnail,omitempty"`

	// Copied from the parent album by the merge pass so filtering and
	// search never join across collections at query time. Not serialized:
	// the merge pass runs after every load, cached or live.
	Compilation  bool   `json:"-"`
	searchString string `json:"-"`
}

type Genre struct {
	ID        int    `json:"genreid"`
	Label     string `json:"label"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// PlaylistFile is a playlist entry from the server's file listing,
// not a library entity.
type PlaylistFile struct {
	File  string `json:"file"`
	Label string `json:"label"`
	Type  string `json:"filetype"`
}

// QueueItem is an entry of the active playback queue.
type QueueItem struct {
	ID        int      `json:"id"`
	Label     string   `json:"label"`
	Title     string   `json:"title"`
	Album     string   `json:"album,omitempty"`
	Artists   []string `json:"artist,omitempty"`
	Duration  int      `json:"duration,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Type      string   `json:"type,omitempty"`
}

// ListKind selects the base song list of a view: either a smart list or
// the default "everything non-compilation" browse list.
type ListKind int

const (
	ListAll ListKind = iota
	ListCompilations
	ListRecentlyAdded
	ListMostPlayed
	ListRecentlyPlayed
	ListNeverPlayed
	ListRandom
	ListFavorites
	ListQueue
	ListSearch
	ListPlaylistFile
)

func (k ListKind) String() string {
	switch k {
	case ListAll:
		return "All"
	case ListCompilations:
		return "Compilations"
	case ListRecentlyAdded:
		return "Recently Added"
	case ListMostPlayed:
		return "Most Played"
	case ListRecentlyPlayed:
		return "Recently Played"
	case ListNeverPlayed:
		return "Never Played"
	case ListRandom:
		return "Random"
	case ListFavorites:
		return "Favorites"
	case ListQueue:
		return "Queue"
	case ListSearch:
		return "Search"
	case ListPlaylistFile:
		return "Playlist"
	default:
		return "Unknown"
	}
}

// UpdateStamps is the server-reported set of last-modified timestamps used
// to decide whether cached collections are still trustworthy. The server
// formats these as "YYYY-MM-DD hh:mm:ss", so string comparison is exact.
type UpdateStamps struct {
	SongsLastAdded     string `json:"songslastadded"`
	AlbumsLastAdded    string `json:"albumslastadded"`
	AlbumsModified     string `json:"albumsmodified"`
	LibraryLastUpdated string `json:"librarylastupdated"`
}

func (u UpdateStamps) Equal(other UpdateStamps) bool {
	return u.SongsLastAdded == other.SongsLastAdded &&
		u.AlbumsLastAdded == other.AlbumsLastAdded &&
		u.AlbumsModified == other.AlbumsModified &&
		u.LibraryLastUpdated == other.LibraryLastUpdated
}
