package library

import (
	"slices"
	"strings"

	"github.com/kodiak-app/kodiak/sharedutil"
)

// Selection is the current browse state: an active library list plus the
// optional genre→artist→album drill-down refinements.
type Selection struct {
	List  ListKind
	Query string // for ListSearch

	// Song IDs backing the list kinds whose contents live outside the
	// library mirror.
	PlaylistSongIDs []int // for ListPlaylistFile
	QueueSongIDs    []int // for ListQueue

	Genre  *Genre
	Artist *Artist
	Album  *Album
}

// SetList switches the active library list. List-scoped browsing and
// entity drill-down are mutually exclusive, so any genre/artist/album
// refinement is reset.
func (sel *Selection) SetList(kind ListKind) {
	sel.List = kind
	sel.Genre, sel.Artist, sel.Album = nil, nil, nil
	if kind != ListSearch {
		sel.Query = ""
	}
}

func (sel *Selection) Search(query string) {
	sel.SetList(ListSearch)
	sel.Query = query
}

func (sel *Selection) SelectGenre(g *Genre)   { sel.Genre = g }
func (sel *Selection) SelectArtist(a *Artist) { sel.Artist = a }
func (sel *Selection) SelectAlbum(a *Album)   { sel.Album = a }

// View is the set of four displayed collections derived from one snapshot
// of the library mirror, mutually consistent: the genre/artist/album
// choices are recomputed from the already-narrowed song list, so no
// offered choice can yield zero songs.
type View struct {
	Genres  []Genre
	Artists []Artist
	Albums  []Album
	Songs   []Song
}

// FilterView derives the displayed collections for the given selection.
// The snapshot is taken once under lock; all four collections come from it.
func (s *Store) FilterView(sel Selection) View {
	s.mu.Lock()
	snap := librarySnapshot{
		artists:        s.artists,
		albums:         s.albums,
		songs:          s.songs,
		genres:         s.genres,
		recentlyAdded:  s.recentlyAdded,
		recentlyPlayed: s.recentlyPlayed,
		mostPlayed:     s.mostPlayed,
		neverPlayed:    s.neverPlayed,
		random:         s.random,
	}
	threshold := s.opts.FavoriteRatingThreshold
	s.mu.Unlock()

	songs := filterSongs(snap, sel, threshold)
	return View{
		Genres:  genresOf(songs, snap.genres),
		Artists: artistsOf(songs, snap.artists),
		Albums:  albumsOf(songs, snap.albums),
		Songs:   songs,
	}
}

type librarySnapshot struct {
	artists        []Artist
	albums         []Album
	songs          []Song
	genres         []Genre
	recentlyAdded  []Song
	recentlyPlayed []Song
	mostPlayed     []Song
	neverPlayed    []Song
	random         []Song
}

// filterSongs picks the base song list for the active library list, then
// narrows it by each active refinement in fixed genre→artist→album order.
func filterSongs(snap librarySnapshot, sel Selection, favoriteThreshold int) []Song {
	songs := baseSongs(snap, sel, favoriteThreshold)
	if sel.Genre != nil {
		songs = sharedutil.FilterSlice(songs, func(sg Song) bool { return songInGenre(sg, *sel.Genre) })
	}
	if sel.Artist != nil {
		songs = sharedutil.FilterSlice(songs, func(sg Song) bool { return slices.Contains(sg.ArtistIDs, sel.Artist.ID) })
	}
	if sel.Album != nil {
		songs = sharedutil.FilterSlice(songs, func(sg Song) bool { return sg.AlbumID == sel.Album.ID })
	}
	return songs
}

func baseSongs(snap librarySnapshot, sel Selection, favoriteThreshold int) []Song {
	switch sel.List {
	case ListCompilations:
		return sharedutil.FilterSlice(snap.songs, func(sg Song) bool { return sg.Compilation })
	case ListRecentlyAdded:
		return snap.recentlyAdded
	case ListMostPlayed:
		return snap.mostPlayed
	case ListRecentlyPlayed:
		return snap.recentlyPlayed
	case ListNeverPlayed:
		return snap.neverPlayed
	case ListRandom:
		return snap.random
	case ListFavorites:
		return sharedutil.FilterSlice(snap.songs, func(sg Song) bool { return sg.Rating >= favoriteThreshold })
	case ListSearch:
		qTokens := queryTokens(sel.Query)
		return sharedutil.FilterSlice(snap.songs, func(sg Song) bool {
			return matchTokens(strings.Fields(sg.searchString), qTokens)
		})
	case ListPlaylistFile:
		return songsByID(snap.songs, sel.PlaylistSongIDs)
	case ListQueue:
		return songsByID(snap.songs, sel.QueueSongIDs)
	default:
		return sharedutil.FilterSlice(snap.songs, func(sg Song) bool { return !sg.Compilation })
	}
}

// songsByID resolves ids against the mirror, preserving the id order.
func songsByID(songs []Song, ids []int) []Song {
	byID := make(map[int]Song, len(songs))
	for _, sg := range songs {
		byID[sg.ID] = sg
	}
	out := make([]Song, 0, len(ids))
	for _, id := range ids {
		if sg, ok := byID[id]; ok {
			out = append(out, sg)
		}
	}
	return out
}

func songInGenre(sg Song, g Genre) bool {
	if len(sg.GenreIDs) > 0 {
		return slices.Contains(sg.GenreIDs, g.ID)
	}
	return slices.Contains(sg.Genres, g.Label)
}

// artistsOf recomputes the offered artist choices from the narrowed song
// list, deduplicated by id and resolved against the full artist collection
// for complete metadata.
func artistsOf(songs []Song, all []Artist) []Artist {
	seen := make(map[int]struct{})
	var out []Artist
	for _, sg := range songs {
		for _, id := range sg.ArtistIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if a, ok := sharedutil.Find(all, func(a Artist) bool { return a.ID == id }); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func albumsOf(songs []Song, all []Album) []Album {
	seen := make(map[int]struct{})
	var out []Album
	for _, sg := range songs {
		if _, ok := seen[sg.AlbumID]; ok {
			continue
		}
		seen[sg.AlbumID] = struct{}{}
		if a, ok := sharedutil.Find(all, func(a Album) bool { return a.ID == sg.AlbumID }); ok {
			out = append(out, a)
		}
	}
	return out
}

func genresOf(songs []Song, all []Genre) []Genre {
	return sharedutil.FilterSlice(all, func(g Genre) bool {
		return slices.ContainsFunc(songs, func(sg Song) bool { return songInGenre(sg, g) })
	})
}
