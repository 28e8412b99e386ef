package jsonrpc

// Control-channel method catalog. The server exposes a fixed JSON-RPC surface;
// only the subset the client actually calls is named here.
const (
	MethodPing = "JSONRPC.Ping"

	MethodApplicationGetProperties = "Application.GetProperties"
	MethodApplicationSetVolume     = "Application.SetVolume"
	MethodApplicationQuit          = "Application.Quit"

	MethodAudioLibraryScan           = "AudioLibrary.Scan"
	MethodAudioLibraryGetProperties  = "AudioLibrary.GetProperties"
	MethodAudioLibraryGetArtists     = "AudioLibrary.GetArtists"
	MethodAudioLibraryGetAlbums      = "AudioLibrary.GetAlbums"
	MethodAudioLibraryGetSongs       = "AudioLibrary.GetSongs"
	MethodAudioLibraryGetGenres      = "AudioLibrary.GetGenres"
	MethodAudioLibrarySetSongDetails = "AudioLibrary.SetSongDetails"

	MethodPlayerSetShuffle    = "Player.SetShuffle"
	MethodPlayerSetRepeat     = "Player.SetRepeat"
	MethodPlayerPlayPause     = "Player.PlayPause"
	MethodPlayerOpen          = "Player.Open"
	MethodPlayerStop          = "Player.Stop"
	MethodPlayerGoTo          = "Player.GoTo"
	MethodPlayerGetProperties = "Player.GetProperties"
	MethodPlayerGetItem       = "Player.GetItem"

	MethodPlaylistClear    = "Playlist.Clear"
	MethodPlaylistAdd      = "Playlist.Add"
	MethodPlaylistRemove   = "Playlist.Remove"
	MethodPlaylistSwap     = "Playlist.Swap"
	MethodPlaylistGetItems = "Playlist.GetItems"

	MethodFilesGetDirectory = "Files.GetDirectory"
)

// Inbound notification kinds pushed over the WebSocket channel.
const (
	NotifyVolumeChanged         = "Application.OnVolumeChanged"
	NotifyPlayerPropertyChanged = "Player.OnPropertyChanged"
	NotifyPlayerSpeedChanged    = "Player.OnSpeedChanged"
	NotifyPlayerPlay            = "Player.OnPlay"
	NotifyPlayerStop            = "Player.OnStop"
	NotifyLibraryUpdated        = "AudioLibrary.OnUpdate"
	NotifyLibraryScanStarted    = "AudioLibrary.OnScanStarted"
	NotifyLibraryScanFinished   = "AudioLibrary.OnScanFinished"
)
