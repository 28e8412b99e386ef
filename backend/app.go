package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"path"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/20after4/configdir"
	"github.com/fsnotify/fsnotify"
	"github.com/kodiak-app/kodiak/backend/cache"
	"github.com/kodiak-app/kodiak/backend/jsonrpc"
	"github.com/kodiak-app/kodiak/backend/library"
)

const (
	configFile       = "config.toml"
	radioStationsKey = "RadioStations"
)

var (
	ErrNoHostSelected = errors.New("no host selected")
)

// RadioStation is a user-managed internet radio entry, not tied to any
// host; the list persists in the root cache namespace.
type RadioStation struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// App is the explicit session object wiring the core together. One instance
// per running client; all components hang off it rather than package-level
// singletons, so tests and multiple host sessions construct their own.
type App struct {
	Config  *Config
	Hosts   *HostManager
	Cache   *cache.Cache
	Monitor *ConnectionMonitor

	// Per-session; recreated on every host switch, nil before the first
	// connect.
	Player  *PlayerManager
	Library *library.Store

	// UI callback, set in main
	OnViewsInvalidated func()

	appName   string
	configDir string
	cacheDir  string

	mu            sync.Mutex
	client        *jsonrpc.Client
	socket        *jsonrpc.Socket
	listener      *NotificationListener
	selection     library.Selection
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	bgrndCtx       context.Context
	cancel         context.CancelFunc
	lastWrittenCfg Config
}

func StartupApp(appName string) (*App, error) {
	confDir := configdir.LocalConfig(appName)
	cacheDir := configdir.LocalCache(appName)
	configdir.MakePath(confDir)
	configdir.MakePath(cacheDir)

	log.Printf("Starting %s...", appName)
	log.Printf("Using config dir: %s", confDir)
	log.Printf("Using cache dir: %s", cacheDir)

	a := &App{
		appName:   appName,
		configDir: confDir,
		cacheDir:  cacheDir,
	}
	a.bgrndCtx, a.cancel = context.WithCancel(context.Background())
	a.readConfig()

	a.Cache = cache.New(cacheDir)
	a.Hosts = NewHostManager(appName, a.Config, true /*use keyring*/)
	a.Monitor = NewConnectionMonitor(len(a.Config.Hosts) > 0,
		time.Duration(a.Config.Application.ReconnectProbeSeconds)*time.Second)
	a.Monitor.Probe = func(ctx context.Context) error {
		a.mu.Lock()
		client := a.client
		a.mu.Unlock()
		if client == nil {
			return ErrNoHostSelected
		}
		return client.Ping(ctx)
	}
	a.Monitor.OnOffline = func() {
		a.mu.Lock()
		socket := a.socket
		player := a.Player
		a.mu.Unlock()
		if socket != nil {
			socket.Close()
		}
		if player != nil {
			player.Clear()
		}
	}
	a.Monitor.OnReconnected = func() {
		go a.resumeSession()
	}

	a.Hosts.OnHostSelected(func(h *HostConfig) {
		go func() {
			if err := a.connectToHost(h); err != nil {
				log.Printf("failed to connect to %s: %v", h.Name, err)
			}
		}()
	})
	a.Hosts.OnDisconnect(func() {
		a.Disconnect()
	})

	a.startConfigWriter(a.bgrndCtx)
	a.startConfigWatcher()

	return a, nil
}

func (a *App) readConfig() {
	cfgPath := a.configFilePath()
	cfg, err := ReadConfigFile(cfgPath)
	if err != nil {
		log.Printf("Error reading app config file: %v", err)
		cfg = DefaultConfig()
	}
	a.Config = cfg
}

// startConfigWatcher picks up host-list edits made by the external config
// UI while the core is running.
func (a *App) startConfigWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("config watcher unavailable: %v", err)
		return
	}
	watcher.Add(a.configDir)
	go func() {
		for {
			select {
			case <-a.bgrndCtx.Done():
				watcher.Close()
				return
			case ev := <-watcher.Events:
				if filepath.Base(ev.Name) != configFile || !ev.Has(fsnotify.Write) {
					continue
				}
				cfg, err := ReadConfigFile(a.configFilePath())
				if err != nil {
					continue
				}
				a.Config.Hosts = cfg.Hosts
				log.Printf("config file changed, host list reloaded (%d hosts)", len(cfg.Hosts))
			}
		}
	}()
}

// periodically save config file so abnormal exit won't lose settings
func (a *App) startConfigWriter(ctx context.Context) {
	tick := time.NewTicker(2 * time.Minute)
	go func() {
		for {
			select {
			case <-ctx.Done():
				tick.Stop()
				return
			case <-tick.C:
				if !reflect.DeepEqual(&a.lastWrittenCfg, a.Config) {
					a.Config.WriteConfigFile(a.configFilePath())
					a.lastWrittenCfg = *a.Config
				}
			}
		}
	}()
}

// ConnectToSelectedHost starts a session against the host marked selected.
func (a *App) ConnectToSelectedHost() error {
	h := a.Hosts.SelectedHost()
	if h == nil {
		return ErrNoHostSelected
	}
	return a.connectToHost(h)
}

func (a *App) connectToHost(h *HostConfig) error {
	if err := h.Validate(); err != nil {
		a.Monitor.Fail()
		return err
	}

	a.teardownSession()
	a.Monitor.Reset(true)
	a.Monitor.BeginConnecting()

	pass, err := a.Hosts.Password(h)
	if err != nil {
		log.Printf("error reading keyring credentials for %s: %v", h.Name, err)
	}
	opts := jsonrpc.ClientOptions{
		RequestTimeout: time.Duration(a.Config.Application.RequestTimeoutSeconds) * time.Second,
		DialTimeout:    time.Duration(a.Config.Application.DialTimeoutSeconds) * time.Second,
	}
	client := jsonrpc.NewClient(h.IP, h.HTTPPort, h.Username, pass, opts)
	store := library.NewStore(client, a.Cache, h.IP, library.Options{
		RecentlyAddedCap:        a.Config.Library.RecentlyAddedCap,
		RecentlyPlayedCap:       a.Config.Library.RecentlyPlayedCap,
		MostPlayedCap:           a.Config.Library.MostPlayedCap,
		RandomCap:               a.Config.Library.RandomCap,
		FavoriteRatingThreshold: a.Config.Library.FavoriteRatingThreshold,
		FavoriteRating:          a.Config.Library.FavoriteRating,
	})
	store.Reset(h.Name)
	player := NewPlayerManager(client)
	socket := jsonrpc.NewSocket(h.IP, h.TCPPort)

	sessionCtx, sessionCancel := context.WithCancel(a.bgrndCtx)

	a.mu.Lock()
	a.client = client
	a.socket = socket
	a.Player = player
	a.Library = store
	a.selection = library.Selection{}
	a.sessionCtx = sessionCtx
	a.sessionCancel = sessionCancel
	a.mu.Unlock()

	store.OnLoaded = a.viewsInvalidated
	player.OnChanged = a.viewsInvalidated

	// first RPC call proves liveness
	pingCtx, cancel := context.WithTimeout(sessionCtx, opts.DialTimeout)
	err = client.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Printf("host %s unreachable: %v", h.Name, err)
		a.Monitor.ConnectionLost(sessionCtx)
		return nil // the offline probe takes it from here
	}
	a.Monitor.ConnectionProven(store.Loaded())

	a.openNotificationChannel(sessionCtx, socket, player, store)
	go a.loadLibrary(sessionCtx, false)
	go player.RefreshApplicationProperties(sessionCtx)
	return nil
}

// resumeSession re-proves the session after the offline probe succeeded.
func (a *App) resumeSession() {
	a.mu.Lock()
	socket := a.socket
	player := a.Player
	store := a.Library
	sessionCtx := a.sessionCtx
	a.mu.Unlock()
	if socket == nil || sessionCtx == nil {
		return
	}
	a.Monitor.ConnectionProven(store.Loaded())
	a.openNotificationChannel(sessionCtx, socket, player, store)
	if !store.Loaded() {
		go a.loadLibrary(sessionCtx, false)
	}
	go player.RefreshApplicationProperties(sessionCtx)
}

// openNotificationChannel opens the WebSocket and arms the listener with
// the fixed notification→action table.
func (a *App) openNotificationChannel(ctx context.Context, socket *jsonrpc.Socket, player *PlayerManager, store *library.Store) {
	if err := socket.Open(ctx); err != nil {
		log.Printf("failed to open notification channel: %v", err)
		a.Monitor.ConnectionLost(ctx)
		return
	}
	listener := NewNotificationListener(socket, time.Duration(a.Config.Application.PingIntervalSeconds)*time.Second)
	listener.OnConnectionError = func(err error) {
		a.Monitor.ConnectionLost(ctx)
	}

	refetch := func(fn func(context.Context)) func(json.RawMessage) {
		return func(json.RawMessage) { go fn(ctx) }
	}
	listener.Handle(jsonrpc.NotifyVolumeChanged, refetch(player.RefreshApplicationProperties))
	listener.Handle(jsonrpc.NotifyPlayerPropertyChanged, refetch(player.RefreshPlayerProperties))
	listener.Handle(jsonrpc.NotifyPlayerSpeedChanged, refetch(player.RefreshPlayerProperties))
	listener.Handle(jsonrpc.NotifyPlayerPlay, refetch(func(ctx context.Context) {
		player.RefreshQueue(ctx)
		player.RefreshCurrentItem(ctx)
		player.RefreshPlayerProperties(ctx)
	}))
	listener.Handle(jsonrpc.NotifyPlayerStop, refetch(func(ctx context.Context) {
		player.RefreshCurrentItem(ctx)
		player.RefreshPlayerProperties(ctx)
	}))
	listener.Handle(jsonrpc.NotifyLibraryUpdated, func(json.RawMessage) {
		if a.Monitor.Scanning() {
			return // a full refresh follows when the scan finishes
		}
		go func() {
			if err := store.RefreshSongs(ctx); err != nil {
				log.Printf("failed to refresh songs after library update: %v", err)
				return
			}
			a.viewsInvalidated()
		}()
	})
	listener.Handle(jsonrpc.NotifyLibraryScanStarted, func(json.RawMessage) {
		a.Monitor.SetScanning(true)
	})
	listener.Handle(jsonrpc.NotifyLibraryScanFinished, func(json.RawMessage) {
		a.Monitor.SetScanning(false)
		go func() {
			outdated, err := store.CheckLastUpdate(ctx, false)
			if err != nil {
				log.Printf("failed to check library last-update: %v", err)
				return
			}
			if outdated {
				a.Monitor.LibraryOutdated()
			}
		}()
	})
	listener.Start(ctx)

	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()
}

func (a *App) loadLibrary(ctx context.Context, reload bool) {
	a.mu.Lock()
	store := a.Library
	a.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.Load(ctx, reload); err != nil {
		log.Printf("library load failed: %v", err)
		a.Monitor.ConnectionLost(ctx)
		return
	}
	a.Monitor.LibraryLoaded()
	if reload {
		// the fresh fetch becomes the new staleness baseline
		if _, err := store.CheckLastUpdate(ctx, true); err != nil {
			log.Printf("failed to store library last-update baseline: %v", err)
		}
		return
	}
	outdated, err := store.CheckLastUpdate(ctx, false)
	if err != nil {
		log.Printf("failed to check library last-update: %v", err)
		return
	}
	if outdated {
		a.Monitor.LibraryOutdated()
	}
}

// Reload refetches the library; with force true the disk cache is bypassed
// and overwritten.
func (a *App) Reload(force bool) {
	a.mu.Lock()
	ctx := a.sessionCtx
	a.mu.Unlock()
	if ctx == nil {
		return
	}
	go a.loadLibrary(ctx, force)
}

// Disconnect tears the session down and returns to Disconnected (or
// NoHostConfigured when the host list is empty).
func (a *App) Disconnect() {
	a.teardownSession()
	a.Monitor.Reset(len(a.Config.Hosts) > 0)
}

func (a *App) teardownSession() {
	a.mu.Lock()
	cancel := a.sessionCancel
	socket := a.socket
	a.client = nil
	a.socket = nil
	a.listener = nil
	a.sessionCtx = nil
	a.sessionCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if socket != nil {
		socket.Close()
	}
}

// ScanLibrary asks the server to rescan its sources; progress arrives as
// scan notifications.
func (a *App) ScanLibrary() {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client != nil {
		client.Notify(jsonrpc.MethodAudioLibraryScan, nil)
	}
}

func (a *App) viewsInvalidated() {
	if a.OnViewsInvalidated != nil {
		a.OnViewsInvalidated()
	}
}

// Browse/selection commands: the boundary this core presents upward.

func (a *App) Selection() library.Selection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selection
}

// View derives the four displayed collections for the current selection.
func (a *App) View() library.View {
	a.mu.Lock()
	sel := a.selection
	store := a.Library
	a.mu.Unlock()
	if store == nil {
		return library.View{}
	}
	return store.FilterView(sel)
}

func (a *App) SetList(kind library.ListKind) {
	a.mu.Lock()
	a.selection.SetList(kind)
	if kind == library.ListQueue && a.Player != nil {
		a.selection.QueueSongIDs = queueSongIDs(a.Player.Queue())
	}
	a.mu.Unlock()
	a.viewsInvalidated()
}

func (a *App) Search(query string) {
	a.mu.Lock()
	a.selection.Search(query)
	a.mu.Unlock()
	a.viewsInvalidated()
}

func (a *App) SelectGenre(g *library.Genre) {
	a.mu.Lock()
	a.selection.SelectGenre(g)
	a.mu.Unlock()
	a.viewsInvalidated()
}

func (a *App) SelectArtist(ar *library.Artist) {
	a.mu.Lock()
	a.selection.SelectArtist(ar)
	a.mu.Unlock()
	a.viewsInvalidated()
}

func (a *App) SelectAlbum(al *library.Album) {
	a.mu.Lock()
	a.selection.SelectAlbum(al)
	a.mu.Unlock()
	a.viewsInvalidated()
}

// SelectPlaylist activates a playlist file as the library list, resolving
// its contents to song IDs.
func (a *App) SelectPlaylist(file string) error {
	a.mu.Lock()
	store := a.Library
	ctx := a.sessionCtx
	a.mu.Unlock()
	if store == nil || ctx == nil {
		return ErrNoHostSelected
	}
	ids, err := store.PlaylistSongIDs(ctx, file)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.selection.SetList(library.ListPlaylistFile)
	a.selection.PlaylistSongIDs = ids
	a.mu.Unlock()
	a.viewsInvalidated()
	return nil
}

func (a *App) ToggleFavorite(songID int) {
	a.mu.Lock()
	store := a.Library
	a.mu.Unlock()
	if store != nil && store.ToggleFavorite(songID) {
		a.viewsInvalidated()
	}
}

func (a *App) ResetSongStats(songID int) {
	a.mu.Lock()
	store := a.Library
	a.mu.Unlock()
	if store != nil && store.ResetPlayStats(songID) {
		a.viewsInvalidated()
	}
}

func queueSongIDs(items []library.QueueItem) []int {
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// RadioStations returns the persisted station list from the root cache
// namespace.
func (a *App) RadioStations() []RadioStation {
	stations, _ := cache.Get[[]RadioStation](a.Cache, cache.RootNamespace, radioStationsKey)
	return stations
}

func (a *App) SaveRadioStations(stations []RadioStation) {
	if err := cache.Set(a.Cache, cache.RootNamespace, radioStationsKey, stations); err != nil {
		log.Printf("failed to save radio stations: %v", err)
	}
}

func (a *App) Shutdown() {
	a.teardownSession()
	a.cancel()
	a.Config.WriteConfigFile(a.configFilePath())
}

func (a *App) configFilePath() string {
	return path.Join(a.configDir, configFile)
}
