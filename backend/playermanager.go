package backend

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"

	"github.com/kodiak-app/kodiak/backend/jsonrpc"
	"github.com/kodiak-app/kodiak/backend/library"
	"github.com/kodiak-app/kodiak/sharedutil"
)

// The server's audio player and its playlist share a fixed id.
const (
	audioPlayerID   = 0
	audioPlaylistID = 0
)

type ApplicationProperties struct {
	Volume int  `json:"volume"`
	Muted  bool `json:"muted"`
}

type PlayerProperties struct {
	Speed      int     `json:"speed"`
	Position   int     `json:"position"`
	Shuffled   bool    `json:"shuffled"`
	Repeat     string  `json:"repeat"`
	Percentage float64 `json:"percentage"`
}

// PlayerManager mirrors the remote player and queue state and issues
// playback commands. Certain commands trigger a follow-up refresh of the
// affected state after a successful send; the mapping is a fixed table
// keyed by method name.
type PlayerManager struct {
	// OnChanged is invoked after any mirrored state changes.
	OnChanged func()

	client *jsonrpc.Client

	mu       sync.Mutex
	appProps ApplicationProperties
	props    PlayerProperties
	current  *library.QueueItem
	queue    []library.QueueItem

	refreshAfter map[string]func(context.Context)
}

func NewPlayerManager(client *jsonrpc.Client) *PlayerManager {
	p := &PlayerManager{client: client}
	p.refreshAfter = map[string]func(context.Context){
		jsonrpc.MethodPlayerPlayPause:  p.refreshProps,
		jsonrpc.MethodPlayerSetShuffle: p.refreshProps,
		jsonrpc.MethodPlayerSetRepeat:  p.refreshProps,
		jsonrpc.MethodPlayerStop:       p.refreshCurrentAndProps,
		jsonrpc.MethodPlayerGoTo:       p.refreshCurrentAndProps,
		jsonrpc.MethodPlayerOpen:       p.refreshAll,
		jsonrpc.MethodPlaylistAdd:      p.refreshQueue,
		jsonrpc.MethodPlaylistRemove:   p.refreshQueue,
		jsonrpc.MethodPlaylistSwap:     p.refreshQueue,
		jsonrpc.MethodPlaylistClear:    p.refreshQueue,
	}
	return p
}

func (p *PlayerManager) ApplicationProperties() ApplicationProperties {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appProps
}

func (p *PlayerManager) Properties() PlayerProperties {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props
}

func (p *PlayerManager) CurrentItem() *library.QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *PlayerManager) Queue() []library.QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue
}

// Clear wipes the mirrored player and queue state, e.g. when the session
// goes offline.
func (p *PlayerManager) Clear() {
	p.mu.Lock()
	p.appProps = ApplicationProperties{}
	p.props = PlayerProperties{}
	p.current = nil
	p.queue = nil
	p.mu.Unlock()
	p.changed()
}

func (p *PlayerManager) changed() {
	if p.OnChanged != nil {
		p.OnChanged()
	}
}

type playerIDParams struct {
	PlayerID int `json:"playerid"`
}

type playlistIDParams struct {
	PlaylistID int `json:"playlistid"`
}

// RefreshApplicationProperties refetches volume and mute state.
func (p *PlayerManager) RefreshApplicationProperties(ctx context.Context) {
	props, err := jsonrpc.Send[ApplicationProperties](ctx, p.client, jsonrpc.MethodApplicationGetProperties,
		map[string]any{"properties": []string{"volume", "muted"}})
	if err != nil {
		log.Printf("failed to refresh application properties: %v", err)
		return
	}
	p.mu.Lock()
	p.appProps = props
	p.mu.Unlock()
	p.changed()
}

// RefreshPlayerProperties refetches speed, position, shuffle and repeat.
func (p *PlayerManager) RefreshPlayerProperties(ctx context.Context) {
	props, err := jsonrpc.Send[PlayerProperties](ctx, p.client, jsonrpc.MethodPlayerGetProperties,
		map[string]any{
			"playerid":   audioPlayerID,
			"properties": []string{"speed", "position", "shuffled", "repeat", "percentage"},
		})
	if err != nil {
		log.Printf("failed to refresh player properties: %v", err)
		return
	}
	p.mu.Lock()
	p.props = props
	p.mu.Unlock()
	p.changed()
}

// RefreshCurrentItem refetches the item the player is on.
func (p *PlayerManager) RefreshCurrentItem(ctx context.Context) {
	type itemResult struct {
		Item *library.QueueItem `json:"item"`
	}
	res, err := jsonrpc.Send[itemResult](ctx, p.client, jsonrpc.MethodPlayerGetItem,
		map[string]any{
			"playerid":   audioPlayerID,
			"properties": []string{"title", "album", "artist", "duration", "thumbnail"},
		})
	if err != nil {
		log.Printf("failed to refresh current item: %v", err)
		return
	}
	p.mu.Lock()
	p.current = res.Item
	p.mu.Unlock()
	p.changed()
}

// RefreshQueue refetches the playback queue.
func (p *PlayerManager) RefreshQueue(ctx context.Context) {
	type itemsResult struct {
		Items []library.QueueItem `json:"items"`
	}
	res, err := jsonrpc.Send[itemsResult](ctx, p.client, jsonrpc.MethodPlaylistGetItems,
		map[string]any{
			"playlistid": audioPlaylistID,
			"properties": []string{"title", "album", "artist", "duration", "thumbnail"},
		})
	if err != nil {
		log.Printf("failed to refresh queue: %v", err)
		return
	}
	p.mu.Lock()
	p.queue = res.Items
	p.mu.Unlock()
	p.changed()
}

func (p *PlayerManager) refreshProps(ctx context.Context) {
	p.RefreshPlayerProperties(ctx)
}

func (p *PlayerManager) refreshCurrentAndProps(ctx context.Context) {
	p.RefreshCurrentItem(ctx)
	p.RefreshPlayerProperties(ctx)
}

func (p *PlayerManager) refreshQueue(ctx context.Context) {
	p.RefreshQueue(ctx)
}

func (p *PlayerManager) refreshAll(ctx context.Context) {
	p.RefreshQueue(ctx)
	p.RefreshCurrentItem(ctx)
	p.RefreshPlayerProperties(ctx)
}

// send issues a command and, on success, runs the method's follow-up
// refresh from the fixed dispatch table.
func (p *PlayerManager) send(ctx context.Context, method string, params any) error {
	if _, err := jsonrpc.Send[json.RawMessage](ctx, p.client, method, params); err != nil {
		return err
	}
	if refresh, ok := p.refreshAfter[method]; ok {
		go refresh(ctx)
	}
	return nil
}

func (p *PlayerManager) PlayPause(ctx context.Context) error {
	return p.send(ctx, jsonrpc.MethodPlayerPlayPause, playerIDParams{audioPlayerID})
}

func (p *PlayerManager) Stop(ctx context.Context) error {
	return p.send(ctx, jsonrpc.MethodPlayerStop, playerIDParams{audioPlayerID})
}

func (p *PlayerManager) SetShuffle(ctx context.Context, shuffle bool) error {
	return p.send(ctx, jsonrpc.MethodPlayerSetShuffle, map[string]any{
		"playerid": audioPlayerID,
		"shuffle":  shuffle,
	})
}

// SetRepeat accepts "off", "one" or "all".
func (p *PlayerManager) SetRepeat(ctx context.Context, repeat string) error {
	return p.send(ctx, jsonrpc.MethodPlayerSetRepeat, map[string]any{
		"playerid": audioPlayerID,
		"repeat":   repeat,
	})
}

// GoTo jumps to a queue position (int) or "next"/"previous".
func (p *PlayerManager) GoTo(ctx context.Context, to any) error {
	return p.send(ctx, jsonrpc.MethodPlayerGoTo, map[string]any{
		"playerid": audioPlayerID,
		"to":       to,
	})
}

func (p *PlayerManager) SetVolume(ctx context.Context, volume int) error {
	return p.send(ctx, jsonrpc.MethodApplicationSetVolume, map[string]any{"volume": volume})
}

// AddToQueue appends songs to the queue, optionally in shuffled order.
func (p *PlayerManager) AddToQueue(ctx context.Context, songIDs []int, shuffle bool) error {
	if shuffle {
		shuffled := make([]int, len(songIDs))
		copy(shuffled, songIDs)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		songIDs = shuffled
	}
	items := sharedutil.MapSlice(songIDs, func(id int) map[string]int {
		return map[string]int{"songid": id}
	})
	return p.send(ctx, jsonrpc.MethodPlaylistAdd, map[string]any{
		"playlistid": audioPlaylistID,
		"item":       items,
	})
}

// PlayQueue replaces the queue with the given songs and starts playback
// from the first.
func (p *PlayerManager) PlayQueue(ctx context.Context, songIDs []int, shuffle bool) error {
	if err := p.ClearQueue(ctx); err != nil {
		return err
	}
	if err := p.AddToQueue(ctx, songIDs, shuffle); err != nil {
		return err
	}
	return p.send(ctx, jsonrpc.MethodPlayerOpen, map[string]any{
		"item": map[string]any{"playlistid": audioPlaylistID, "position": 0},
	})
}

func (p *PlayerManager) ClearQueue(ctx context.Context) error {
	return p.send(ctx, jsonrpc.MethodPlaylistClear, playlistIDParams{audioPlaylistID})
}

func (p *PlayerManager) RemoveFromQueue(ctx context.Context, position int) error {
	return p.send(ctx, jsonrpc.MethodPlaylistRemove, map[string]any{
		"playlistid": audioPlaylistID,
		"position":   position,
	})
}

// MoveQueueItem moves the item at from to position to by stepwise swaps,
// the only reorder primitive the playlist API offers.
func (p *PlayerManager) MoveQueueItem(ctx context.Context, from, to int) error {
	step := 1
	if to < from {
		step = -1
	}
	for pos := from; pos != to; pos += step {
		err := p.send(ctx, jsonrpc.MethodPlaylistSwap, map[string]any{
			"playlistid": audioPlaylistID,
			"position1":  pos,
			"position2":  pos + step,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
