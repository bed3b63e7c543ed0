// Gas or Pass
//
// A player hears a short noise, guesses whether it was gas or not, then
// watches the clip that made it. Correct guesses build a streak; a sponsor
// card is shuffled in every few rounds.
//
// Features:
// - One hub per game ID: /gas/:gameid, /gas/:gameid/ws and /gas/:gameid/qr
// - The hub owns the deck, phase and streak; browsers only render and report
// - Buttons, arrow keys and swipes all arrive as the same guess
// - The hidden audio player is driven remotely and clipped to the card's segment
// - Every tab on the same game ID sees the same round
// - A tab that joins mid-round restarts its media and gets its own analyser
// - Games auto-reaped after configurable idle timeout
// - Card pool reloads are pushed into every running game

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	mathrand "math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const playbackTimeout = 15 * time.Second

// Messages coming from clients
type ClientMessage struct {
	Type   string     `json:"type"`             // "begin", "guess", "next", "key", "drag", "drag_move", "replay", "media"
	Guess  Guess      `json:"guess,omitempty"`  // guess
	Key    string     `json:"key,omitempty"`    // key
	DX     float64    `json:"dx,omitempty"`     // drag / drag_move
	Target string     `json:"target,omitempty"` // media: "audio" or "video"
	Event  MediaEvent `json:"event,omitempty"`  // media
	Time   float64    `json:"time,omitempty"`   // media: current position in seconds
	Src    string     `json:"src,omitempty"`    // media: element's current source
}

// ItemView is the renderable part of the current deck item. The answer is
// only included once it has been revealed.
type ItemView struct {
	Kind         string        `json:"kind"` // "start", "card" or "interstitial"
	Key          string        `json:"key"`
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	Answer       Guess         `json:"answer,omitempty"`
	Interstitial *Interstitial `json:"interstitial,omitempty"`
}

// StateMessage is broadcast after every transition.
type StateMessage struct {
	Type          string     `json:"type"` // "state"
	Phase         Phase      `json:"phase"`
	Title         string     `json:"title"`
	Streak        int        `json:"streak"`
	StreakColor   string     `json:"streakColor"`
	Correct       *bool      `json:"correct"`
	Index         int        `json:"index"`
	DeckSize      int        `json:"deckSize"`
	Item          *ItemView  `json:"item"`
	SwipeDisabled bool       `json:"swipeDisabled"`
	Media         MediaState `json:"media"`
}

// MediaStateMessage carries playback flags between full state updates.
type MediaStateMessage struct {
	Type  string     `json:"type"` // "media_state"
	Media MediaState `json:"media"`
}

// StreakPopupMessage shows or hides the streak indicator.
type StreakPopupMessage struct {
	Type    string `json:"type"` // "streak_popup"
	Streak  int    `json:"streak"`
	Visible bool   `json:"visible"`
}

// SwipeMessage is sent back to the dragging client only.
type SwipeMessage struct {
	Type string `json:"type"` // "swipe"
	SwipeFeedback
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type clientInput struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id  string
	cfg *Config

	ctx    context.Context
	cancel context.CancelFunc

	register chan *Client
	unreg    chan *Client
	inputs   chan clientInput

	media *MediaController
	audio *remoteElement
	video *remoteElement
	tap   *AudioTap

	mu         sync.Mutex
	clients    map[*Client]bool
	game       *Game
	popup      *StreakPopup
	playCancel context.CancelFunc
	createdAt  time.Time
	lastActive time.Time
}

func newHub(cfg *Config, gameID string, cards []Card) *Hub {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		id:         gameID,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inputs:     make(chan clientInput),
		clients:    make(map[*Client]bool),
		createdAt:  now,
		lastActive: now,
	}

	h.audio = newRemoteElement("audio", h.broadcast)
	h.video = newRemoteElement("video", h.broadcast)
	h.tap = NewAudioTap(remoteGraph{}, defaultAnalyser)
	h.media = NewMediaController(h.audio, h.video, h.tap, func(err error) {
		logf(cfg, "GAMES: Playback in %s: %v", gameID, err)
	})

	h.popup = NewStreakPopup(streakPopupDuration, h.broadcastPopup)

	var seed [32]byte
	_, _ = rand.Read(seed[:])
	h.game = NewGame(cards, cfg.interstitialEvery, mathrand.New(mathrand.NewChaCha8(seed)), h.popup)

	h.mu.Lock()
	h.syncMediaLocked()
	h.mu.Unlock()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.ctx.Err() != nil {
				close(c.send)
				h.mu.Unlock()
				continue
			}

			h.lastActive = time.Now()
			h.clients[c] = true

			// A page that just loaded has fresh media elements and no
			// analyser, so the round's media starts over for it.
			h.audio.Reload()
			h.video.Reload()
			h.tap.Detach()
			h.syncMediaLocked()

			streak, visible := h.popup.Visible()
			h.broadcastLocked(h.stateLocked())
			h.sendLocked(c, StreakPopupMessage{Type: "streak_popup", Streak: streak, Visible: visible})
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			if len(h.clients) == 0 && h.playCancel != nil {
				h.playCancel()
			}
			h.mu.Unlock()

		case in := <-h.inputs:
			h.handleInput(in)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handleInput(in clientInput) {
	msg := in.msg

	switch msg.Type {
	case "begin":
		h.transition(msg.Type, (*Game).Begin)
	case "guess":
		h.transition(msg.Type, func(g *Game) (Outcome, error) { return g.Submit(msg.Guess) })
	case "next":
		h.transition(msg.Type, (*Game).Next)
	case "key":
		h.transition(msg.Type, func(g *Game) (Outcome, error) { return g.Key(msg.Key) })
	case "drag":
		h.transition(msg.Type, func(g *Game) (Outcome, error) { return g.DragEnd(msg.DX) })
	case "drag_move":
		h.mu.Lock()
		feedback := h.game.Surface().Feedback(msg.DX)
		h.sendLocked(in.client, SwipeMessage{Type: "swipe", SwipeFeedback: feedback})
		h.mu.Unlock()
	case "replay":
		h.mu.Lock()
		ctx := h.playbackCtxLocked()
		h.mu.Unlock()

		go h.media.ReplayAudio(ctx)
	case "media":
		h.handleMedia(msg)
	default:
		// ignore unknown types
	}
}

// transition runs a single state machine step and publishes the result.
func (h *Hub) transition(name string, step func(*Game) (Outcome, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	out, err := step(h.game)
	if err != nil {
		if !errors.Is(err, ErrWrongPhase) {
			logf(h.cfg, "GAMES: Ignored %s in %s: %v", name, h.id, err)
		}
		return
	}
	if !out.Began && !out.Scored && !out.Advanced {
		return
	}

	if out.Scored {
		switch {
		case out.Correct == nil:
			logf(h.cfg, "GAMES: Unscored round in %s", h.id)
		case *out.Correct:
			logf(h.cfg, "GAMES: Correct guess in %s, streak %d", h.id, out.Streak)
		default:
			logf(h.cfg, "GAMES: Wrong guess in %s, streak reset", h.id)
		}
	}

	h.syncMediaLocked()
	h.broadcastLocked(h.stateLocked())

	if out.Scored && out.Correct != nil {
		streak, visible := h.popup.Visible()
		h.broadcastLocked(StreakPopupMessage{Type: "streak_popup", Streak: streak, Visible: visible})
	}
}

func (h *Hub) handleMedia(msg ClientMessage) {
	before := h.media.State()

	switch msg.Target {
	case "audio":
		h.audio.Deliver(msg.Event, msg.Src)
		h.media.HandleAudioEvent(msg.Event, msg.Time)
	case "video":
		h.video.Deliver(msg.Event, msg.Src)
		h.media.HandleVideoEvent(msg.Event)
	default:
		return
	}

	after := h.media.State()
	if sameFlags(before, after) {
		return
	}

	h.mu.Lock()
	h.broadcastLocked(MediaStateMessage{Type: "media_state", Media: after})
	h.mu.Unlock()
}

func sameFlags(a, b MediaState) bool {
	return a.AudioPlaying == b.AudioPlaying &&
		a.AudioEnded == b.AudioEnded &&
		a.VideoPlaying == b.VideoPlaying &&
		a.VideoEnded == b.VideoEnded &&
		a.ShowReplay == b.ShowReplay &&
		a.Visualize == b.Visualize
}

// playbackCtxLocked cancels any playback still in progress and returns a
// fresh context for the next one.
func (h *Hub) playbackCtxLocked() context.Context {
	if h.playCancel != nil {
		h.playCancel()
	}

	ctx, cancel := context.WithTimeout(h.ctx, playbackTimeout)
	h.playCancel = cancel

	return ctx
}

// syncMediaLocked loads the current card into the media controller and
// starts whichever player the phase calls for.
func (h *Hub) syncMediaLocked() {
	ctx := h.playbackCtxLocked()

	var (
		src        string
		start, end *float64
	)

	phase := h.game.Phase()

	if item, ok := h.game.Current(); ok && phase != PhaseStart {
		switch item.Kind {
		case ItemCard:
			src = item.Card.MediaURL(h.cfg.prefix)
			start, end = item.Card.Start, item.Card.End
		case ItemInterstitial:
		}
	}

	reveal := phase == PhaseReveal

	h.audio.Reset(src)
	h.video.Reset(src)
	h.media.Load(src, start, end, reveal)

	// Playback waits for a page to run it; register syncs again.
	if src == "" || len(h.clients) == 0 {
		return
	}

	if reveal {
		go h.media.PlayVideo(ctx)
	} else {
		go h.media.PlayAudio(ctx)
	}
}

func (h *Hub) stateLocked() StateMessage {
	v := h.game.View()

	msg := StateMessage{
		Type:          "state",
		Phase:         v.Phase,
		Title:         v.Title,
		Streak:        v.Streak,
		StreakColor:   v.StreakColor,
		Correct:       v.Result,
		Index:         v.Index,
		DeckSize:      v.DeckSize,
		SwipeDisabled: v.SwipeDisabled,
		Media:         h.media.State(),
	}

	if v.Item != nil {
		msg.Item = itemView(*v.Item, v.Phase == PhaseReveal)
	}

	return msg
}

func itemView(item DeckItem, reveal bool) *ItemView {
	view := &ItemView{
		Key: item.Key(),
		ID:  item.ID(),
	}

	switch item.Kind {
	case ItemCard:
		view.Kind = "card"
		if item.Card.Kind == KindStart {
			view.Kind = "start"
		}
		view.Title = item.Card.Title
		if reveal {
			view.Answer = item.Card.Correct
		}
	case ItemInterstitial:
		view.Kind = "interstitial"
		view.Title = item.Interstitial.Title
		view.Interstitial = item.Interstitial
	}

	return view
}

func (h *Hub) setPool(cards []Card) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.game.SetPool(cards)
	h.syncMediaLocked()
	h.broadcastLocked(h.stateLocked())
}

func (h *Hub) sendLocked(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcastLocked(msg)
}

func (h *Hub) broadcastPopup() {
	streak, visible := h.popup.Visible()
	h.broadcast(StreakPopupMessage{Type: "streak_popup", Streak: streak, Visible: visible})
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.cancel()
	h.popup.Hide()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "gasorpass_id"

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id, err := uuid.NewRandom()
	if err != nil {
		log.Println("uuid error:", err)
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id.String(),
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id.String()
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	cfg  *Config
	done chan struct{}
	once sync.Once

	mu          sync.Mutex
	hubs        map[string]*Hub
	cards       []Card
	idleTimeout time.Duration
}

func newGameManager(cfg *Config, cards []Card) *GameManager {
	gm := &GameManager{
		cfg:         cfg,
		done:        make(chan struct{}),
		hubs:        make(map[string]*Hub),
		cards:       cards,
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gm.cfg, gameID, gm.cards)
	gm.hubs[gameID] = hub
	go hub.run()
	return hub
}

// SetCards swaps the card pool for new games and reshuffles running ones.
func (gm *GameManager) SetCards(cards []Card) {
	gm.mu.Lock()
	gm.cards = cards
	hubs := make([]*Hub, 0, len(gm.hubs))
	for _, hub := range gm.hubs {
		hubs = append(hubs, hub)
	}
	gm.mu.Unlock()

	for _, hub := range hubs {
		hub.setPool(cards)
	}
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		case <-gm.done:
			return
		}
	}
}

func (gm *GameManager) reap(cutoff time.Time) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		hub.mu.Lock()
		last := hub.lastActive
		hub.mu.Unlock()

		if last.Before(cutoff) {
			delete(gm.hubs, id)
			logf(gm.cfg, "GAMES: Reaped idle game %s", id)
			go hub.closeAll()
		}
	}
}

// Close ends every game and stops the reaper.
func (gm *GameManager) Close() {
	gm.once.Do(func() { close(gm.done) })

	gm.mu.Lock()
	hubs := gm.hubs
	gm.hubs = make(map[string]*Hub)
	gm.mu.Unlock()

	for _, hub := range hubs {
		hub.closeAll()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %s connected to %s from %s", playerID, gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case h.inputs <- clientInput{client: c, msg: msg}:
		case <-h.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/gas/index.html")
		if err != nil {
			http.Error(w, "missing client", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)
		cspGame(w)

		_ = getOrSetPlayerID(cfg, w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerGasGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerGasGame(cfg *Config, path string, mux *httprouter.Router, gm *GameManager) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
