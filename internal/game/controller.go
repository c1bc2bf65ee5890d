package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playbingo/backend/internal/logger"
	"github.com/playbingo/backend/internal/store"
)

const (
	defaultClaimGrace     = 3 * time.Second
	defaultCallRetryLimit = 5

	failedClaimNotice = "Not a bingo yet, keep playing."
)

// Snapshot is the derived view of the game handed to the UI layer on every
// remote or local change.
type Snapshot struct {
	ParticipantID string `json:"participantId"`
	Card          Card   `json:"card"`
	Status        Status `json:"status"`
	CalledNumbers []int  `json:"calledNumbers"`
	LastNumber    int    `json:"lastNumber,omitempty"`
	Winner        string `json:"winner,omitempty"`
	IsCaller      bool   `json:"isCaller"`
	Marked        []int  `json:"marked"`
	Markable      []int  `json:"markable"`
	Message       string `json:"message"`
	PlayerCount   int    `json:"playerCount"`
}

// Options configures a Controller.
type Options struct {
	AppID         string
	ParticipantID string

	// ClaimGrace is how long a failed bingo claim blocks the next attempt.
	ClaimGrace time.Duration

	// CallRetryLimit bounds compare-and-swap retries on the session document.
	CallRetryLimit int

	// OnUpdate receives a fresh Snapshot after every state change. It is
	// called without internal locks held and must not block.
	OnUpdate func(Snapshot)

	Logger *zap.SugaredLogger
}

// Controller is one participant's game session state machine. It owns that
// participant's record in the shared directory, subscribes to the shared
// session document, and turns local actions (call, claim, mark, reset) into
// store writes.
//
// There is no authoritative server behind the store: every participant runs
// this same controller and validates only its own claims. Convergence is
// last-write-wins hardened with a version token on the session document;
// the residual races are documented on each operation.
type Controller struct {
	st    store.Store
	log   *zap.SugaredLogger
	appID string
	id    string

	grace      time.Duration
	retryLimit int
	onUpdate   func(Snapshot)

	mu           sync.Mutex
	session      Session
	hasSession   bool
	players      map[string]Player
	card         Card
	marked       map[int]bool
	claimLatched bool
	notice       string
	degraded     bool
	unsubs       []store.Unsubscribe
}

// NewController builds a controller; call Join before anything else.
func NewController(st store.Store, opts Options) *Controller {
	if opts.ClaimGrace <= 0 {
		opts.ClaimGrace = defaultClaimGrace
	}
	if opts.CallRetryLimit <= 0 {
		opts.CallRetryLimit = defaultCallRetryLimit
	}
	log := opts.Logger
	if log == nil {
		log = logger.Log
	}
	return &Controller{
		st:         st,
		log:        log,
		appID:      opts.AppID,
		id:         opts.ParticipantID,
		grace:      opts.ClaimGrace,
		retryLimit: opts.CallRetryLimit,
		onUpdate:   opts.OnUpdate,
		players:    make(map[string]Player),
		marked:     make(map[int]bool),
	}
}

// ParticipantID returns this controller's participant identifier.
func (c *Controller) ParticipantID() string {
	return c.id
}

// Join loads or creates this participant's record, lazily initializes the
// shared session document, and subscribes to both shared documents. A store
// failure here is fatal for the session; the caller should surface it and
// require a reconnect.
func (c *Controller) Join(ctx context.Context) error {
	now := time.Now().Unix()
	playerPath := store.PlayerPath(c.appID, c.id)

	var existing Player
	exists, err := c.st.GetDocument(ctx, playerPath, &existing)
	if err != nil {
		return fmt.Errorf("load participant record: %w", err)
	}

	if exists && existing.Card.wellFormed() {
		c.mu.Lock()
		c.card = existing.Card
		c.mu.Unlock()
		if err := c.st.UpdateDocument(ctx, playerPath, map[string]interface{}{
			"lastActive": now,
		}); err != nil {
			return fmt.Errorf("refresh participant record: %w", err)
		}
	} else {
		card := Generate()
		c.mu.Lock()
		c.card = card
		c.mu.Unlock()
		record := Player{Card: card, LastActive: now, JoinedAt: now}
		if err := c.st.SetDocument(ctx, playerPath, record, true); err != nil {
			return fmt.Errorf("create participant record: %w", err)
		}
	}

	// Lazy session init. First create-if-absent wins and its author becomes
	// the caller; losers just read the existing document.
	created, err := c.st.CreateDocument(ctx, store.SessionPath(c.appID), NewSession(c.id))
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	if created {
		c.log.Infof("[session] %s created game session for app %s, acting as caller", c.id, c.appID)
	}

	unsubSession, err := c.st.SubscribeDocument(ctx, store.SessionPath(c.appID), c.handleSessionChange, c.handleStoreError)
	if err != nil {
		return fmt.Errorf("subscribe session: %w", err)
	}
	unsubPlayers, err := c.st.SubscribeCollection(ctx, store.PlayersPath(c.appID), c.handlePlayersChange, c.handleStoreError)
	if err != nil {
		unsubSession()
		return fmt.Errorf("subscribe players: %w", err)
	}

	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubSession, unsubPlayers)
	c.mu.Unlock()
	return nil
}

// Close tears down subscriptions. Deferred claim-flag clears keep running;
// they are idempotent against whatever state they find.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// IsCaller reports whether this participant currently holds the caller role.
func (c *Controller) IsCaller() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callerLocked() == c.id
}

func (c *Controller) callerLocked() string {
	if !c.hasSession {
		return ""
	}
	return CallerOf(&c.session, c.players)
}

// CallNumber draws one uncalled number at random and appends it to the
// shared call history. Only the caller may draw, and never once a bingo has
// been claimed. When the pool is exhausted the session moves to game_over.
//
// Two skewed clients can both believe they are the caller; the version
// token turns that from a silently dropped number into a retried append, at
// the cost of occasionally giving up under sustained contention.
func (c *Controller) CallNumber(ctx context.Context) error {
	c.mu.Lock()
	isCaller := c.callerLocked() == c.id
	status := c.session.Status
	c.mu.Unlock()
	if !isCaller || status == StatusBingoCalled {
		return nil // guard violation, silent no-op
	}

	path := store.SessionPath(c.appID)
	for attempt := 0; attempt < c.retryLimit; attempt++ {
		// Re-read fresh rather than trusting the subscription cache, to
		// minimize staleness of the append base.
		var cur Session
		exists, err := c.st.GetDocument(ctx, path, &cur)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if !exists || cur.Status == StatusBingoCalled {
			return nil
		}

		next := cur
		remaining := cur.Remaining()
		if len(remaining) == 0 {
			if cur.Status == StatusGameOver {
				return nil
			}
			next.Status = StatusGameOver
		} else {
			n := remaining[rand.Intn(len(remaining))]
			next.CalledNumbers = append(append([]int{}, cur.CalledNumbers...), n)
			next.Status = StatusPlaying
		}
		next.Version = cur.Version + 1

		err = c.st.CompareAndSetDocument(ctx, path, next, cur.Version)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write session: %w", err)
		}
		c.touch(ctx)
		return nil
	}

	c.log.Warnf("[session] %s gave up calling a number after %d conflicts", c.id, c.retryLimit)
	c.setNotice("The game is busy, try calling again.")
	return nil
}

// ClaimBingo latches this participant's claim flag, validates the claim
// against the participant's own card and the locally cached called set (not
// re-fetched; the push model means the cache may trail the store), and on
// success marks the session won. An invalid claim clears the latch after
// the grace delay so the participant may try again.
func (c *Controller) ClaimBingo(ctx context.Context) error {
	c.mu.Lock()
	status := c.session.Status
	latched := c.claimLatched || c.players[c.id].HasClaimedBingo
	card := c.card
	called := c.session.CalledSet()
	c.mu.Unlock()
	if status != StatusPlaying || latched {
		return nil // guard violation, silent no-op
	}

	// Anti-spam latch first, unconditionally. The latch itself is racy but
	// non-critical: the worst case is one extra validation.
	c.mu.Lock()
	c.claimLatched = true
	c.mu.Unlock()
	playerPath := store.PlayerPath(c.appID, c.id)
	if err := c.st.UpdateDocument(ctx, playerPath, map[string]interface{}{
		"hasClaimedBingo": true,
		"lastActive":      time.Now().Unix(),
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.mu.Lock()
		c.claimLatched = false
		c.mu.Unlock()
		return fmt.Errorf("latch claim flag: %w", err)
	}

	if CheckWin(card, called) {
		return c.announceWin(ctx)
	}

	c.setNotice(failedClaimNotice)

	// Fire-and-forget: this timer survives resets and later claims, so the
	// write must be harmless against whatever state it finds.
	time.AfterFunc(c.grace, func() {
		err := c.st.UpdateDocument(context.Background(), playerPath, map[string]interface{}{
			"hasClaimedBingo": false,
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.log.Errorf("[session] %s failed to clear claim flag: %v", c.id, err)
		}
		c.mu.Lock()
		c.claimLatched = false
		if c.notice == failedClaimNotice {
			c.notice = ""
		}
		c.mu.Unlock()
		c.publish()
	})
	return nil
}

func (c *Controller) announceWin(ctx context.Context) error {
	path := store.SessionPath(c.appID)
	for attempt := 0; attempt < c.retryLimit; attempt++ {
		var cur Session
		exists, err := c.st.GetDocument(ctx, path, &cur)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if !exists || cur.Status != StatusPlaying {
			// Someone else won or the game was reset while we validated.
			return nil
		}
		next := cur
		next.Status = StatusBingoCalled
		next.Winner = c.id
		next.Version = cur.Version + 1

		err = c.st.CompareAndSetDocument(ctx, path, next, cur.Version)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write session: %w", err)
		}
		c.log.Infof("[session] %s announced bingo for app %s", c.id, c.appID)
		return nil
	}
	c.log.Warnf("[session] %s gave up announcing bingo after %d conflicts", c.id, c.retryLimit)
	return nil
}

// Reset replaces the session wholesale with a fresh waiting state, deals
// this participant a new card, clears local marks, and best-effort clears
// every participant's claim flag. Any participant may reset; a call or
// claim racing the reset is lost by design (full-state replace).
func (c *Controller) Reset(ctx context.Context) error {
	path := store.SessionPath(c.appID)
	for attempt := 0; attempt < c.retryLimit; attempt++ {
		var cur Session
		exists, err := c.st.GetDocument(ctx, path, &cur)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if !exists {
			if _, err := c.st.CreateDocument(ctx, path, NewSession(c.id)); err != nil {
				return fmt.Errorf("initialize session: %w", err)
			}
			break
		}
		next := NewSession(cur.CallerID)
		next.Version = cur.Version + 1
		err = c.st.CompareAndSetDocument(ctx, path, next, cur.Version)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write session: %w", err)
		}
		break
	}

	// Fresh card for the initiator; other participants keep theirs.
	card := Generate()
	c.mu.Lock()
	c.card = card
	c.marked = make(map[int]bool)
	c.claimLatched = false
	ids := make([]string, 0, len(c.players))
	for id := range c.players {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	if err := c.st.SetDocument(ctx, store.PlayerPath(c.appID, c.id), map[string]interface{}{
		"card":            card,
		"lastActive":      time.Now().Unix(),
		"hasClaimedBingo": false,
	}, true); err != nil {
		return fmt.Errorf("regenerate card: %w", err)
	}

	// Bulk claim-flag clear over the enumerated directory; partial failure
	// is reported, not retried.
	sort.Strings(ids)
	updates := make([]store.Update, 0, len(ids))
	for _, id := range ids {
		if id == c.id {
			continue // already cleared above
		}
		updates = append(updates, store.Update{
			Path:   store.PlayerPath(c.appID, id),
			Fields: map[string]interface{}{"hasClaimedBingo": false},
		})
	}
	if len(updates) > 0 {
		succeeded, err := c.st.BatchUpdate(ctx, updates)
		if err != nil {
			c.log.Warnf("[session] reset cleared %d/%d claim flags: %v", len(succeeded), len(updates), err)
		}
	}

	c.publish()
	return nil
}

// ToggleMark flips a cell in the local marked set. Marking is a pure UI
// cache: it never touches the shared store and has no bearing on claim
// validity. Only the free cell and already-called numbers may be marked,
// and only while the game is playing.
func (c *Controller) ToggleMark(value int) {
	c.mu.Lock()
	if c.session.Status != StatusPlaying || (value != Free && !c.session.CalledSet()[value]) {
		c.mu.Unlock()
		return // guard violation, silent no-op
	}
	if c.marked[value] {
		delete(c.marked, value)
	} else {
		c.marked[value] = true
	}
	c.mu.Unlock()
	c.publish()
}

// Snapshot returns the current derived view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// touch refreshes this participant's activity timestamp, best effort.
func (c *Controller) touch(ctx context.Context) {
	err := c.st.UpdateDocument(ctx, store.PlayerPath(c.appID, c.id), map[string]interface{}{
		"lastActive": time.Now().Unix(),
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.log.Debugf("[session] %s failed to refresh activity: %v", c.id, err)
	}
}

func (c *Controller) handleSessionChange(raw json.RawMessage, exists bool) {
	c.mu.Lock()
	if !exists {
		c.hasSession = false
		c.mu.Unlock()
		c.publish()
		return
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		c.log.Errorf("[session] %s received malformed session document: %v", c.id, err)
		c.mu.Unlock()
		return
	}
	prev := c.session
	c.session = sess
	c.hasSession = true

	// A notice is local guidance (failed claim, call contention); it stays up
	// through unrelated remote writes and clears only when the game itself
	// moves on. The claim grace timer clears its own notice regardless.
	if sess.Status != prev.Status || len(sess.CalledNumbers) != len(prev.CalledNumbers) {
		c.notice = ""
	}

	// A reset rebuilds the local mark cache from scratch.
	if (sess.Status == StatusWaiting && prev.Status != StatusWaiting) ||
		len(sess.CalledNumbers) < len(prev.CalledNumbers) {
		c.marked = make(map[int]bool)
		c.claimLatched = false
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) handlePlayersChange(docs map[string]json.RawMessage) {
	players := make(map[string]Player, len(docs))
	for id, raw := range docs {
		var p Player
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Errorf("[session] malformed record for participant %s: %v", id, err)
			continue
		}
		players[id] = p
	}
	c.mu.Lock()
	c.players = players
	if own, ok := players[c.id]; ok && !own.HasClaimedBingo {
		c.claimLatched = false
	}
	c.mu.Unlock()
	c.publish()
}

// handleStoreError freezes the last known snapshot behind a degraded-state
// message. No automatic reconnect; the participant rejoins to recover.
func (c *Controller) handleStoreError(err error) {
	c.log.Errorf("[session] %s subscription failed: %v", c.id, err)
	c.mu.Lock()
	c.degraded = true
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) setNotice(msg string) {
	c.mu.Lock()
	c.notice = msg
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.onUpdate(snap)
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		ParticipantID: c.id,
		Card:          c.card,
		Status:        c.session.Status,
		CalledNumbers: append([]int{}, c.session.CalledNumbers...),
		Winner:        c.session.Winner,
		IsCaller:      c.callerLocked() == c.id,
		Marked:        sortedKeys(c.marked),
		Markable:      c.markableLocked(),
		Message:       c.messageLocked(),
		PlayerCount:   len(c.players),
	}
	if !c.hasSession {
		snap.Status = StatusWaiting
	}
	if n, ok := c.session.LastNumber(); ok {
		snap.LastNumber = n
	}
	return snap
}

func (c *Controller) markableLocked() []int {
	if c.session.Status != StatusPlaying {
		return []int{}
	}
	called := c.session.CalledSet()
	out := []int{}
	for _, col := range c.card {
		for _, v := range col {
			if v == Free || called[v] {
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

func (c *Controller) messageLocked() string {
	if c.degraded {
		return "Connection to the game lost. Showing the last known state, reload to rejoin."
	}
	if c.notice != "" {
		return c.notice
	}
	if !c.hasSession {
		return "Setting up the game..."
	}
	switch c.session.Status {
	case StatusWaiting:
		if c.callerLocked() == c.id {
			return "You are the caller. Call the first number to start."
		}
		return "Waiting for the caller to start the game."
	case StatusPlaying:
		if n, ok := c.session.LastNumber(); ok {
			return fmt.Sprintf("%s-%d was called.", Letter(n), n)
		}
		return "The game is on."
	case StatusBingoCalled:
		if c.session.Winner == c.id {
			return "BINGO! You won!"
		}
		return fmt.Sprintf("BINGO! Player %s won.", c.session.Winner)
	case StatusGameOver:
		return "All 75 numbers called and no bingo. Reset to play again."
	}
	return ""
}

// Letter maps a number to its B-I-N-G-O column letter.
func Letter(n int) string {
	switch {
	case n >= 1 && n <= 15:
		return "B"
	case n <= 30:
		return "I"
	case n <= 45:
		return "N"
	case n <= 60:
		return "G"
	case n <= 75:
		return "O"
	default:
		return "?"
	}
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
