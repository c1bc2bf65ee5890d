package game

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbingo/backend/internal/store"
)

const testAppID = "test"

func newTestController(t *testing.T, st store.Store, id string) *Controller {
	t.Helper()
	ctrl := NewController(st, Options{
		AppID:         testAppID,
		ParticipantID: id,
		ClaimGrace:    20 * time.Millisecond,
	})
	require.NoError(t, ctrl.Join(context.Background()))
	t.Cleanup(ctrl.Close)
	return ctrl
}

func getSession(t *testing.T, st store.Store) Session {
	t.Helper()
	var s Session
	exists, err := st.GetDocument(context.Background(), store.SessionPath(testAppID), &s)
	require.NoError(t, err)
	require.True(t, exists, "session document missing")
	return s
}

func putSession(t *testing.T, st store.Store, s Session) {
	t.Helper()
	require.NoError(t, st.SetDocument(context.Background(), store.SessionPath(testAppID), s, false))
}

func getPlayer(t *testing.T, st store.Store, id string) Player {
	t.Helper()
	var p Player
	exists, err := st.GetDocument(context.Background(), store.PlayerPath(testAppID, id), &p)
	require.NoError(t, err)
	require.True(t, exists, "player document missing")
	return p
}

func TestJoinInitializesSession(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	session := getSession(t, st)
	assert.Equal(t, StatusWaiting, session.Status)
	assert.Empty(t, session.CalledNumbers)
	assert.Empty(t, session.Winner)
	assert.Equal(t, "p1", session.CallerID)

	player := getPlayer(t, st, "p1")
	assert.Len(t, player.Card, Columns)
	assert.False(t, player.HasClaimedBingo)
	assert.True(t, ctrl.IsCaller())
}

func TestJoinSecondParticipant(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl1 := newTestController(t, st, "p1")
	ctrl2 := newTestController(t, st, "p2")

	// The racing initializer must not displace the first writer's intent.
	assert.Equal(t, "p1", getSession(t, st).CallerID)
	assert.True(t, ctrl1.IsCaller())
	assert.False(t, ctrl2.IsCaller())
	assert.Equal(t, 2, ctrl1.Snapshot().PlayerCount)
}

func TestJoinKeepsExistingCard(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")
	card := ctrl.Snapshot().Card
	ctrl.Close()

	// Rejoin with the same identity: the stored card survives.
	again := newTestController(t, st, "p1")
	assert.Equal(t, card, again.Snapshot().Card)
}

func TestCallNumberAppendsUnique(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	seen := make(map[int]bool)
	for i := 0; i < 20; i++ {
		require.NoError(t, ctrl.CallNumber(context.Background()))
		session := getSession(t, st)
		require.Len(t, session.CalledNumbers, i+1)
		n := session.CalledNumbers[i]
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, MaxNumber)
		assert.False(t, seen[n], "number %d called twice", n)
		seen[n] = true
		assert.Equal(t, StatusPlaying, session.Status)
	}
}

func TestCallNumberNonCallerNoOp(t *testing.T) {
	st := store.NewMemoryStore()
	newTestController(t, st, "p1")
	ctrl2 := newTestController(t, st, "p2")

	require.NoError(t, ctrl2.CallNumber(context.Background()))
	assert.Empty(t, getSession(t, st).CalledNumbers)
	assert.Equal(t, StatusWaiting, getSession(t, st).Status)
}

func TestCallNumberAfterBingoNoOp(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	session := getSession(t, st)
	session.CalledNumbers = []int{7, 22}
	session.Status = StatusBingoCalled
	session.Winner = "p2"
	session.Version++
	putSession(t, st, session)

	require.NoError(t, ctrl.CallNumber(context.Background()))
	after := getSession(t, st)
	assert.Equal(t, []int{7, 22}, after.CalledNumbers)
	assert.Equal(t, StatusBingoCalled, after.Status)
}

func TestCallNumberExhaustedPool(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	session := getSession(t, st)
	for n := 1; n <= MaxNumber; n++ {
		session.CalledNumbers = append(session.CalledNumbers, n)
	}
	session.Status = StatusPlaying
	session.Version++
	putSession(t, st, session)

	require.NoError(t, ctrl.CallNumber(context.Background()))
	after := getSession(t, st)
	assert.Equal(t, StatusGameOver, after.Status)
	assert.Len(t, after.CalledNumbers, MaxNumber)

	// Terminal: another call writes nothing.
	require.NoError(t, ctrl.CallNumber(context.Background()))
	assert.Equal(t, after.Version, getSession(t, st).Version)
}

func TestClaimBingoInvalid(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	session := getSession(t, st)
	session.CalledNumbers = []int{1}
	session.Status = StatusPlaying
	session.Version++
	putSession(t, st, session)

	require.NoError(t, ctrl.ClaimBingo(context.Background()))

	// One called number cannot complete a line: the session is untouched
	// and the anti-spam latch is set.
	assert.Equal(t, StatusPlaying, getSession(t, st).Status)
	assert.Empty(t, getSession(t, st).Winner)
	assert.True(t, getPlayer(t, st, "p1").HasClaimedBingo)

	// The latch clears after the grace delay and the claim may be retried.
	assert.Eventually(t, func() bool {
		return !getPlayer(t, st, "p1").HasClaimedBingo
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ctrl.ClaimBingo(context.Background()))
	assert.True(t, getPlayer(t, st, "p1").HasClaimedBingo, "retry was blocked")
}

func TestClaimNoticeSurvivesUnrelatedWrites(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := NewController(st, Options{
		AppID:         testAppID,
		ParticipantID: "p1",
		ClaimGrace:    150 * time.Millisecond,
	})
	require.NoError(t, ctrl.Join(context.Background()))
	t.Cleanup(ctrl.Close)
	newTestController(t, st, "p2")

	session := getSession(t, st)
	session.CalledNumbers = []int{1}
	session.Status = StatusPlaying
	session.Version++
	putSession(t, st, session)

	require.NoError(t, ctrl.ClaimBingo(context.Background()))
	require.Contains(t, ctrl.Snapshot().Message, "Not a bingo")

	// Another participant's activity refresh lands mid-grace; the guidance
	// stays up.
	require.NoError(t, st.UpdateDocument(context.Background(),
		store.PlayerPath(testAppID, "p2"),
		map[string]interface{}{"lastActive": time.Now().Unix()}))
	assert.Contains(t, ctrl.Snapshot().Message, "Not a bingo")

	// So does a session rewrite that changes nothing the player sees.
	touched := getSession(t, st)
	touched.Version++
	putSession(t, st, touched)
	assert.Contains(t, ctrl.Snapshot().Message, "Not a bingo")

	// Once the grace delay ends the guidance clears on its own.
	assert.Eventually(t, func() bool {
		return !strings.Contains(ctrl.Snapshot().Message, "Not a bingo")
	}, time.Second, 10*time.Millisecond)
}

func TestClaimBingoValidWithoutMarking(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")
	card := ctrl.Snapshot().Card

	// Call exactly row 0; the player never marks a single cell. Claim
	// validity comes from called-number coverage alone.
	session := getSession(t, st)
	for col := 0; col < Columns; col++ {
		session.CalledNumbers = append(session.CalledNumbers, card[col][0])
	}
	session.Status = StatusPlaying
	session.Version++
	putSession(t, st, session)

	require.NoError(t, ctrl.ClaimBingo(context.Background()))

	after := getSession(t, st)
	assert.Equal(t, StatusBingoCalled, after.Status)
	assert.Equal(t, "p1", after.Winner)
}

func TestClaimBingoGuardWhenNotPlaying(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	require.NoError(t, ctrl.ClaimBingo(context.Background()))
	assert.False(t, getPlayer(t, st, "p1").HasClaimedBingo)
	assert.Equal(t, StatusWaiting, getSession(t, st).Status)
}

func TestReset(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl1 := newTestController(t, st, "p1")
	ctrl2 := newTestController(t, st, "p2")

	// Mid-game state: numbers called, p1 marked a cell, p2 has a claim
	// latched.
	require.NoError(t, ctrl1.CallNumber(context.Background()))
	called := getSession(t, st).CalledNumbers[0]
	ctrl1.ToggleMark(called)
	require.NotEmpty(t, ctrl1.Snapshot().Marked)
	require.NoError(t, st.UpdateDocument(context.Background(),
		store.PlayerPath(testAppID, "p2"),
		map[string]interface{}{"hasClaimedBingo": true}))

	cardBefore := ctrl2.Snapshot().Card
	require.NoError(t, ctrl2.Reset(context.Background()))

	session := getSession(t, st)
	assert.Equal(t, StatusWaiting, session.Status)
	assert.Empty(t, session.CalledNumbers)
	assert.Empty(t, session.Winner)
	assert.Equal(t, "p1", session.CallerID, "caller role survives a reset")

	// Fresh card for the initiator, claim flags cleared for everyone,
	// local marks rebuilt from scratch.
	assert.NotEqual(t, cardBefore, ctrl2.Snapshot().Card)
	assert.False(t, getPlayer(t, st, "p1").HasClaimedBingo)
	assert.False(t, getPlayer(t, st, "p2").HasClaimedBingo)
	assert.Empty(t, ctrl1.Snapshot().Marked)
}

func TestToggleMarkGuards(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	// Not playing yet: nothing is markable.
	ctrl.ToggleMark(Free)
	assert.Empty(t, ctrl.Snapshot().Marked)

	require.NoError(t, ctrl.CallNumber(context.Background()))
	called := getSession(t, st).CalledNumbers[0]

	// Called numbers and the free cell toggle; uncalled numbers do not.
	ctrl.ToggleMark(called)
	assert.Equal(t, []int{called}, ctrl.Snapshot().Marked)
	ctrl.ToggleMark(Free)
	assert.Equal(t, []int{Free, called}, ctrl.Snapshot().Marked)
	ctrl.ToggleMark(called)
	assert.Equal(t, []int{Free}, ctrl.Snapshot().Marked)

	uncalled := 0
	for n := 1; n <= MaxNumber; n++ {
		if n != called {
			uncalled = n
			break
		}
	}
	ctrl.ToggleMark(uncalled)
	assert.Equal(t, []int{Free}, ctrl.Snapshot().Marked)
}

func TestSnapshotDerivedState(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := newTestController(t, st, "p1")

	snap := ctrl.Snapshot()
	assert.Equal(t, "p1", snap.ParticipantID)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Empty(t, snap.Markable)
	assert.Contains(t, snap.Message, "caller")

	require.NoError(t, ctrl.CallNumber(context.Background()))
	snap = ctrl.Snapshot()
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, snap.CalledNumbers[0], snap.LastNumber)
	// The free centre is always markable while playing.
	assert.Contains(t, snap.Markable, Free)
	assert.Contains(t, snap.Message, Letter(snap.LastNumber))
}

func TestLetter(t *testing.T) {
	cases := map[int]string{1: "B", 15: "B", 16: "I", 30: "I", 31: "N",
		45: "N", 46: "G", 60: "G", 61: "O", 75: "O", 0: "?", 76: "?"}
	for n, want := range cases {
		assert.Equal(t, want, Letter(n), "Letter(%d)", n)
	}
}
