package game

// Status represents the current state of the shared game session
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusPlaying     Status = "playing"
	StatusBingoCalled Status = "bingo_called"
	StatusGameOver    Status = "game_over"
)

// Session is the single shared game document all participants converge on.
// Any participant may write it; writes are guarded by the version token
// (compare-and-swap, retry on conflict) rather than a lock.
type Session struct {
	CalledNumbers []int  `json:"calledNumbers"`
	Status        Status `json:"status"`
	Winner        string `json:"winner,omitempty"`
	CallerID      string `json:"callerId,omitempty"`
	Version       int64  `json:"version"`
}

// NewSession is the initial document written by whichever participant's
// create-if-absent lands first. That participant becomes the caller.
func NewSession(callerID string) Session {
	return Session{
		CalledNumbers: []int{},
		Status:        StatusWaiting,
		CallerID:      callerID,
		Version:       0,
	}
}

// CalledSet returns the called numbers as a set.
func (s *Session) CalledSet() map[int]bool {
	set := make(map[int]bool, len(s.CalledNumbers))
	for _, n := range s.CalledNumbers {
		set[n] = true
	}
	return set
}

// LastNumber returns the most recently called number, or false when none
// has been called yet.
func (s *Session) LastNumber() (int, bool) {
	if len(s.CalledNumbers) == 0 {
		return 0, false
	}
	return s.CalledNumbers[len(s.CalledNumbers)-1], true
}

// Remaining lists the pool numbers not yet called, in ascending order.
func (s *Session) Remaining() []int {
	called := s.CalledSet()
	out := make([]int, 0, MaxNumber-len(called))
	for n := 1; n <= MaxNumber; n++ {
		if !called[n] {
			out = append(out, n)
		}
	}
	return out
}

// Player is one participant's record in the shared directory. The card and
// activity fields are written only by their owner; the claim flag is a
// shared-write target any participant's reset may clear.
type Player struct {
	Card            Card  `json:"card"`
	LastActive      int64 `json:"lastActive"`
	HasClaimedBingo bool  `json:"hasClaimedBingo"`
	JoinedAt        int64 `json:"joinedAt"`
}
