package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerOfExplicitRole(t *testing.T) {
	session := NewSession("alice")
	players := map[string]Player{
		"alice": {JoinedAt: 20},
		"bob":   {JoinedAt: 10},
	}
	// The explicit role wins even though bob joined first.
	assert.Equal(t, "alice", CallerOf(&session, players))
}

func TestCallerOfFallsBackWhenCallerLeft(t *testing.T) {
	session := NewSession("alice")
	players := map[string]Player{
		"bob":   {JoinedAt: 10},
		"carol": {JoinedAt: 15},
	}
	assert.Equal(t, "bob", CallerOf(&session, players))
}

func TestCallerOfFallbackTieBrokenByID(t *testing.T) {
	session := Session{}
	players := map[string]Player{
		"carol": {JoinedAt: 10},
		"bob":   {JoinedAt: 10},
	}
	assert.Equal(t, "bob", CallerOf(&session, players))
}

func TestCallerOfEmptyDirectory(t *testing.T) {
	// Role is unassigned with nobody present; behavior on caller loss
	// mid-game is otherwise unspecified.
	session := NewSession("alice")
	assert.Equal(t, "", CallerOf(&session, map[string]Player{}))
	assert.Equal(t, "", CallerOf(nil, map[string]Player{}))
}
