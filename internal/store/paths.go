package store

import "strings"

// Document paths are namespaced by the application/session identifier so
// several games can share one Redis database.

// SessionPath is the single shared game document for an app.
func SessionPath(appID string) string {
	return appID + "/game/current"
}

// PlayersPath is the participant directory collection for an app.
func PlayersPath(appID string) string {
	return appID + "/players"
}

// PlayerPath is one participant record inside the directory.
func PlayerPath(appID, participantID string) string {
	return PlayersPath(appID) + "/" + participantID
}

// MemberID extracts the trailing document id from a collection member path.
func MemberID(collectionPath, memberPath string) string {
	return strings.TrimPrefix(memberPath, collectionPath+"/")
}
