package game

// CallerOf resolves which participant currently holds the caller role.
//
// The session document carries an explicit callerId, set once by whichever
// participant's create-if-absent write made the document; that removes the
// ambiguity of inferring the role from directory replication order. The
// observed-order convention survives only as a fallback for sessions whose
// caller has left the directory: the earliest joiner (ties broken by id)
// takes over. Two participants with skewed directory views can still both
// believe they are the fallback caller; the session's compare-and-swap
// writes keep that collision harmless.
//
// With an empty directory and no live callerId the role is unassigned and
// the empty string is returned.
func CallerOf(session *Session, players map[string]Player) string {
	if session != nil && session.CallerID != "" {
		if _, present := players[session.CallerID]; present {
			return session.CallerID
		}
	}

	caller := ""
	var earliest int64
	for id, p := range players {
		if caller == "" || p.JoinedAt < earliest || (p.JoinedAt == earliest && id < caller) {
			caller = id
			earliest = p.JoinedAt
		}
	}
	return caller
}
