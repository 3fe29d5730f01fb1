package chat

// LockedSessions reports how many sessions have a lock entry.
func (o *Orchestrator) LockedSessions() int {
	return int(o.locks.Len())
}
