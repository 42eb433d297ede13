package ledger

// SeedRecord is a test helper that writes rec directly into an in-memory store,
// bypassing version checks.
func SeedRecord(s Store, rec UserRecord) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if rec.Version == 0 {
			rec.Version = 1
		}
		mem.records[rec.Identity] = rec.clone()
	}
}
