package store

// DedupeLast returns pairs with only the last pair of every key, keeping the relative order
// of the remaining pairs. If no key occurs twice, pairs is returned unchanged.
//
// Backends that upsert a batch in a single statement (postgres, PostgREST) need this, since
// one statement can not touch the same row twice. Applying the result gives the same state
// as applying pairs one by one.
func DedupeLast(pairs []KeyValue) []KeyValue {
	last := make(map[string]int, len(pairs))
	for i, p := range pairs {
		last[p.Key] = i
	}
	if len(last) == len(pairs) {
		return pairs
	}
	out := make([]KeyValue, 0, len(last))
	for i, p := range pairs {
		if last[p.Key] == i {
			out = append(out, p)
		}
	}
	return out
}
