package roster

import "time"

// Reconciliation is the delta between an incoming roster and the mirror.
type Reconciliation struct {
	ToCreate  []MirrorRecord
	ToUpdate  []MirrorRecord
	Unchanged int
}

// Reconcile classifies every incoming record as new, changed or unchanged.
// Comparison is exact string equality on the tracked fields; an archived
// mirror row that reappears in the source is unarchived.
func Reconcile(incoming []SourceRecord, existing []MirrorRecord, now time.Time) Reconciliation {
	lookup := make(map[string]MirrorRecord, len(existing))
	for _, m := range existing {
		lookup[m.StudentID] = m
	}

	var res Reconciliation
	for _, rec := range incoming {
		next := rec.Mirror(now)
		cur, ok := lookup[rec.StudentID]
		switch {
		case !ok:
			res.ToCreate = append(res.ToCreate, next)
		case changed(cur, next):
			res.ToUpdate = append(res.ToUpdate, next)
		default:
			res.Unchanged++
			continue
		}
		lookup[rec.StudentID] = next
	}
	return res
}

func changed(cur, next MirrorRecord) bool {
	return cur.Name != next.Name ||
		cur.LivedName != next.LivedName ||
		cur.Remarks != next.Remarks ||
		cur.Photo != next.Photo ||
		cur.CampusEntry != next.CampusEntry ||
		cur.CardID != next.CardID ||
		cur.Archived != next.Archived
}

// Merge applies a reconciliation onto existing and returns the new mirror state.
func Merge(existing []MirrorRecord, res Reconciliation) []MirrorRecord {
	idx := make(map[string]int, len(existing))
	out := make([]MirrorRecord, 0, len(existing)+len(res.ToCreate))
	for _, m := range existing {
		idx[m.StudentID] = len(out)
		out = append(out, m)
	}
	for _, group := range [][]MirrorRecord{res.ToCreate, res.ToUpdate} {
		for _, m := range group {
			if i, ok := idx[m.StudentID]; ok {
				out[i] = m
				continue
			}
			idx[m.StudentID] = len(out)
			out = append(out, m)
		}
	}
	return out
}
