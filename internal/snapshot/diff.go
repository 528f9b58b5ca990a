package snapshot

import "sort"

// Diff describes the paths that need retranslation after a content change.
type Diff struct {
	ChangedPaths []string
	RemovedPaths []string
}

// Empty reports whether the diff carries no work.
func (d Diff) Empty() bool {
	return len(d.ChangedPaths) == 0 && len(d.RemovedPaths) == 0
}

// Compare diffs a previous snapshot (may be nil) against a new one. Changed
// paths are present in next with a value absent or different in prev;
// removed paths exist only in prev. Both sets are sorted.
func Compare(prev, next Snapshot) Diff {
	var diff Diff
	for path, value := range next {
		if old, ok := prev[path]; !ok || old != value {
			diff.ChangedPaths = append(diff.ChangedPaths, path)
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			diff.RemovedPaths = append(diff.RemovedPaths, path)
		}
	}
	sort.Strings(diff.ChangedPaths)
	sort.Strings(diff.RemovedPaths)
	return diff
}
