package workflow

import "path"

// Matches reports whether the stage's when-predicate holds for the
// event. A nil predicate always holds. All declared conditions must
// hold at once; since a ref is either a tag or a branch head, a
// predicate with a branches list and one with a tags list can never
// both hold for the same event.
func (w *When) Matches(e Event) bool {
	if w == nil {
		return true
	}
	if len(w.Events) > 0 && !containsKind(w.Events, e.Kind) {
		return false
	}
	if len(w.Branches) > 0 {
		if !e.IsBranch() || !matchesAny(w.Branches, e.Branch()) {
			return false
		}
	}
	if len(w.Tags) > 0 {
		if !e.IsTag() || !matchesAny(w.Tags, e.Tag()) {
			return false
		}
	}
	return true
}

func containsKind(kinds []string, kind TriggerKind) bool {
	for _, k := range kinds {
		if TriggerKind(k) == kind {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, name string) bool {
	if name == "" {
		return false
	}
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
