package workflow

import "strings"

type TriggerKind string

const (
	TriggerPush        TriggerKind = "push"
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerSchedule    TriggerKind = "schedule"
	TriggerTag         TriggerKind = "tag"
)

// Event describes what started a run. A run is created from exactly
// one event and the event is immutable for the lifetime of the run.
type Event struct {
	Kind TriggerKind
	Ref  string
	SHA  string
}

// NewEvent normalizes the kind for tag refs: a push of refs/tags/* is
// a tag trigger regardless of the kind the webhook reported.
func NewEvent(kind TriggerKind, ref, sha string) Event {
	e := Event{Kind: kind, Ref: ref, SHA: sha}
	if e.IsTag() && e.Kind == TriggerPush {
		e.Kind = TriggerTag
	}
	return e
}

func (e Event) IsTag() bool {
	return strings.HasPrefix(e.Ref, "refs/tags/")
}

func (e Event) IsBranch() bool {
	return strings.HasPrefix(e.Ref, "refs/heads/")
}

// Branch returns the branch name, or "" for non-branch refs.
func (e Event) Branch() string {
	if !e.IsBranch() {
		return ""
	}
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

// Tag returns the tag name, or "" for non-tag refs.
func (e Event) Tag() string {
	if !e.IsTag() {
		return ""
	}
	return strings.TrimPrefix(e.Ref, "refs/tags/")
}
