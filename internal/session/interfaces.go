// Package session is the session store: crash-safe, concurrency-safe CRUD
// over session records kept as one JSON file each, plus the secondary
// index used for listing.
//
// Every mutation follows the same cycle: lock the record, read it, validate,
// mutate in memory, write it back atomically, update the index, unlock.
// Plain reads take no lock; writes are atomic renames, so a reader sees
// either the previous or the new record and never a partial one.
package session

import (
	"context"
	"time"

	"github.com/Iron-Ham/worklog/internal/model"
)

// LifecycleHook is notified after a session of project changes lifecycle
// status (created, completed, parked, resumed, auto-closed, archived).
// It runs outside every record lock.
type LifecycleHook interface {
	SessionChanged(ctx context.Context, projectSlug string)
}

// Observer receives store instrumentation. Implementations must be safe
// for concurrent use.
type Observer interface {
	// OperationDone is called once per public store operation.
	OperationDone(op string, elapsed time.Duration, err error)
	// LockWaited reports how long a lock of the given kind ("session" or
	// "index") blocked before it was granted.
	LockWaited(kind string, waited time.Duration)
	// IndexRebuilt is called after a full index rebuild.
	IndexRebuilt(entries int)
}

type nopObserver struct{}

func (nopObserver) OperationDone(string, time.Duration, error) {}
func (nopObserver) LockWaited(string, time.Duration)           {}
func (nopObserver) IndexRebuilt(int)                           {}

type nopHook struct{}

func (nopHook) SessionChanged(context.Context, string) {}

// Filter selects sessions for List and ListSummaries. Zero values match
// everything; archived sessions are included only on request.
type Filter struct {
	ProjectSlug     string
	Status          model.SessionStatus
	IncludeArchived bool
}

func (f Filter) match(slug string, status model.SessionStatus) bool {
	if f.ProjectSlug != "" && slug != f.ProjectSlug {
		return false
	}
	if f.Status != "" && status != f.Status {
		return false
	}
	return true
}

// CreateParams are the inputs to Create. RoadmapRef and GitBranch are optional.
type CreateParams struct {
	ProjectSlug string
	Intent      string
	RoadmapRef  string
	GitBranch   string
}

// Fields is the whitelisted set of fields Update may override. Nil means
// leave unchanged.
type Fields struct {
	Intent          *string
	CurrentActivity *string
	RoadmapRef      *string
	Outcome         *string
	ParkedReason    *string
}

// UpdatableFields lists the keys FieldsFromMap accepts.
var UpdatableFields = []string{"intent", "current_activity", "roadmap_ref", "outcome", "parked_reason"}

// FieldsFromMap builds Fields from loosely typed key/value input such as
// CLI flags or a JSON object. Unknown keys and non-string values are ignored.
func FieldsFromMap(values map[string]any) Fields {
	var f Fields
	str := func(key string) *string {
		v, ok := values[key].(string)
		if !ok {
			return nil
		}
		return &v
	}
	f.Intent = str("intent")
	f.CurrentActivity = str("current_activity")
	f.RoadmapRef = str("roadmap_ref")
	f.Outcome = str("outcome")
	f.ParkedReason = str("parked_reason")
	return f
}

// CompleteParams are the inputs to Complete. Nil slices leave the stored
// values alone; non-nil slices replace them wholesale.
type CompleteParams struct {
	Outcome      string
	NextSteps    []string
	Commits      []model.Commit
	FilesChanged []string
	Decisions    []string
}

// TaskUpdate is the input to UpdateTask. Subject is optional.
type TaskUpdate struct {
	TaskID  string
	Status  string
	Subject *string
}
