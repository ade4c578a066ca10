package session

import (
	"context"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/validate"
)

// Heartbeat refreshes last_heartbeat on an Active session. For any other
// status it returns the record unchanged without error.
func (s *Store) Heartbeat(ctx context.Context, id string) (*model.Session, error) {
	return s.mutate(ctx, "heartbeat", id, func(sess *model.Session) error {
		if sess.Status != model.StatusActive {
			return ErrUnchanged
		}
		sess.Touch(s.timestamp())
		return nil
	})
}

// HeartbeatProject heartbeats every Active session of a project, one lock
// at a time. Sessions that fail are logged and skipped.
func (s *Store) HeartbeatProject(ctx context.Context, slug string) ([]*model.Session, error) {
	if err := validate.ProjectSlug(slug); err != nil {
		return nil, err
	}
	active, err := s.ListSummaries(ctx, Filter{ProjectSlug: slug, Status: model.StatusActive})
	if err != nil {
		return nil, err
	}

	updated := make([]*model.Session, 0, len(active))
	for _, sum := range active {
		sess, err := s.Heartbeat(ctx, sum.SessionID)
		if err != nil {
			s.logger.WithSession(sum.SessionID).Warn("project heartbeat skipped session", "error", err)
			continue
		}
		updated = append(updated, sess)
	}
	return updated, nil
}

// Update applies the whitelisted field overrides in f. Every present value
// is trimmed and length-checked before the record is touched.
func (s *Store) Update(ctx context.Context, id string, f Fields) (*model.Session, error) {
	type field struct {
		value *string
		name  string
		max   int
	}
	fields := []field{
		{f.Intent, "intent", validate.MaxIntent},
		{f.CurrentActivity, "current_activity", validate.MaxActivity},
		{f.RoadmapRef, "roadmap_ref", validate.MaxRoadmapRef},
		{f.Outcome, "outcome", validate.MaxOutcome},
		{f.ParkedReason, "parked_reason", validate.MaxReason},
	}
	clean := make(map[string]string, len(fields))
	for _, fd := range fields {
		v, err := validate.OptionalString(fd.value, fd.name, fd.max)
		if err != nil {
			return nil, err
		}
		if v != nil {
			clean[fd.name] = *v
		}
	}

	return s.mutate(ctx, "update", id, func(sess *model.Session) error {
		for name, v := range clean {
			switch name {
			case "intent":
				sess.Intent = v
			case "current_activity":
				sess.CurrentActivity = v
			case "roadmap_ref":
				sess.RoadmapRef = v
			case "outcome":
				sess.Outcome = v
			case "parked_reason":
				sess.ParkedReason = v
			}
		}
		return nil
	})
}

// AddEvent appends an event. Events are never deduplicated.
func (s *Store) AddEvent(ctx context.Context, id, message string) (*model.Session, error) {
	message, err := validate.String(message, "event message", validate.MaxMessage)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_event", id, func(sess *model.Session) error {
		now := s.timestamp()
		sess.Events = append(sess.Events, model.Event{Timestamp: now, Message: message})
		sess.Touch(now)
		return nil
	})
}

// AddCommit appends a commit unless one with the same 7-character SHA
// prefix is already recorded. The heartbeat is refreshed either way.
func (s *Store) AddCommit(ctx context.Context, id, sha, message string) (*model.Session, error) {
	if err := validate.SHA(sha); err != nil {
		return nil, err
	}
	message, err := validate.String(message, "commit message", validate.MaxMessage)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_commit", id, func(sess *model.Session) error {
		if !sess.HasCommit(sha) {
			sess.Commits = append(sess.Commits, model.Commit{SHA: sha, Message: message})
		}
		sess.Touch(s.timestamp())
		return nil
	})
}

// AddDecision appends a decision unless the exact text is already recorded.
func (s *Store) AddDecision(ctx context.Context, id, decision string) (*model.Session, error) {
	decision, err := validate.String(decision, "decision", validate.MaxDecision)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_decision", id, func(sess *model.Session) error {
		if !sess.HasDecision(decision) {
			sess.Decisions = append(sess.Decisions, decision)
		}
		sess.Touch(s.timestamp())
		return nil
	})
}

// RequestAction marks the session as waiting on the user.
func (s *Store) RequestAction(ctx context.Context, id, reason string) (*model.Session, error) {
	reason, err := validate.String(reason, "reason", validate.MaxReason)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "request_action", id, func(sess *model.Session) error {
		sess.AwaitingAction = reason
		sess.Touch(s.timestamp())
		return nil
	})
}

// ClearAction removes the awaiting-action annotation.
func (s *Store) ClearAction(ctx context.Context, id string) (*model.Session, error) {
	return s.mutate(ctx, "clear_action", id, func(sess *model.Session) error {
		sess.AwaitingAction = ""
		sess.Touch(s.timestamp())
		return nil
	})
}

// AddTask appends a single task; see AddTasks.
func (s *Store) AddTask(ctx context.Context, id, subject string) (*model.Session, error) {
	return s.AddTasks(ctx, id, []string{subject})
}

// AddTasks appends a Pending task for every subject not already used in
// the session, including earlier subjects in the same call. The record is
// written only when at least one task was added.
func (s *Store) AddTasks(ctx context.Context, id string, subjects []string) (*model.Session, error) {
	clean, err := validate.Strings(subjects, "task subject", validate.MaxTaskSubject)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_tasks", id, func(sess *model.Session) error {
		now := s.timestamp()
		added := 0
		for _, subject := range clean {
			if sess.SubjectTaken(subject, "") {
				continue
			}
			sess.Tasks = append(sess.Tasks, model.Task{
				ID:        model.NewTaskID(),
				Subject:   subject,
				Status:    model.TaskPending,
				AddedAt:   now,
				UpdatedAt: now,
			})
			added++
		}
		if added == 0 {
			return ErrUnchanged
		}
		sess.Touch(now)
		return nil
	})
}

// UpdateTask sets a task's status and optionally renames it. A rename to a
// subject held by another task fails with a Conflict before anything on
// the task is modified.
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) (*model.Session, error) {
	status, err := validate.TaskStatus(u.Status)
	if err != nil {
		return nil, err
	}
	subject, err := validate.OptionalString(u.Subject, "task subject", validate.MaxTaskSubject)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "update_task", id, func(sess *model.Session) error {
		i := sess.FindTask(u.TaskID)
		if i < 0 {
			return errors.NewNotFoundError("task", u.TaskID).WithCause(
				errors.New("not in session " + id))
		}
		if subject != nil && sess.SubjectTaken(*subject, u.TaskID) {
			return errors.NewConflictError("task subject", *subject)
		}

		now := s.timestamp()
		task := &sess.Tasks[i]
		task.Status = status
		task.UpdatedAt = now
		if subject != nil {
			task.Subject = *subject
		}
		sess.Touch(now)
		return nil
	})
}
