package session

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/validate"
)

// Complete closes a session with an outcome. Non-nil lists in p replace the
// stored ones wholesale; next steps are cut to the first three.
func (s *Store) Complete(ctx context.Context, id string, p CompleteParams) (*model.Session, error) {
	outcome, err := validate.String(p.Outcome, "outcome", validate.MaxOutcome)
	if err != nil {
		return nil, err
	}
	if p.Commits != nil {
		if err := validate.Commits(p.Commits); err != nil {
			return nil, err
		}
	}

	sess, err := s.mutate(ctx, "complete", id, func(sess *model.Session) error {
		sess.End(model.StatusCompleted, s.timestamp())
		sess.Outcome = outcome
		if p.NextSteps != nil {
			sess.NextSteps = model.TruncateSteps(p.NextSteps)
		}
		if p.Commits != nil {
			sess.Commits = append([]model.Commit{}, p.Commits...)
		}
		if p.FilesChanged != nil {
			sess.FilesChanged = append([]string{}, p.FilesChanged...)
		}
		if p.Decisions != nil {
			sess.Decisions = append([]string{}, p.Decisions...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithSession(id).Info("session completed")
	s.lifecycleChanged(ctx, sess.ProjectSlug)
	return sess, nil
}

// Park suspends a session with a reason. ended_at records when it was parked.
func (s *Store) Park(ctx context.Context, id, reason string, nextSteps []string) (*model.Session, error) {
	reason, err := validate.String(reason, "reason", validate.MaxReason)
	if err != nil {
		return nil, err
	}

	sess, err := s.mutate(ctx, "park", id, func(sess *model.Session) error {
		sess.End(model.StatusParked, s.timestamp())
		sess.ParkedReason = reason
		if nextSteps != nil {
			sess.NextSteps = model.TruncateSteps(nextSteps)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithSession(id).Info("session parked")
	s.lifecycleChanged(ctx, sess.ProjectSlug)
	return sess, nil
}

// Resume continues the work of session id in a new Active session carrying
// forward its project, roadmap ref, branch and open questions. The intent
// is carried forward too unless newIntent is non-empty. The original is
// then marked Completed with an outcome naming the new session.
//
// The new record is fully written before the original is locked, so no
// two session locks are ever held at once.
func (s *Store) Resume(ctx context.Context, id, newIntent string) (sess *model.Session, err error) {
	defer s.track("resume")(&err)

	if err := validate.SessionID(id); err != nil {
		return nil, err
	}
	if newIntent != "" {
		if newIntent, err = validate.String(newIntent, "intent", validate.MaxIntent); err != nil {
			return nil, err
		}
	}

	now := s.timestamp()
	newID := model.NewSessionID(now)

	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	intent := old.Intent
	if newIntent != "" {
		intent = newIntent
	}
	sess = model.NewSession(newID, old.ProjectSlug, intent, now)
	sess.RoadmapRef = old.RoadmapRef
	sess.GitBranch = old.GitBranch
	sess.OpenQuestions = append([]string{}, old.OpenQuestions...)
	if err := s.insert(ctx, sess); err != nil {
		return nil, err
	}

	_, err = s.mutate(ctx, "resume_close", id, func(prev *model.Session) error {
		prev.End(model.StatusCompleted, s.timestamp())
		prev.Outcome = fmt.Sprintf("Resumed as %s", newID)
		return nil
	})
	if errors.Is(err, errors.ErrNotFound) {
		// Resumed from the archive: the original is already Completed and read-only.
		s.logger.WithSession(id).Warn("resumed session is not live; original left as is")
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("resumed as %s but failed to close original: %w", newID, err)
	}

	s.logger.WithSession(newID).Info("session resumed", "from", id)
	s.lifecycleChanged(ctx, sess.ProjectSlug)
	return sess, nil
}
