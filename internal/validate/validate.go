// Package validate holds the input rules shared by the store, the CLI and
// the HTTP layer. Every failure is an *errors.ValidationError and is raised
// before any file is touched.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
)

// String length limits, counted in characters after trimming.
const (
	MaxIntent      = 500
	MaxOutcome     = 1000
	MaxMessage     = 2000
	MaxReason      = 500
	MaxDecision    = 500
	MaxTaskSubject = 300
	MaxActivity    = 300
	MaxRoadmapRef  = 100
	MaxProjectName = 100
	MaxGitBranch   = 200
	MaxCommits     = 500
	MaxArchiveDays = 3650
)

var (
	sessionIDRe   = regexp.MustCompile(`^sess_\d{8}T\d{4}_[0-9a-f]{4}$`)
	taskIDRe      = regexp.MustCompile(`^t[0-9a-f]{8}$`)
	projectSlugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*$`)
	shaRe         = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)
	gitBranchRe   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/\-]*$`)
)

// String trims value and rejects it when empty or longer than max characters.
func String(value, field string, max int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errors.NewValidationError(fmt.Sprintf("%s cannot be empty", field)).WithField(field)
	}
	if n := utf8.RuneCountInString(trimmed); n > max {
		return "", errors.NewValidationError(
			fmt.Sprintf("%s too long (%d chars, max %d)", field, n, max)).WithField(field)
	}
	return trimmed, nil
}

// OptionalString is String for values that may be absent (nil).
func OptionalString(value *string, field string, max int) (*string, error) {
	if value == nil {
		return nil, nil
	}
	v, err := String(*value, field, max)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Strings applies String to every element.
func Strings(values []string, field string, max int) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, err := String(v, field, max)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SessionID rejects anything that is not sess_YYYYMMDDTHHMM_xxxx. This is
// the guard against path traversal through record file names.
func SessionID(id string) error {
	if !sessionIDRe.MatchString(id) {
		return errors.NewValidationError(fmt.Sprintf("invalid session ID format: %s", id)).WithField("session_id")
	}
	return nil
}

// IsSessionID is SessionID as a predicate.
func IsSessionID(id string) bool {
	return sessionIDRe.MatchString(id)
}

// TaskID rejects malformed task IDs.
func TaskID(id string) error {
	if !taskIDRe.MatchString(id) {
		return errors.NewValidationError(fmt.Sprintf("invalid task ID format: %s", id)).WithField("task_id")
	}
	return nil
}

// ProjectSlug requires lowercase alphanumerics and hyphens, starting with an alphanumeric.
func ProjectSlug(slug string) error {
	if slug == "" {
		return errors.NewValidationError("project slug cannot be empty").WithField("project_slug")
	}
	if !projectSlugRe.MatchString(slug) {
		return errors.NewValidationError(fmt.Sprintf(
			"invalid project slug: '%s'. Must be lowercase alphanumeric with hyphens, starting with alphanumeric", slug,
		)).WithField("project_slug")
	}
	return nil
}

// SHA requires 4 to 40 hex characters.
func SHA(sha string) error {
	if !shaRe.MatchString(sha) {
		return errors.NewValidationError(fmt.Sprintf(
			"invalid commit SHA: '%s'. Must be 4-40 hex characters", sha)).WithField("sha")
	}
	return nil
}

// GitBranch validates a branch name.
func GitBranch(branch string) error {
	if branch == "" {
		return errors.NewValidationError("git branch cannot be empty").WithField("git_branch")
	}
	if utf8.RuneCountInString(branch) > MaxGitBranch {
		return errors.NewValidationError(fmt.Sprintf(
			"git branch too long (max %d)", MaxGitBranch)).WithField("git_branch")
	}
	if !gitBranchRe.MatchString(branch) {
		return errors.NewValidationError(fmt.Sprintf(
			"invalid git branch name: '%s'. Must start with alphanumeric, contain only [a-zA-Z0-9._/-]", branch,
		)).WithField("git_branch")
	}
	return nil
}

// PositiveInt requires 1 <= value, and value <= max when max > 0.
func PositiveInt(value int, field string, max int) error {
	if value < 1 {
		return errors.NewValidationError(fmt.Sprintf("%s must be positive (got %d)", field, value)).WithField(field)
	}
	if max > 0 && value > max {
		return errors.NewValidationError(fmt.Sprintf("%s too large (%d, max %d)", field, value, max)).WithField(field)
	}
	return nil
}

// Port requires a TCP port in 1..65535.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return errors.NewValidationError(fmt.Sprintf("port must be 1-65535 (got %d)", port)).WithField("port")
	}
	return nil
}

// TaskStatus parses and validates a task status.
func TaskStatus(status string) (model.TaskStatus, error) {
	s := model.TaskStatus(status)
	if !s.Valid() {
		valid := make([]string, 0, 4)
		for _, v := range model.TaskStatuses() {
			valid = append(valid, string(v))
		}
		return "", errors.NewValidationError(fmt.Sprintf(
			"invalid status '%s'. Must be one of: %s", status, strings.Join(valid, ", "))).WithField("status")
	}
	return s, nil
}

// SessionStatus parses and validates a session status filter.
func SessionStatus(status string) (model.SessionStatus, error) {
	s := model.SessionStatus(status)
	if !s.Valid() {
		return "", errors.NewValidationError(fmt.Sprintf(
			"invalid session status '%s'. Must be one of: active, completed, parked", status)).WithField("status")
	}
	return s, nil
}

// Commits validates a wholesale commit list: at most MaxCommits entries,
// each with a valid SHA and a message.
func Commits(commits []model.Commit) error {
	if len(commits) > MaxCommits {
		return errors.NewValidationError(fmt.Sprintf(
			"too many commits (%d, max %d)", len(commits), MaxCommits)).WithField("commits")
	}
	for i, c := range commits {
		if err := SHA(c.SHA); err != nil {
			return errors.NewValidationError(fmt.Sprintf("commit entry %d", i)).WithField("commits").WithCause(err)
		}
		if c.Message == "" {
			return errors.NewValidationError(fmt.Sprintf(
				"commit entry %d must have 'sha' and 'message' fields", i)).WithField("commits")
		}
	}
	return nil
}

// Slugify derives a project slug from a filesystem path's basename:
// lowercased, with spaces and underscores turned into hyphens.
func Slugify(path string) string {
	base := filepath.Base(filepath.Clean(path))
	base = strings.ToLower(base)
	return strings.NewReplacer(" ", "-", "_", "-").Replace(base)
}
