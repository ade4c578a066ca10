//go:build !unix

package reconcile

import "github.com/Iron-Ham/worklog/internal/errors"

func spawnDetachedProcess(string, string, string) error {
	return errors.NewValidationError("background reconcile is only supported on unix systems").WithField("background")
}
