//go:build unix

package reconcile

import (
	"fmt"
	"os/exec"
	"syscall"
)

// spawnDetachedProcess runs the job in a new session so it survives the
// parent terminal closing. Results go to the job file, not to stdout.
func spawnDetachedProcess(executablePath, dataDir, jobID string) error {
	cmd := exec.Command(executablePath, "--data-dir", dataDir, "reconcile", "--run-job", jobID)
	cmd.Dir = dataDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start background reconcile: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release background process: %w", err)
	}
	return nil
}
