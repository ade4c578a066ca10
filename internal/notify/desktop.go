package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/Iron-Ham/worklog/internal/logging"
)

const osascriptTimeout = 5 * time.Second

// DesktopSender shows notifications through osascript on macOS. Elsewhere
// it only logs them and reports them as undelivered.
type DesktopSender struct {
	logger *logging.Logger
	goos   string
}

// NewDesktopSender creates a sender for the current platform.
func NewDesktopSender(logger *logging.Logger) *DesktopSender {
	return &DesktopSender{logger: logger, goos: runtime.GOOS}
}

// Send implements Sender.
func (d *DesktopSender) Send(ctx context.Context, title, message string) (bool, error) {
	if d.goos != "darwin" {
		d.logger.Info("notification", "title", title, "message", message)
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, osascriptTimeout)
	defer cancel()

	script := `display notification "` + escapeAppleScript(message) + `" with title "` + escapeAppleScript(title) + `"`
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return false, err
	}
	return true, nil
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
