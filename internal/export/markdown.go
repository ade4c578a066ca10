package export

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/worklog/internal/model"
)

// SessionMarkdown renders s as a Markdown report whose top heading has the
// given level (1 is "#").
func SessionMarkdown(s *model.Session, level int) string {
	if level < 1 {
		level = 1
	}
	var b strings.Builder
	writeSession(&b, s, level)
	return b.String()
}

// ProjectMarkdown renders every session of a project into one report.
func ProjectMarkdown(name string, sessions []*model.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n\n", name)
	fmt.Fprintf(&b, "**Sessions:** %d\n\n---\n\n", len(sessions))
	for i, s := range sessions {
		writeSession(&b, s, 2)
		if i < len(sessions)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

func writeSession(b *strings.Builder, s *model.Session, level int) {
	h := strings.Repeat("#", level)
	sub := h + "#"

	fmt.Fprintf(b, "%s Session: %s\n\n", h, s.Intent)
	b.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(b, "| Session ID | `%s` |\n", s.SessionID)
	fmt.Fprintf(b, "| Project | %s |\n", s.ProjectSlug)
	fmt.Fprintf(b, "| Status | %s |\n", s.Status)
	fmt.Fprintf(b, "| Branch | `%s` |\n", s.GitBranch)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(b, "| Started | %s |\n", shortTime(s.StartedAt))
	}
	if s.EndedAt != nil {
		fmt.Fprintf(b, "| Ended | %s |\n", shortTime(*s.EndedAt))
	}
	if d := formatDuration(s.StartedAt, s.EndedAt); d != "" {
		fmt.Fprintf(b, "| Duration | %s |\n", d)
	}
	if s.RoadmapRef != "" {
		fmt.Fprintf(b, "| Roadmap ref | %s |\n", s.RoadmapRef)
	}
	b.WriteString("\n")

	if s.Outcome != "" {
		section(b, sub, "Outcome")
		b.WriteString(s.Outcome + "\n\n")
	}
	if s.ParkedReason != "" {
		section(b, sub, "Parked reason")
		b.WriteString(s.ParkedReason + "\n\n")
	}

	if len(s.Tasks) > 0 {
		sum := model.Summarize(s.Tasks)
		section(b, sub, fmt.Sprintf("Tasks (%d/%d)", sum.Completed, sum.Total))
		for _, t := range s.Tasks {
			switch t.Status {
			case model.TaskCompleted:
				fmt.Fprintf(b, "- [x] %s\n", t.Subject)
			case model.TaskSkipped:
				fmt.Fprintf(b, "- [x] ~~%s~~ (skipped)\n", t.Subject)
			case model.TaskInProgress:
				fmt.Fprintf(b, "- [ ] %s *(in progress)*\n", t.Subject)
			default:
				fmt.Fprintf(b, "- [ ] %s\n", t.Subject)
			}
		}
		b.WriteString("\n")
	}

	bullets(b, sub, "Decisions", s.Decisions, "%s")
	if len(s.Commits) > 0 {
		section(b, sub, "Commits")
		for _, c := range s.Commits {
			fmt.Fprintf(b, "- `%s` %s\n", c.ShortSHA(), c.Message)
		}
		b.WriteString("\n")
	}
	bullets(b, sub, "Files changed", s.FilesChanged, "`%s`")
	if len(s.Events) > 0 {
		section(b, sub, "Events")
		for _, e := range s.Events {
			fmt.Fprintf(b, "- **%s** %s\n", shortTime(e.Timestamp), e.Message)
		}
		b.WriteString("\n")
	}
	bullets(b, sub, "Open questions", s.OpenQuestions, "%s")
	bullets(b, sub, "Next steps", s.NextSteps, "%s")
}

func section(b *strings.Builder, prefix, title string) {
	fmt.Fprintf(b, "%s %s\n\n", prefix, title)
}

func bullets(b *strings.Builder, prefix, title string, items []string, format string) {
	if len(items) == 0 {
		return
	}
	section(b, prefix, title)
	for _, item := range items {
		fmt.Fprintf(b, "- "+format+"\n", item)
	}
	b.WriteString("\n")
}
