package routing

import (
	"fmt"
	"strings"

	"github.com/ailab-unisabana/mail-organizer/config"
	"github.com/ailab-unisabana/mail-organizer/triage"
)

// TaskSpec describes a follow-up task to create. ListName empty means the
// account's default list.
type TaskSpec struct {
	Title    string
	Content  string
	ListName string
	DueDate  string
}

// Decision is what should happen to a message after analysis. FolderPath
// empty means the message stays where it is; Task nil means no task.
type Decision struct {
	FolderPath string
	Task       *TaskSpec
}

// Route derives a filing decision from an analysis result and the configured
// category rules. Pure function: same inputs always produce the same decision.
func Route(result triage.Result, rules *config.Rules, subject string) Decision {
	decision := Decision{
		FolderPath: rules.FolderFor(result.Category),
	}

	if !result.IsActionable {
		return decision
	}

	title := result.TaskTitle
	if title == "" {
		title = "Follow up: " + subject
	}

	// The task goes to a list named after the leaf folder segment, so a
	// message filed under Inbox/DIA yields a task in list "DIA".
	listName := ""
	if decision.FolderPath != "" {
		segments := strings.Split(decision.FolderPath, "/")
		listName = segments[len(segments)-1]
	}

	decision.Task = &TaskSpec{
		Title:    title,
		Content:  fmt.Sprintf("Source Email: %s\nSummary: %s", subject, result.Summary),
		ListName: listName,
		DueDate:  result.DueDate,
	}
	return decision
}
