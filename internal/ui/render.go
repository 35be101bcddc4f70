package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/josephgoksu/radial/internal/task"
)

const descriptionWidth = 60

// RenderGoalTable writes one row per goal.
func RenderGoalTable(w io.Writer, goals []task.Goal) {
	if len(goals) == 0 {
		fmt.Fprintln(w, StyleSubtle.Render("No goals. Create one with: rd goal create \"<description>\""))
		return
	}
	t := &Table{Headers: []string{"ID", "STATE", "PROGRESS", "DESCRIPTION"}}
	for _, g := range goals {
		t.Rows = append(t.Rows, []string{
			g.ID,
			StateIcon(string(g.State)) + " " + RenderState(string(g.State)),
			Progress(g.Metrics),
			Truncate(g.Description, descriptionWidth),
		})
	}
	fmt.Fprint(w, t.Render())
}

// RenderTaskTable writes one row per task in the given order. Verbose adds comments.
func RenderTaskTable(w io.Writer, tasks []task.Task, verbose bool) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, StyleSubtle.Render("No tasks."))
		return
	}
	t := &Table{Headers: []string{"ID", "STATE", "BLOCKED BY", "DESCRIPTION"}}
	for _, tk := range tasks {
		blockedBy := "-"
		if len(tk.BlockedBy) > 0 {
			blockedBy = strings.Join(tk.BlockedBy, ",")
		}
		t.Rows = append(t.Rows, []string{
			tk.ID,
			StateIcon(string(tk.State)) + " " + RenderState(string(tk.State)),
			blockedBy,
			Truncate(tk.Description, descriptionWidth),
		})
	}
	fmt.Fprint(w, t.Render())

	if !verbose {
		return
	}
	for _, tk := range tasks {
		if len(tk.Comments) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n %s %s\n", StyleHeader.Render(tk.ID), StyleSubtle.Render("comments"))
		renderComments(w, tk.Comments)
	}
}

// RenderGoalHeader writes a goal's one-line summary, used above its task table.
func RenderGoalHeader(w io.Writer, g *task.Goal) {
	fmt.Fprintf(w, "%s %s  %s  %s\n",
		StateIcon(string(g.State)),
		StyleHeader.Render(g.ID),
		StyleTitle.Render(g.Description),
		StyleSubtle.Render(Progress(g.Metrics)))
}

// RenderGoalDetail writes a goal with its metrics and ordered tasks.
func RenderGoalDetail(w io.Writer, g *task.Goal, tasks []task.Task, verbose bool) {
	var b strings.Builder
	field(&b, "State", RenderState(string(g.State)))
	field(&b, "Progress", Progress(g.Metrics))
	if g.Metrics.TasksFailed > 0 {
		field(&b, "Failed", StyleError.Render(fmt.Sprint(g.Metrics.TasksFailed)))
	}
	if g.Metrics.TotalTokens > 0 || g.Metrics.ElapsedMs > 0 {
		field(&b, "Usage", usage(g.Metrics.TotalTokens, g.Metrics.ElapsedMs))
	}
	field(&b, "Created", formatTime(g.CreatedAt))
	field(&b, "Updated", formatTime(g.UpdatedAt))
	if g.CompletedAt != nil {
		field(&b, "Completed", formatTime(*g.CompletedAt))
	}

	title := fmt.Sprintf("Goal %s  %s", g.ID, g.Description)
	fmt.Fprintln(w, NewPanel(title, strings.TrimRight(b.String(), "\n")).WithBorderColor(ColorSecondary).Render())
	RenderTaskTable(w, tasks, verbose)
}

// RenderTaskDetail writes every field of a task.
func RenderTaskDetail(w io.Writer, t *task.Task) {
	var b strings.Builder
	field(&b, "Goal", t.GoalID)
	field(&b, "State", RenderState(string(t.State)))
	field(&b, "Description", WrapText(t.Description, descriptionWidth))
	if t.Contract.IsSet() {
		field(&b, "Receives", orDash(t.Contract.Receives))
		field(&b, "Produces", orDash(t.Contract.Produces))
		field(&b, "Verify", orDash(t.Contract.Verify))
	} else {
		field(&b, "Contract", StyleWarning.Render("not set (required to start)"))
	}
	if len(t.BlockedBy) > 0 {
		field(&b, "Blocked by", strings.Join(t.BlockedBy, ", "))
	}
	if t.Result != nil {
		field(&b, "Result", WrapText(t.Result.Summary, descriptionWidth))
		if len(t.Result.Artifacts) > 0 {
			field(&b, "Artifacts", strings.Join(t.Result.Artifacts, ", "))
		}
	}
	if t.Metrics.Tokens > 0 || t.Metrics.ElapsedMs > 0 {
		field(&b, "Usage", usage(t.Metrics.Tokens, t.Metrics.ElapsedMs))
	}
	if t.Metrics.RetryCount > 0 {
		field(&b, "Retries", fmt.Sprint(t.Metrics.RetryCount))
	}
	field(&b, "Created", formatTime(t.CreatedAt))
	field(&b, "Updated", formatTime(t.UpdatedAt))
	if t.CompletedAt != nil {
		field(&b, "Completed", formatTime(*t.CompletedAt))
	}

	border := ColorSecondary
	switch t.State {
	case task.StateCompleted:
		border = ColorSuccess
	case task.StateFailed:
		border = ColorError
	}
	fmt.Fprintln(w, NewPanel("Task "+t.ID, strings.TrimRight(b.String(), "\n")).WithBorderColor(border).Render())

	if len(t.Comments) > 0 {
		fmt.Fprintln(w, StyleSectionTitle.Render("Comments"))
		renderComments(w, t.Comments)
	}
}

// Progress renders "completed/total done" for a goal.
func Progress(m task.GoalMetrics) string {
	return fmt.Sprintf("%d/%d done", m.TasksCompleted, m.TaskCount)
}

func renderComments(w io.Writer, comments []task.Comment) {
	for _, c := range comments {
		fmt.Fprintf(w, "   %s  %s\n", StyleSubtle.Render(formatTime(c.CreatedAt)), c.Text)
	}
}

func field(b *strings.Builder, label, value string) {
	indent := strings.Repeat(" ", 12)
	value = strings.ReplaceAll(value, "\n", "\n"+indent)
	b.WriteString(StyleLabel.Render(label) + value + "\n")
}

func usage(tokens, elapsedMs int64) string {
	return fmt.Sprintf("%d tokens, %s", tokens, (time.Duration(elapsedMs) * time.Millisecond).String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
