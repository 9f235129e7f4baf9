package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ToolOutput represents a box for displaying raw output captured from an
// external tool. Used in verbose mode to show what wine, mitmdump or
// VBoxManage actually said.
type ToolOutput struct {
	Title    string   // e.g., "Wine Output"
	Content  string   // The raw tool output
	Lines    []string // Parsed output lines (for filtering)
	Width    int      // Terminal width
	MaxLines int      // Maximum lines to display (0 = unlimited)
}

// NewToolOutput creates a new tool output box
func NewToolOutput(content string) *ToolOutput {
	return &ToolOutput{
		Title:    "Tool Output",
		Content:  content,
		Lines:    strings.Split(content, "\n"),
		Width:    GetTerminalWidth(),
		MaxLines: 0,
	}
}

// SetWidth sets the terminal width for responsive rendering
func (t *ToolOutput) SetWidth(width int) *ToolOutput {
	t.Width = width
	return t
}

// SetTitle sets a custom title for the box
func (t *ToolOutput) SetTitle(title string) *ToolOutput {
	t.Title = title
	return t
}

// SetMaxLines limits the number of lines displayed
func (t *ToolOutput) SetMaxLines(max int) *ToolOutput {
	t.MaxLines = max
	return t
}

// FilterLines filters the output to only show lines matching the given
// patterns. Useful for pulling the interesting lines out of a noisy
// updater transcript.
func (t *ToolOutput) FilterLines(patterns ...string) *ToolOutput {
	var filtered []string
	for _, line := range t.Lines {
		for _, pattern := range patterns {
			if strings.Contains(line, pattern) {
				filtered = append(filtered, line)
				break
			}
		}
	}
	t.Lines = filtered
	t.Content = strings.Join(filtered, "\n")
	return t
}

// FilterPrefix filters to only lines starting with given prefixes
func (t *ToolOutput) FilterPrefix(prefixes ...string) *ToolOutput {
	var filtered []string
	for _, line := range t.Lines {
		for _, prefix := range prefixes {
			if strings.HasPrefix(strings.TrimSpace(line), prefix) {
				filtered = append(filtered, line)
				break
			}
		}
	}
	t.Lines = filtered
	t.Content = strings.Join(filtered, "\n")
	return t
}

// Render returns the styled tool output box as a string
func (t *ToolOutput) Render() string {
	width := t.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	// Apply max lines limit
	lines := t.Lines
	if t.MaxLines > 0 && len(lines) > t.MaxLines {
		lines = lines[:t.MaxLines]
		lines = append(lines, "... (output truncated)")
	}

	// Title styled
	titleStyled := ToolOutputTitleStyle.Render(t.Title)

	// Content styled (preserve monospace formatting)
	contentStyled := ToolOutputContentStyle.Render(strings.Join(lines, "\n"))

	// Combine title and content
	inner := lipgloss.JoinVertical(lipgloss.Left, titleStyled, "", contentStyled)

	// Box with muted border
	boxWidth := width - 4
	if boxWidth < 40 {
		boxWidth = 40
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(boxWidth).
		Padding(0, 1).
		MarginLeft(2).
		Render(inner)
}

// String implements fmt.Stringer
func (t *ToolOutput) String() string {
	return t.Render()
}

// RenderToolOutput renders a tool output box with the given content
func RenderToolOutput(content string) string {
	return NewToolOutput(content).Render()
}
