package tui

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/fwprobe/internal/traffic"
)

// DefaultPollInterval is how often the watcher re-reads the capture logs
const DefaultPollInterval = 2 * time.Second

// Messages for async operations
type pollTickMsg time.Time

type flowsLoadedMsg struct {
	flows   []*traffic.Flow
	summary *traffic.Summary
	err     error
}

// watchKeyMap defines key bindings for the flow list screen
type watchKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Firmware key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Firmware, k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Firmware, k.Refresh, k.Quit},
	}
}

// detailKeyMap defines key bindings for the flow detail screen
type detailKeyMap struct {
	Up   key.Binding
	Down key.Binding
	Back key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k detailKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Back, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k detailKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Back, k.Quit},
	}
}

// waitingKeyMap defines key bindings while waiting for a capture to appear
type waitingKeyMap struct {
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k waitingKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k waitingKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit},
	}
}

// flowItem wraps a Flow for use with bubbles/list
type flowItem struct {
	flow *traffic.Flow
}

// Implement list.Item interface
func (f flowItem) FilterValue() string {
	// Filter by method, URL, or host
	if f.flow.Request == nil {
		return f.flow.Host()
	}
	return f.flow.Request.Method + " " + f.flow.Request.URL
}

// Title returns the flow summary line for list display
func (f flowItem) Title() string {
	if f.flow.Request == nil {
		return fmt.Sprintf("(response only, flow %d)", f.flow.ID)
	}
	return f.flow.Request.Method + " " + f.flow.Request.URL
}

// Description returns flow details for list display
func (f flowItem) Description() string {
	if f.flow.Response == nil {
		return "awaiting response"
	}
	return fmt.Sprintf("%d • %s • %s",
		f.flow.Response.StatusCode,
		f.flow.Response.ContentType(),
		formatBytes(f.flow.Response.ContentLength))
}

// flowDelegate is a custom list delegate for rendering flow cards
type flowDelegate struct {
	width int
}

func (d flowDelegate) Height() int { return 6 } // Card height including borders

func (d flowDelegate) Spacing() int { return 1 } // Spacing between cards

func (d flowDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d flowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	fi, ok := item.(flowItem)
	if !ok {
		return
	}

	flow := fi.flow
	selected := index == m.Index()

	// Build the request line
	requestLine := fmt.Sprintf("(response only, flow %d)", flow.ID)
	if flow.Request != nil {
		requestLine = flow.Request.Method + " " + flow.Request.URL
	}

	// Build content lines
	var content strings.Builder

	// Add selection indicator to request line
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + requestLine))
	} else {
		content.WriteString("  " + requestLine)
	}
	content.WriteString("\n\n")

	// Response status
	if flow.Response != nil {
		content.WriteString(fmt.Sprintf("  Status:   %d (%s, %s)\n",
			flow.Response.StatusCode,
			flow.Response.ContentType(),
			formatBytes(flow.Response.ContentLength)))
	} else {
		content.WriteString("  Status:   " + PendingFlowStyle.Render("awaiting response") + "\n")
	}

	// Capture time
	if flow.Request != nil {
		content.WriteString(fmt.Sprintf("  Captured: %s", flow.Request.Time().Format("15:04:05")))
	} else if flow.Response != nil {
		content.WriteString(fmt.Sprintf("  Captured: %s", flow.Response.Time().Format("15:04:05")))
	}

	// Firmware candidate badge
	if traffic.FirmwareCandidate(flow) {
		content.WriteString("\n  " + FirmwareBadgeStyle.Render("⬇ firmware candidate"))
	}

	// Create responsive card style
	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2)

	// Calculate card width (leave room for margins and borders)
	cardWidth := d.width - 6 // 2 for margin-left, 4 for border + padding
	if cardWidth < MinTerminalWidth-6 {
		cardWidth = MinTerminalWidth - 6
	}
	if cardWidth > MaxContentWidth-6 {
		cardWidth = MaxContentWidth - 6
	}

	cardStyle = cardStyle.Width(cardWidth)

	// Highlight selected card
	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// WatchModel represents the live traffic watcher screen state
type WatchModel struct {
	// Capture state
	CaptureDir   string
	FirmwareOnly bool
	PollInterval time.Duration

	// Loaded data
	Flows   []*traffic.Flow
	Summary *traffic.Summary
	Waiting bool
	Err     error

	// Detail view state
	ShowDetail bool
	Detail     viewport.Model

	// UI state
	FlowList    list.Model
	Spinner     spinner.Model
	Help        help.Model
	Keys        watchKeyMap
	DetailKeys  detailKeyMap
	WaitingKeys waitingKeyMap
	LastRefresh time.Time
	Width       int
	Height      int
}

// NewWatchModel creates a new traffic watcher model for the given capture directory
func NewWatchModel(captureDir string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	// Initialize flow list with custom delegate
	delegate := flowDelegate{width: MinTerminalWidth}
	flowList := list.New([]list.Item{}, delegate, 0, 0)
	flowList.Title = "Captured Flows"
	flowList.SetShowStatusBar(false)
	flowList.SetFilteringEnabled(true)
	flowList.Styles.Title = TitleStyle

	// Initialize detail viewport
	detail := viewport.New(MinTerminalWidth, 20)

	// Initialize help
	h := help.New()

	// Initialize key bindings for the flow list
	keys := watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "inspect"),
		),
		Firmware: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "firmware only"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
	}

	// Initialize key bindings for the detail view
	detailKeys := detailKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}

	// Initialize key bindings for the waiting screen
	waitingKeys := waitingKeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
	}

	return WatchModel{
		CaptureDir:   captureDir,
		PollInterval: DefaultPollInterval,
		Waiting:      true,
		FlowList:     flowList,
		Detail:       detail,
		Spinner:      s,
		Help:         h,
		Keys:         keys,
		DetailKeys:   detailKeys,
		WaitingKeys:  waitingKeys,
	}
}

// Init starts the initial load and the poll loop
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		loadFlows(m.CaptureDir),
		pollTick(m.PollInterval),
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ShowDetail {
			return m.updateDetailMode(msg)
		}
		return m.updateListMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		// Update list size
		m.FlowList.SetWidth(msg.Width - 4)
		m.FlowList.SetHeight(msg.Height - 10) // Leave room for header/footer
		// Update detail viewport size
		m.Detail.Width = msg.Width - 8
		m.Detail.Height = msg.Height - 12

	case pollTickMsg:
		// Reload flows and schedule the next poll
		return m, tea.Batch(
			loadFlows(m.CaptureDir),
			pollTick(m.PollInterval),
		)

	case flowsLoadedMsg:
		return m.applyLoadedFlows(msg), nil

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	// Update list when browsing flows
	if !m.ShowDetail && !m.Waiting {
		m.FlowList, cmd = m.FlowList.Update(msg)
	}

	return m, cmd
}

// updateListMode handles keyboard input while browsing the flow list
func (m WatchModel) updateListMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "esc":
		// Esc quits unless a list filter is active (let the list clear it)
		if m.FlowList.FilterState() == list.Unfiltered {
			return m, tea.Quit
		}

	case "enter":
		// Open the detail view for the selected flow
		if item, ok := m.FlowList.SelectedItem().(flowItem); ok {
			m.ShowDetail = true
			m.Detail.SetContent(renderFlowDetail(item.flow))
			m.Detail.GotoTop()
			return m, nil
		}

	case "f":
		// Toggle firmware-candidate filtering
		m.FirmwareOnly = !m.FirmwareOnly
		m.FlowList.SetItems(flowsToItems(m.Flows, m.FirmwareOnly))
		m.FlowList.Select(0)
		return m, nil

	case "r":
		// Force an immediate reload
		return m, loadFlows(m.CaptureDir)
	}

	// Let the list handle navigation and filtering
	var cmd tea.Cmd
	m.FlowList, cmd = m.FlowList.Update(msg)
	return m, cmd
}

// updateDetailMode handles keyboard input in the flow detail view
func (m WatchModel) updateDetailMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "esc":
		m.ShowDetail = false
		return m, nil
	}

	// Let the viewport handle scrolling
	var cmd tea.Cmd
	m.Detail, cmd = m.Detail.Update(msg)
	return m, cmd
}

// applyLoadedFlows merges a reload result into the model, preserving selection
func (m WatchModel) applyLoadedFlows(msg flowsLoadedMsg) WatchModel {
	if msg.err != nil {
		var noCapture *traffic.NoCaptureError
		if errors.As(msg.err, &noCapture) {
			// No capture yet - keep waiting and polling
			m.Waiting = true
			m.Err = nil
			return m
		}
		m.Err = msg.err
		return m
	}

	m.Waiting = false
	m.Err = nil
	m.Flows = msg.flows
	m.Summary = msg.summary
	m.LastRefresh = time.Now()

	// Rebuild list items, keeping the cursor where it was
	selected := m.FlowList.Index()
	m.FlowList.SetItems(flowsToItems(m.Flows, m.FirmwareOnly))
	if selected < len(m.FlowList.Items()) {
		m.FlowList.Select(selected)
	}

	return m
}

// View renders the watcher screen
func (m WatchModel) View() string {
	// Use default width if not set
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content string
	var helpText string

	switch {
	case m.ShowDetail:
		content = m.renderDetail()
		helpText = m.Help.View(m.DetailKeys)
	case m.Waiting:
		content = m.renderWaiting(width)
		helpText = m.Help.View(m.WaitingKeys)
	default:
		content = m.renderFlowList()
		helpText = m.Help.View(m.Keys)
	}

	// Wrap with application container (full-screen layout with height)
	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

// renderWaiting renders a centered "waiting for capture" display
func (m WatchModel) renderWaiting(width int) string {
	title := fmt.Sprintf("%s WAITING FOR CAPTURE", m.Spinner.View())
	subtitle := fmt.Sprintf("No capture logs in %s yet", m.CaptureDir)
	hint := "Run 'fwprobe e2e' or 'fwprobe proxy start' to record updater traffic"

	content := lipgloss.JoinVertical(lipgloss.Center,
		"", // Top spacing
		TitleStyle.Render(title),
		"",
		SubtitleStyle.Render(subtitle),
		"",
		SubtitleStyle.Render(hint),
		"", // Bottom spacing
	)

	// Height = 0 means "no vertical constraint" - let content determine height
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderFlowList renders the flow list with a status line, or an error state
func (m WatchModel) renderFlowList() string {
	var b strings.Builder

	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(RenderError(fmt.Sprintf("Capture read failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Check the capture directory still exists\n")
		b.WriteString("    • Verify the capture logs are valid JSON lines\n")
		b.WriteString("    • Press 'r' to retry\n")
		return b.String()
	}

	// Status line with capture totals
	b.WriteString("  " + StatusBarStyle.Render(m.statusLine()))
	b.WriteString("\n")

	if len(m.FlowList.Items()) == 0 {
		if m.FirmwareOnly {
			b.WriteString("\n  ")
			b.WriteString(SubtitleStyle.Render("No firmware candidates yet (press 'f' to show all flows)"))
			b.WriteString("\n")
		} else {
			b.WriteString("\n  ")
			b.WriteString(SubtitleStyle.Render("Capture is running but no flows recorded yet"))
			b.WriteString("\n")
		}
		return b.String()
	}

	b.WriteString(m.FlowList.View())
	return b.String()
}

// statusLine builds the summary line above the flow list
func (m WatchModel) statusLine() string {
	if m.Summary == nil {
		return "no capture data"
	}

	line := fmt.Sprintf("%d requests • %d responses • %d firmware URLs • refreshed %s",
		m.Summary.RequestCount,
		m.Summary.ResponseCount,
		len(m.Summary.FirmwareURLs),
		m.LastRefresh.Format("15:04:05"))

	if m.FirmwareOnly {
		line += " • " + FirmwareBadgeStyle.Render("firmware filter ON")
	}

	return line
}

// renderDetail renders the flow detail viewport
func (m WatchModel) renderDetail() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Flow Detail"))
	b.WriteString("\n")
	b.WriteString(m.Detail.View())
	b.WriteString("\n")

	return b.String()
}

// renderFlowDetail builds the full detail text for a single flow
func renderFlowDetail(flow *traffic.Flow) string {
	var b strings.Builder

	sectionStyle := lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)

	// Request section
	b.WriteString(sectionStyle.Render("Request"))
	b.WriteString("\n")
	if flow.Request == nil {
		b.WriteString("  (not captured)\n")
	} else {
		b.WriteString(fmt.Sprintf("  Method:   %s\n", flow.Request.Method))
		b.WriteString(fmt.Sprintf("  URL:      %s\n", flow.Request.URL))
		b.WriteString(fmt.Sprintf("  Host:     %s\n", flow.Request.Host()))
		b.WriteString(fmt.Sprintf("  Captured: %s\n", flow.Request.Time().Format(time.RFC3339)))
		b.WriteString(renderHeaders(flow.Request.Headers))
	}
	b.WriteString("\n")

	// Response section
	b.WriteString(sectionStyle.Render("Response"))
	b.WriteString("\n")
	if flow.Response == nil {
		b.WriteString("  (no response captured - the transfer may have been interrupted)\n")
	} else {
		b.WriteString(fmt.Sprintf("  Status:   %d\n", flow.Response.StatusCode))
		b.WriteString(fmt.Sprintf("  Type:     %s\n", flow.Response.ContentType()))
		b.WriteString(fmt.Sprintf("  Length:   %s\n", formatBytes(flow.Response.ContentLength)))
		b.WriteString(fmt.Sprintf("  Captured: %s\n", flow.Response.Time().Format(time.RFC3339)))
		b.WriteString(renderHeaders(flow.Response.Headers))
	}
	b.WriteString("\n")

	// Firmware verdict
	if traffic.FirmwareCandidate(flow) {
		b.WriteString(FirmwareBadgeStyle.Render("⬇ This flow looks like a firmware download"))
		b.WriteString("\n")
	}

	return b.String()
}

// renderHeaders renders a header map in stable (sorted) order
func renderHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("  Headers:\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("    %s: %s\n", k, headers[k]))
	}
	return b.String()
}

// flowsToItems converts flows to list items, optionally keeping only firmware candidates
func flowsToItems(flows []*traffic.Flow, firmwareOnly bool) []list.Item {
	items := make([]list.Item, 0, len(flows))
	for _, flow := range flows {
		if firmwareOnly && !traffic.FirmwareCandidate(flow) {
			continue
		}
		items = append(items, flowItem{flow: flow})
	}
	return items
}

// formatBytes formats a byte count for display
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f kB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// loadFlows is a command that reads the capture logs from disk
func loadFlows(dir string) tea.Cmd {
	return func() tea.Msg {
		flows, err := traffic.LoadFlows(dir)
		if err != nil {
			return flowsLoadedMsg{err: err}
		}
		return flowsLoadedMsg{flows: flows, summary: traffic.SummarizeFlows(flows)}
	}
}

// pollTick schedules the next capture reload
func pollTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

// Run starts the traffic watcher as a full-screen program.
// It blocks until the user quits.
func Run(captureDir string) error {
	model := NewWatchModel(captureDir)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
