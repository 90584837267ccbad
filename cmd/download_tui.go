package cmd

import (
	"errors"
	"fmt"

	"dlsite-manager/catalog"
	"dlsite-manager/db"
	"dlsite-manager/download"
	"dlsite-manager/query"
	"dlsite-manager/ui"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// downloadItem tracks the UI state of one product download.
type downloadItem struct {
	accountID int64
	productID string
	title     string

	fraction      float64
	decompressing bool
	done          bool
	failed        bool
	message       string
}

// DownloadModel controls the UI for the download command
type DownloadModel struct {
	app     *app
	orch    *download.Orchestrator
	events  chan download.Event
	spinner spinner.Model
	bar     progress.Model

	items []*downloadItem
	index map[string]*downloadItem

	remaining int
	done      bool
}

func initialDownloadModel(a *app, orch *download.Orchestrator, events chan download.Event, targets []db.Product) DownloadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := DownloadModel{
		app:     a,
		orch:    orch,
		events:  events,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		index:   make(map[string]*downloadItem),
	}

	for _, p := range targets {
		title := query.Resolve(p.Title, a.session.Languages())
		if title == "" {
			title = p.ProductID
		}
		item := &downloadItem{accountID: p.AccountID, productID: p.ProductID, title: title}
		m.items = append(m.items, item)
		m.index[p.Key()] = item
	}
	m.remaining = len(m.items)
	return m
}

func (m DownloadModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startDownloads(),
		m.waitForActivity(),
	)
}

func (m DownloadModel) startDownloads() tea.Cmd {
	return func() tea.Msg {
		var msg startFailuresMsg
		for _, item := range m.items {
			if err := m.orch.Start(item.accountID, item.productID); err != nil {
				msg.failures = append(msg.failures, startFailure{item: item, err: err})
			}
		}
		if len(msg.failures) == 0 {
			return nil
		}
		return msg
	}
}

type startFailure struct {
	item *downloadItem
	err  error
}

type startFailuresMsg struct {
	failures []startFailure
}

func (m DownloadModel) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m DownloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if !m.done {
				m.cancelActive()
			}
			return m, tea.Quit
		}
		if m.done {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startFailuresMsg:
		for _, failure := range msg.failures {
			failure.item.done = true
			failure.item.failed = true
			failure.item.message = startFailureText(failure.err)
			m.remaining--
		}
		if m.remaining == 0 {
			m.done = true
			return m, tea.Quit
		}
		return m, m.waitForActivity()

	case download.Event:
		item, ok := m.index[db.ProductKey(msg.AccountID, msg.ProductID)]
		if !ok {
			return m, m.waitForActivity()
		}

		switch msg.Type {
		case download.EventProgress:
			item.fraction = msg.Progress
			item.decompressing = msg.Decompressing

		case download.EventComplete:
			item.done = true
			item.fraction = 1
			if msg.Download != nil {
				item.message = msg.Download.Path
			}
			m.remaining--

		case download.EventFailed:
			item.done = true
			item.failed = true
			item.message = fmt.Sprintf("%s: %s", msg.FailureKind, msg.FailureMessage)
			m.remaining--
		}

		if m.remaining == 0 {
			m.done = true
			return m, tea.Quit
		}
		return m, m.waitForActivity()
	}

	return m, nil
}

// cancelActive stops every still-running task before quitting, so partial
// files are cleaned up and the catalog is left in a stable state.
func (m DownloadModel) cancelActive() {
	for _, item := range m.items {
		if item.done {
			continue
		}
		if err := m.orch.Cancel(item.accountID, item.productID); err == nil {
			item.done = true
			item.message = "cancelled"
		}
	}
}

func (m DownloadModel) View() string {
	var symbol string
	if m.done {
		symbol = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
	} else {
		symbol = m.spinner.View()
	}

	s := fmt.Sprintf("\n %s Downloading %d products (q to cancel)\n\n", symbol, len(m.items))

	for _, item := range m.items {
		switch {
		case item.failed:
			s += fmt.Sprintf("  %s %s  %s\n",
				ui.ColorizeState(query.DisplayFailed), item.title, ui.Dim(item.message))
		case item.done:
			s += fmt.Sprintf("  %s %s  %s\n",
				ui.ColorizeState(query.DisplayDownloaded), item.title, ui.Dim(item.message))
		case item.decompressing:
			s += fmt.Sprintf("  %s %s %s\n",
				item.title, ui.ColorizeState(query.DisplayDecompressing), m.bar.ViewAs(item.fraction))
		default:
			s += fmt.Sprintf("  %s %s\n", item.title, m.bar.ViewAs(item.fraction))
		}
	}

	return s
}

func startFailureText(err error) string {
	switch {
	case errors.Is(err, download.ErrAlreadyInProgress):
		return "already downloading"
	case errors.Is(err, catalog.ErrConflictingState):
		return "already downloaded"
	default:
		return err.Error()
	}
}
