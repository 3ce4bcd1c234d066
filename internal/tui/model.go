// Package tui is a terminal chat client for a ragchat server.
package tui

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kailas-cloud/ragchat/internal/client"
)

const (
	minTopK     = 1
	maxTopK     = 6
	defaultTopK = 3

	systemPrompt = "You are a helpful assistant."
	temperature  = 0.2
	maxTokens    = 512
)

// API is the subset of the ragchat client the UI needs.
type API interface {
	ChatStream(ctx context.Context, req client.ChatRequest) iter.Seq2[string, error]
	Ingest(ctx context.Context) (client.IngestResult, error)
	Health(ctx context.Context) (client.Health, error)
}

type tokenMsg string

type streamEndMsg struct{ err error }

type ingestMsg struct {
	res client.IngestResult
	err error
}

type healthMsg struct {
	h   client.Health
	err error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	api      API
	server   string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	turns     []turn
	useRAG    bool
	topK      int
	streaming bool
	events    chan tea.Msg
	cancel    context.CancelFunc
	status    string
	ready     bool
}

// New creates the chat model. server is only displayed.
func New(api API, server string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something, or /ingest, /health"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = spinnerStyle

	return Model{
		api:      api,
		server:   server,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		useRAG:   true,
		topK:     defaultTopK,
		status:   "Ready.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-fh-4)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tokenMsg:
		if n := len(m.turns); n > 0 {
			m.turns[n-1].content += string(msg)
		}
		m.refresh()
		return m, waitForEvent(m.events)

	case streamEndMsg:
		m.finishStream(msg.err)
		return m, nil

	case ingestMsg:
		if msg.err != nil {
			m.status = "Ingest failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Ingested %d chunks (run %s).", msg.res.IngestedChunks, msg.res.RunID)
		}
		return m, nil

	case healthMsg:
		if msg.err != nil {
			m.status = "Health check failed: " + msg.err.Error()
		} else {
			m.status = formatHealth(msg.h)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+d":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case "esc":
		if m.streaming && m.cancel != nil {
			m.cancel()
			m.status = "Cancelling..."
		}
		return m, nil
	case "ctrl+r":
		m.useRAG = !m.useRAG
		m.status = "RAG " + onOff(m.useRAG) + "."
		return m, nil
	case "ctrl+up", "ctrl+k":
		m.topK = min(maxTopK, m.topK+1)
		m.status = fmt.Sprintf("top_k = %d", m.topK)
		return m, nil
	case "ctrl+down", "ctrl+j":
		m.topK = max(minTopK, m.topK-1)
		m.status = fmt.Sprintf("top_k = %d", m.topK)
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.streaming {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/ingest":
		m.status = "Ingesting knowledge folder..."
		return m, ingestCmd(m.api)
	case "/health":
		return m, healthCmd(m.api)
	}

	req := m.chatRequest(text)
	m.turns = append(m.turns, turn{role: "user", content: text}, turn{role: "assistant"})

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.events = make(chan tea.Msg, 64)
	m.streaming = true
	m.status = "Thinking..."
	m.refresh()

	return m, tea.Batch(m.spinner.Tick, streamCmd(ctx, m.api, req, m.events), waitForEvent(m.events))
}

// chatRequest builds the request for message from the current settings and transcript.
func (m Model) chatRequest(message string) client.ChatRequest {
	return client.ChatRequest{
		Message:      message,
		SystemPrompt: systemPrompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		UseRAG:       m.useRAG,
		TopK:         m.topK,
		History:      buildHistory(m.turns),
	}
}

func (m *Model) finishStream(err error) {
	m.streaming = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.events = nil

	n := len(m.turns)
	switch {
	case err == nil:
		m.status = "Ready."
	case errorsIsCanceled(err):
		m.status = "Cancelled."
		if n > 0 && m.turns[n-1].content == "" {
			m.turns[n-1].failed = true
		}
	default:
		m.status = "Streaming error: " + err.Error()
		if n > 0 {
			m.turns[n-1].failed = true
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.turns, m.viewport.Width))
	m.viewport.GotoBottom()
}

// View renders the transcript, the input line and the status bar.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("ragchat") + " " + mutedStyle.Render(m.server)
	settings := mutedStyle.Render(fmt.Sprintf("RAG %s · top_k %d · ctrl+r toggle · ctrl+↑/↓ top_k · esc cancel",
		onOff(m.useRAG), m.topK))
	status := statusStyle.Render(m.status)
	if m.streaming {
		status = m.spinner.View() + " " + status
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header+"  "+settings,
		transcriptStyle.Render(m.viewport.View()),
		m.input.View(),
		status,
	)
}

func streamCmd(ctx context.Context, api API, req client.ChatRequest, events chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		defer close(events)
		for tok, err := range api.ChatStream(ctx, req) {
			if err != nil {
				events <- streamEndMsg{err: err}
				return nil
			}
			events <- tokenMsg(tok)
		}
		events <- streamEndMsg{}
		return nil
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func ingestCmd(api API) tea.Cmd {
	return func() tea.Msg {
		res, err := api.Ingest(context.Background())
		return ingestMsg{res: res, err: err}
	}
}

func healthCmd(api API) tea.Cmd {
	return func() tea.Msg {
		h, err := api.Health(context.Background())
		return healthMsg{h: h, err: err}
	}
}

func formatHealth(h client.Health) string {
	parts := []string{"status " + h.Status}
	for _, name := range []string{"vector_store", "embedding", "chat"} {
		if v, ok := h.Checks[name]; ok {
			parts = append(parts, name+" "+v)
		}
	}
	if h.Chunks >= 0 {
		parts = append(parts, fmt.Sprintf("%d chunks", h.Chunks))
	}
	return strings.Join(parts, " · ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
