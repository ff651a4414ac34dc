package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"documind/internal/answer"
	"documind/internal/domain"
	"documind/internal/loader"
	"documind/internal/service"
)

// Port is the TUI-facing subset of the session service.
type Port interface {
	Query(ctx context.Context, question string) (service.Reply, error)
	Ingest(ctx context.Context, dir string, progress func(service.Progress)) (service.IngestReport, error)
	IngestUploads(ctx context.Context, uploads []loader.Upload, progress func(service.Progress)) (service.IngestReport, error)
	Status(ctx context.Context) (service.Status, error)
	DataDir() string
}

type entry struct {
	role     domain.Role
	text     string
	question string
	evidence []domain.Chunk
}

type (
	answerMsg struct {
		question string
		reply    service.Reply
		err      error
	}
	progressMsg service.Progress
	ingestMsg   struct {
		report service.IngestReport
		err    error
	}
	statusMsg struct {
		status service.Status
		err    error
	}
)

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	port         Port
	ctx          context.Context
	input        textinput.Model
	viewport     viewport.Model
	spinner      spinner.Model
	entries      []entry
	summary      string
	status       string
	indexLabel   string
	showEvidence bool
	busy         bool
	ready        bool
	progress     chan service.Progress
}

// New creates a chat model bound to port.
func New(ctx context.Context, port Port) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /upload <files...>"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		port:       port,
		ctx:        ctx,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		status:     "enter: ask  tab: sources  ctrl+r: reindex  ctrl+c: quit",
		indexLabel: service.StatusMissing,
	}
}

func (m Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.statusCmd()) }

// Update handles key, window and backend events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.indexLabel = msg.status.Label
		}
		return m, nil

	case answerMsg:
		m.busy = false
		m.entries = append(m.entries,
			entry{role: domain.RoleUser, text: msg.question},
			entry{role: domain.RoleAssistant, text: msg.reply.Text, question: msg.question, evidence: msg.reply.Evidence},
		)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("%d sources", len(msg.reply.Evidence))
		}
		m.refresh()
		return m, nil

	case progressMsg:
		if !m.busy {
			return m, nil
		}
		m.status = fmt.Sprintf("%s: %s", msg.Stage, msg.Message)
		return m, waitProgress(m.progress)

	case ingestMsg:
		m.busy = false
		m.progress = nil
		switch {
		case msg.err != nil:
			m.status = "Indexing failed: " + msg.err.Error()
		case msg.report.Outcome == service.IngestEmpty:
			m.status = "No .md or .pdf documents found in " + m.port.DataDir()
		default:
			m.status = fmt.Sprintf("Indexed %d chunks from %d documents", msg.report.Chunks, msg.report.Documents)
			m.summary = msg.report.Summary
		}
		if n := len(msg.report.Failures); n > 0 {
			m.status += fmt.Sprintf(" (%d files skipped)", n)
		}
		return m, m.statusCmd()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.showEvidence = !m.showEvidence
			m.refresh()
			return m, nil
		case "ctrl+r":
			if m.busy {
				return m, nil
			}
			return m.startIngest(nil)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			if paths, ok := parseUpload(text); ok {
				if len(paths) == 0 {
					m.status = "usage: /upload <file.md|file.pdf> ..."
					return m, nil
				}
				uploads := make([]loader.Upload, len(paths))
				for i, p := range paths {
					uploads[i] = loader.FileUpload(p)
				}
				return m.startIngest(uploads)
			}
			m.busy = true
			m.status = "Thinking..."
			return m, tea.Batch(m.spinner.Tick, m.queryCmd(text))
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("DocuMind") + "  " + indexStyle(m.indexLabel).Render(m.indexLabel)
	summary := summaryStyle.Render(m.summary)
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + summary + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m Model) startIngest(uploads []loader.Upload) (tea.Model, tea.Cmd) {
	m.busy = true
	m.status = "Indexing..."
	m.progress = make(chan service.Progress, 16)
	return m, tea.Batch(m.spinner.Tick, m.ingestCmd(uploads, m.progress), waitProgress(m.progress))
}

func (m Model) queryCmd(question string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.port.Query(m.ctx, question)
		return answerMsg{question: question, reply: reply, err: err}
	}
}

// ingestCmd runs the ingest and closes progress when it returns.
func (m Model) ingestCmd(uploads []loader.Upload, progress chan service.Progress) tea.Cmd {
	return func() tea.Msg {
		defer close(progress)
		report := func(p service.Progress) {
			select {
			case progress <- p:
			default:
			}
		}
		var (
			r   service.IngestReport
			err error
		)
		if len(uploads) > 0 {
			r, err = m.port.IngestUploads(m.ctx, uploads, report)
		} else {
			r, err = m.port.Ingest(m.ctx, m.port.DataDir(), report)
		}
		return ingestMsg{report: r, err: err}
	}
}

func waitProgress(ch <-chan service.Progress) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(p)
	}
}

func (m Model) statusCmd() tea.Cmd {
	return func() tea.Msg {
		st, err := m.port.Status(m.ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return "No messages yet. Index your documents with ctrl+r, then ask away."
	}
	var b strings.Builder
	for _, e := range m.entries {
		if e.role == domain.RoleUser {
			b.WriteString(userStyle.Render("You: ") + e.text + "\n")
			continue
		}
		b.WriteString(assistantStyle.Render("DocuMind: ") + e.text + "\n")
		if len(e.evidence) == 0 {
			b.WriteString("\n")
			continue
		}
		if !m.showEvidence {
			b.WriteString(summaryStyle.Render(fmt.Sprintf("  %d sources (tab to show)", len(e.evidence))) + "\n\n")
			continue
		}
		for i, c := range e.evidence {
			b.WriteString(sourceStyle.Render(fmt.Sprintf("  [%d] %s", i+1, c.SourcePath)) + "\n")
			b.WriteString("      " + highlightBestSentence(answer.Preview(c.Text, answer.PreviewLength), e.question) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func parseUpload(text string) ([]string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != "/upload" {
		return nil, false
	}
	return fields[1:], true
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	summaryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func indexStyle(label string) lipgloss.Style {
	if label == service.StatusReady {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
}

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestIdx < 0 {
		return text
	}
	best := strings.TrimSpace(sentences[bestIdx])
	return strings.Replace(text, best, highlightStyle.Render(best), 1)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
