package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/files"
	"github.com/BioHazard786/vanish/internal/session"
	"github.com/BioHazard786/vanish/internal/utils"
)

const (
	maxNotices      = 4
	sessionEndDelay = 3 * time.Second
	tickInterval    = time.Second
)

// Chat is the session the chat view drives.
type Chat interface {
	Send(kind session.Kind, body string, deleteAfter time.Duration) (session.Delivery, error)
	Leave()
	Peers() []session.PeerInfo
	Status() session.Status
	RoomID() string
	SelfID() string
}

// Log is the message list the chat view shows.
type Log interface {
	List() []ephemeral.Entry
	Remaining(id string, now time.Time) (time.Duration, bool)
	Changes() <-chan struct{}
}

type (
	eventMsg   session.Event
	changedMsg struct{}
	tickMsg    time.Time
	endMsg     struct{}
	sentMsg    struct {
		what string
		err  error
	}
)

// ChatModel is the bubbletea model of one chat room.
type ChatModel struct {
	chat   Chat
	log    Log
	events <-chan session.Event
	now    func() time.Time

	input textinput.Model
	view  viewport.Model
	ready bool

	timer   time.Duration
	status  session.Status
	notices []string
	ending  bool
	left    bool
}

// NewChatModel creates the chat view. timer is the initial self-destruct delay.
func NewChatModel(chat Chat, log Log, events <-chan session.Event, timer time.Duration) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help"
	ti.Prompt = "› "
	ti.PromptStyle = SelfNameStyle
	ti.Focus()

	return &ChatModel{
		chat:   chat,
		log:    log,
		events: events,
		now:    time.Now,
		input:  ti,
		view:   viewport.New(80, 20),
		timer:  timer,
		status: chat.Status(),
	}
}

// Left reports whether the user left the room from the chat view.
func (m *ChatModel) Left() bool {
	return m.left
}

// RunChat runs m full screen until the user leaves.
func RunChat(m *ChatModel) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitEvent(), m.waitChange(), tick())
}

func (m *ChatModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *ChatModel) waitChange() tea.Cmd {
	ch := m.log.Changes()
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, m.leave()
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-maxNotices-3, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case eventMsg:
		return m, tea.Batch(m.handleEvent(session.Event(msg)), m.waitEvent())

	case changedMsg:
		m.refresh()
		return m, m.waitChange()

	case tickMsg:
		m.refresh()
		return m, tick()

	case sentMsg:
		if msg.err != nil {
			m.notify(ErrorStyle.Render(fmt.Sprintf("%s %s failed: %v", IconError, msg.what, msg.err)))
		}
		return m, nil

	case endMsg:
		return m, m.leave()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ChatModel) leave() tea.Cmd {
	if !m.left {
		m.left = true
		m.chat.Leave()
	}
	return tea.Quit
}

func (m *ChatModel) submit(line string) tea.Cmd {
	in, err := ParseInput(line)
	if err != nil {
		m.notify(WarningStyle.Render(err.Error()))
		return nil
	}

	switch in.Action {
	case ActionSay:
		return m.send("message", session.KindText, func() (string, error) { return in.Arg, nil })
	case ActionImage:
		return m.send("image", session.KindImage, attachment(in.Arg, "image"))
	case ActionVideo:
		return m.send("video", session.KindVideo, attachment(in.Arg, "video"))
	case ActionTimer:
		m.timer = in.Timer
		if in.Timer == 0 {
			m.notify("Self-destruct timer off")
		} else {
			m.notify(fmt.Sprintf("%s New messages vanish after %s", IconTimer, utils.FormatCountdown(in.Timer)))
		}
	case ActionSave:
		m.save(in.Arg)
	case ActionPeers:
		m.notify(RosterView(m.chat.Peers()))
	case ActionHelp:
		m.notify(helpText)
	case ActionLeave:
		return m.leave()
	}
	return nil
}

func attachment(path, kind string) func() (string, error) {
	return func() (string, error) {
		_, url, err := files.Load(path, kind)
		return url, err
	}
}

// send runs the load and send off the UI goroutine; chunked sends take a while.
func (m *ChatModel) send(what string, kind session.Kind, body func() (string, error)) tea.Cmd {
	chat, timer := m.chat, m.timer
	return func() tea.Msg {
		b, err := body()
		if err != nil {
			return sentMsg{what: what, err: err}
		}
		_, err = chat.Send(kind, b, timer)
		return sentMsg{what: what, err: err}
	}
}

func (m *ChatModel) save(dir string) {
	entries := m.log.List()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Self || (e.Kind != string(session.KindImage) && e.Kind != string(session.KindVideo)) {
			continue
		}
		name := fmt.Sprintf("vanish-%s-%s", e.Kind, e.SentAt.Format("20060102-150405"))
		path, err := files.Save(dir, name, e.Body)
		if err != nil {
			m.notify(ErrorStyle.Render("save failed: " + err.Error()))
			return
		}
		m.notify(SuccessStyle.Render("Saved " + path))
		return
	}
	m.notify("Nothing to save yet")
}

func (m *ChatModel) handleEvent(ev session.Event) tea.Cmd {
	switch ev.Kind {
	case session.EventStatus:
		m.status = ev.Status
	case session.EventPeerJoined:
		m.notify(fmt.Sprintf("%s %s joined (%d in room)", IconPeer, shortID(ev.PeerID), ev.UserCount))
	case session.EventPeerLeft:
		m.notify(fmt.Sprintf("%s %s left (%d in room)", IconPeer, shortID(ev.PeerID), ev.UserCount))
	case session.EventEncryptionReady:
		m.notify(fmt.Sprintf("%s End-to-end encryption with %s", IconLock, shortID(ev.PeerID)))
	case session.EventError:
		if ev.Err != nil {
			m.notify(WarningStyle.Render(ev.Err.Error()))
		}
	case session.EventSessionEnded:
		if !m.ending {
			m.ending = true
			m.notify(WarningStyle.Render(fmt.Sprintf("Everyone left. Closing in %s", utils.FormatCountdown(sessionEndDelay))))
			return tea.Tick(sessionEndDelay, func(time.Time) tea.Msg { return endMsg{} })
		}
	}
	return nil
}

func (m *ChatModel) notify(line string) {
	m.notices = append(m.notices, line)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *ChatModel) refresh() {
	atBottom := m.view.AtBottom()
	now := m.now()

	entries := m.log.List()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		remaining, _ := m.log.Remaining(e.ID, now)
		lines = append(lines, RenderEntry(e, remaining))
	}
	if len(lines) == 0 {
		lines = append(lines, SystemStyle.Render("No messages. Everything here disappears when you leave."))
	}
	m.view.SetContent(lipgloss.NewStyle().Width(m.view.Width).Render(strings.Join(lines, "\n")))
	if atBottom {
		m.view.GotoBottom()
	}
}

func (m *ChatModel) View() string {
	if m.left {
		return ""
	}

	var b strings.Builder
	header := fmt.Sprintf("%s %s  %s", IconRoom, BoldStyle.Render(m.chat.RoomID()), StatusBadge(m.status))
	if m.timer > 0 {
		header += "  " + CountdownStyle.Render(IconTimer+" "+utils.FormatCountdown(m.timer))
	}
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	for _, n := range m.notices {
		b.WriteString(SystemStyle.Render(n))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter send • /help commands • esc leave"))
	return b.String()
}

// RenderEntry formats one message line. remaining is the time left before
// it vanishes, ignored when the entry does not expire.
func RenderEntry(e ephemeral.Entry, remaining time.Duration) string {
	name := PeerNameStyle.Render(shortID(e.From))
	if e.Self {
		name = SelfNameStyle.Render("you")
	}

	var b strings.Builder
	b.WriteString(MutedStyle.Render(utils.FormatClock(e.SentAt)))
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(renderBody(e))

	var marks []string
	if e.Encrypted {
		marks = append(marks, IconLock)
	}
	if e.Relayed {
		marks = append(marks, IconRelay)
	}
	if e.Expires() {
		marks = append(marks, CountdownStyle.Render(IconTimer+" "+utils.FormatCountdown(remaining)))
	}
	if len(marks) > 0 {
		b.WriteString("  ")
		b.WriteString(strings.Join(marks, " "))
	}
	return b.String()
}

func renderBody(e ephemeral.Entry) string {
	icon := ""
	switch session.Kind(e.Kind) {
	case session.KindImage:
		icon = IconImage
	case session.KindVideo:
		icon = IconVideo
	default:
		return e.Body
	}

	mimeType, data, err := files.ParseDataURL(e.Body)
	if err != nil {
		return AttachmentStyle.Render(fmt.Sprintf("%s [%s]", icon, e.Kind))
	}
	return AttachmentStyle.Render(fmt.Sprintf("%s [%s %s, %s]", icon, e.Kind, mimeType, utils.FormatSize(int64(len(data)))))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
