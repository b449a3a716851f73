package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thog/inochi2d-go/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var viewCmd = &cobra.Command{
	Use:   "view [puppet]...",
	Short: "Step puppets interactively",
	RunE:  runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

type puppetState struct {
	puppet *runtime.Puppet
	err    error
	frames int
}

type viewModel struct {
	ctx      context.Context
	sess     *session
	err      error
	puppets  []*puppetState
	input    textinput.Model
	frame    int
	selected int
	width    int
	fps      int
	playing  bool
	opening  bool
}

type tickMsg time.Time

func newViewModel(ctx context.Context, sess *session, width int) *viewModel {
	ti := textinput.New()
	ti.Placeholder = "path/to/puppet.inx"
	ti.Prompt = "open: "
	ti.Width = 48

	fps := sess.settings.FPS
	if fps <= 0 {
		fps = 30
	}
	return &viewModel{
		ctx:   ctx,
		sess:  sess,
		input: ti,
		width: width,
		fps:   fps,
	}
}

func (m *viewModel) Init() tea.Cmd {
	return nil
}

func (m *viewModel) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// open loads a puppet on the event loop goroutine; the instance is not
// safe for use from tea.Cmd goroutines.
func (m *viewModel) open(path string) {
	p, err := loadPuppet(m.ctx, m.sess.inst, path, false)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.puppets = append(m.puppets, &puppetState{puppet: p})
}

func (m *viewModel) step() {
	var live []*runtime.Puppet
	for _, ps := range m.puppets {
		if ps.err == nil && !ps.puppet.Closed() {
			live = append(live, ps.puppet)
		}
	}
	done := runFrames(m.ctx, m.sess.inst, live, 1)
	for _, ps := range m.puppets {
		if ps.err != nil || ps.puppet.Closed() {
			continue
		}
		if done[ps.puppet] == 0 {
			ps.err = errors.New("frame failed")
			continue
		}
		ps.frames++
	}
	m.frame++
}

func (m *viewModel) closeSelected() {
	if m.selected >= len(m.puppets) {
		return
	}
	ps := m.puppets[m.selected]
	if err := ps.puppet.Close(m.ctx); err != nil {
		ps.err = err
	}
}

func (m *viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		if !m.playing {
			return m, nil
		}
		m.step()
		return m, m.tick()

	case tea.KeyMsg:
		if m.opening {
			switch msg.String() {
			case "enter":
				m.open(strings.TrimSpace(m.input.Value()))
				m.input.Reset()
				m.input.Blur()
				m.opening = false
				return m, nil
			case "esc":
				m.input.Reset()
				m.input.Blur()
				m.opening = false
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.puppets)-1 {
				m.selected++
			}

		case " ", "n":
			if !m.playing {
				m.step()
			}

		case "p":
			m.playing = !m.playing
			if m.playing {
				return m, m.tick()
			}

		case "o":
			m.opening = true
			m.input.Focus()
			return m, textinput.Blink

		case "x":
			m.closeSelected()
		}
	}

	return m, nil
}

func (m *viewModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Puppet Viewer"))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("frame %d • %s", m.frame, m.sess.inst.Capabilities())))
	b.WriteString("\n\n")

	if len(m.puppets) == 0 {
		b.WriteString("No puppets loaded.\n")
	}
	for i, ps := range m.puppets {
		line := m.formatPuppet(ps)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(truncate(fmt.Sprintf("Error: %v", m.err), m.width)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.opening {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter load • esc cancel"))
		return b.String()
	}

	play := "p play"
	if m.playing {
		play = "p pause"
	}
	b.WriteString(helpStyle.Render("↑/↓ select • space step • " + play + " • o open • x close • q quit"))
	return b.String()
}

func (m *viewModel) formatPuppet(ps *puppetState) string {
	status := dimStyle.Render(fmt.Sprintf("%d frames", ps.frames))
	switch {
	case ps.puppet.Closed():
		status = dimStyle.Render("closed")
	case ps.err != nil:
		status = errorStyle.Render(ps.err.Error())
	}
	line := nameStyle.Render(ps.puppet.Name()) + " " + status
	return truncate(line, m.width)
}

func truncate(s string, width int) string {
	if width <= 2 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > width-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

func runView(cmd *cobra.Command, args []string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("view needs a terminal; use load for scripted runs")
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = 80
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	m := newViewModel(ctx, sess, width)
	for _, path := range args {
		m.open(path)
	}

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
