package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dop251/goja"
	"golang.org/x/term"

	"github.com/wippyai/jsibridge/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const maxHistory = 200

type evalResult struct {
	err    error
	input  string
	output string
}

type historyEntry struct {
	input  string
	output string
	failed bool
}

type interactiveModel struct {
	s       *session
	input   textinput.Model
	history []historyEntry
	stats   string
}

func newInteractiveModel(s *session) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("> ")
	ti.Placeholder = "native.view('Uint8Array', native.alloc(8), 0, 8)"
	ti.Width = 72
	ti.Focus()

	return &interactiveModel{s: s, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if src == "" {
				return m, nil
			}
			return m, m.evalCmd(src)
		}

	case evalResult:
		entry := historyEntry{input: msg.input, output: msg.output}
		if msg.err != nil {
			entry.output = msg.err.Error()
			entry.failed = true
		}
		m.history = append(m.history, entry)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
		m.stats = m.s.statsLine()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) evalCmd(src string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.s.eval(src)
		return evalResult{input: src, output: out, err: err}
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("jsirun"))
	b.WriteString(" ")
	b.WriteString(m.s.cfg.Natives.Namespace)
	b.WriteString(" natives, scheduler ")
	b.WriteString(m.s.scheduler.Mode().String())
	b.WriteString("\n\n")

	for _, h := range m.history {
		b.WriteString(promptStyle.Render("> "))
		b.WriteString(h.input)
		b.WriteString("\n")
		if h.failed {
			b.WriteString(errorStyle.Render(h.output))
		} else {
			b.WriteString(resultStyle.Render(h.output))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.stats != "" {
		b.WriteString(statsStyle.Render(m.stats))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter evaluate • ctrl+c quit"))
	return b.String()
}

// eval runs src on the event loop and waits for its result.
func (s *session) eval(src string) (string, error) {
	type result struct {
		err error
		out string
	}
	done := make(chan result, 1)
	s.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunString(src)
		s.collect()
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{out: s.format(v)}
	})
	r := <-done
	return r.out, r.err
}

func (s *session) statsLine() string {
	done := make(chan string, 1)
	s.loop.RunOnLoop(func(*goja.Runtime) {
		pending := 0
		if s.heap != nil {
			pending = s.heap.Pending()
		}
		done <- fmt.Sprintf("live handles %d • external memory %d B • queued tasks %d • pending guest frees %d",
			s.rt.LiveHandles(), s.rt.ExternalMemory(), s.scheduler.Pending(), pending)
	})
	return <-done
}

// startLoop runs the event loop in the background and sets up the runtime
// on it.
func (s *session) startLoop() error {
	s.loop.Start()
	done := make(chan error, 1)
	s.loop.RunOnLoop(func(vm *goja.Runtime) {
		done <- s.setup(vm)
	})
	return <-done
}

func runInteractive(cfg config.Config) error {
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.startLoop(); err != nil {
		return err
	}
	defer s.loop.Stop()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runLines(s)
	}

	p := tea.NewProgram(newInteractiveModel(s), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// runLines evaluates stdin line by line when it is not a terminal.
func runLines(s *session) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out, err := s.eval(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Println(out)
	}
	return scanner.Err()
}
