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
	"golang.org/x/term"

	"github.com/wippyai/js-runtime/runtime"
	"github.com/wippyai/js-runtime/value"
)

const callTimeout = 30 * time.Second

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(lipgloss.Color("#F9E2AF")).
			Padding(0, 1)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	kindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#89DCEB"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F9E2AF"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	hintStyle   = lipgloss.NewStyle().Faint(true)
)

type view int

const (
	viewList view = iota
	viewArgs
	viewResult
)

// target is one callable export.
type target struct {
	module string
	export runtime.Export
}

func (t target) title() string { return t.module + "." + t.export.Name }

func (t target) params() []*value.Type {
	if t.export.Sig == nil {
		return nil
	}
	return t.export.Sig.Params
}

// browser lists the function exports of every module and calls them with
// arguments typed into a form.
type browser struct {
	rt      *runtime.Runtime
	targets []target
	form    []textinput.Model
	err     error
	output  string
	cursor  int
	field   int
	view    view
}

type targetsMsg struct {
	targets []target
	err     error
}

type outcomeMsg struct {
	output string
	err    error
}

func newBrowser(rt *runtime.Runtime) *browser {
	return &browser{rt: rt}
}

func (b *browser) Init() tea.Cmd {
	return b.discover
}

// discover describes every module; Describe loads it, so init failures
// show up here.
func (b *browser) discover() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var targets []target
	for _, name := range b.rt.Modules() {
		info, err := b.rt.Describe(ctx, name)
		if err != nil {
			return targetsMsg{err: err}
		}
		for _, e := range info.Exports {
			if e.Kind == runtime.ExportFunc {
				targets = append(targets, target{module: name, export: e})
			}
		}
	}
	if len(targets) == 0 {
		return targetsMsg{err: errors.New("no exported functions")}
	}
	return targetsMsg{targets: targets}
}

func (b *browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case targetsMsg:
		b.targets, b.err = msg.targets, msg.err
		return b, nil
	case outcomeMsg:
		b.output, b.err = msg.output, msg.err
		b.view = viewResult
		return b, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return b, tea.Quit
		}
		switch b.view {
		case viewList:
			return b.onListKey(msg)
		case viewArgs:
			return b.onArgsKey(msg)
		case viewResult:
			return b.onResultKey(msg)
		}
	}
	return b, nil
}

func (b *browser) onListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return b, tea.Quit
	case "up", "k":
		if b.cursor > 0 {
			b.cursor--
		}
	case "down", "j":
		if b.cursor < len(b.targets)-1 {
			b.cursor++
		}
	case "enter":
		if len(b.targets) == 0 {
			return b, nil
		}
		b.buildForm()
		if len(b.form) == 0 {
			return b, b.call
		}
		b.view = viewArgs
	}
	return b, nil
}

func (b *browser) onArgsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return b, b.call
	case "esc":
		b.form = nil
		b.view = viewList
		return b, nil
	case "tab", "shift+tab":
		b.form[b.field].Blur()
		step := 1
		if msg.String() == "shift+tab" {
			step = len(b.form) - 1
		}
		b.field = (b.field + step) % len(b.form)
		b.form[b.field].Focus()
		return b, nil
	}
	var cmd tea.Cmd
	b.form[b.field], cmd = b.form[b.field].Update(msg)
	return b, cmd
}

func (b *browser) onResultKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return b, tea.Quit
	case "enter", "esc":
		b.output, b.err = "", nil
		b.view = viewList
	}
	return b, nil
}

func (b *browser) buildForm() {
	params := b.targets[b.cursor].params()
	b.form = make([]textinput.Model, len(params))
	for i, p := range params {
		in := textinput.New()
		in.Prompt = fmt.Sprintf("arg%d › ", i)
		in.Placeholder = p.String()
		in.Width = 48
		b.form[i] = in
	}
	b.field = 0
	if len(b.form) > 0 {
		b.form[0].Focus()
	}
}

func (b *browser) call() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	t := b.targets[b.cursor]
	params := t.params()
	args := make([]value.Value, len(b.form))
	for i, in := range b.form {
		arg, err := b.parseArg(ctx, in.Value(), params[i])
		if err != nil {
			return outcomeMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		args[i] = arg
	}

	out, err := b.rt.Call(ctx, t.module, t.export.Name, args...)
	if err != nil {
		return outcomeMsg{err: err}
	}
	return outcomeMsg{output: out.String()}
}

// parseArg takes strings verbatim and evaluates anything else as a script
// expression decoded against t.
func (b *browser) parseArg(ctx context.Context, raw string, t *value.Type) (value.Value, error) {
	if t.Kind == value.KindString {
		return value.String(raw), nil
	}
	return b.rt.Eval(ctx, "arg.js", "("+raw+"\n)", t)
}

func (b *browser) View() string {
	if b.err != nil && b.view != viewResult {
		return failStyle.Render(fmt.Sprintf("Error: %v", b.err)) + "\n\n" + hintStyle.Render("ctrl+c quit")
	}
	if len(b.targets) == 0 {
		return "Loading modules..."
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render("js-runtime"))
	s.WriteString(" " + strings.Join(b.rt.Modules(), ", ") + "\n\n")

	switch b.view {
	case viewList:
		for i, t := range b.targets {
			line := "  " + describeTarget(t)
			if i == b.cursor {
				line = cursorStyle.Render("▸ ") + describeTarget(t)
			}
			s.WriteString(line + "\n")
		}
		s.WriteString("\n" + hintStyle.Render("↑/↓ move • enter call • q quit"))

	case viewArgs:
		t := b.targets[b.cursor]
		fmt.Fprintf(&s, "%s\n\n", nameStyle.Render(t.title()))
		for _, in := range b.form {
			s.WriteString(in.View() + "\n")
		}
		s.WriteString("\n" + hintStyle.Render("tab next • enter call • esc back"))

	case viewResult:
		t := b.targets[b.cursor]
		fmt.Fprintf(&s, "%s\n\n", nameStyle.Render(t.title()))
		if b.err != nil {
			s.WriteString(failStyle.Render(b.err.Error()))
		} else {
			s.WriteString(okStyle.Render(b.output))
		}
		s.WriteString("\n\n" + hintStyle.Render("enter back • q quit"))
	}
	return s.String()
}

func describeTarget(t target) string {
	sig := "func()"
	if t.export.Sig != nil {
		sig = t.export.Sig.String()
	}
	out := nameStyle.Render(t.title()) + " " + kindStyle.Render(strings.TrimPrefix(sig, "func"))
	if t.export.Mode != runtime.Sync {
		out += " " + hintStyle.Render("["+t.export.Mode.String()+"]")
	}
	return out
}

func runInteractive(rt *runtime.Runtime) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive mode needs a terminal")
	}
	_, err := tea.NewProgram(newBrowser(rt), tea.WithAltScreen()).Run()
	return err
}
