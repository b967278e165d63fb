package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/engine"
	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

// interactiveModel keeps one runtime and one instance for the whole
// session. exports is only touched inside rt.Do.
type interactiveModel struct {
	err      error
	rt       *engine.Runtime
	exports  *root.Object
	log      *zap.Logger
	cfg      engine.Config
	filename string
	wasm     []byte
	result   string
	funcs    []engine.Export
	inputs   []textinput.Model
	stats    engine.Stats
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(filename string, wasm []byte, cfg engine.Config, log *zap.Logger) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		wasm:     wasm,
		cfg:      cfg,
		log:      log,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err     error
	rt      *engine.Runtime
	exports *root.Object
	funcs   []engine.Export
}

type callResultMsg struct {
	err    error
	result string
	stats  engine.Stats
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()
	rt, err := engine.New(ctx, m.cfg, engine.WithLogger(m.log), engine.WithName(m.filename))
	if err != nil {
		return loadedMsg{err: err}
	}

	var (
		exports *root.Object
		funcs   []engine.Export
	)
	err = rt.Do(ctx, func(cx *gcsafe.Context) error {
		var err error
		exports, funcs, err = load(cx, m.wasm, m.log)
		return err
	})
	if err != nil {
		_ = rt.Close(ctx)
		return loadedMsg{err: err}
	}
	if len(funcs) == 0 {
		m.release(rt, exports)
		return loadedMsg{err: fmt.Errorf("module exports no functions")}
	}
	return loadedMsg{rt: rt, exports: exports, funcs: funcs}
}

func (m *interactiveModel) release(rt *engine.Runtime, exports *root.Object) {
	ctx := context.Background()
	if exports != nil {
		_ = rt.Do(ctx, func(*gcsafe.Context) error {
			exports.Release()
			return nil
		})
	}
	if err := rt.Close(ctx); err != nil {
		m.log.Warn("close runtime", zap.Error(err))
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.rt != nil {
				m.release(m.rt, m.exports)
				m.rt, m.exports = nil, nil
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.exports = msg.exports
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.stats = msg.stats
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.rt == nil {
		return callResultMsg{err: errors.NotInitialized(errors.PhaseEngine, "module")}
	}
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	args, err := parseArgs(raw)
	if err != nil {
		return callResultMsg{err: err}
	}

	ctx := context.Background()
	name := m.funcs[m.selected].Name
	var result trace.Value
	err = m.rt.Do(ctx, func(cx *gcsafe.Context) error {
		var err error
		result, err = call(cx, m.exports, name, args)
		return err
	})
	stats, _ := m.rt.Stats(ctx)
	if err != nil {
		return callResultMsg{err: err, stats: stats}
	}
	return callResultMsg{result: result.String(), stats: stats}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.funcs) == 0 {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("mozi"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("heap: %d live, %d collections • roots: %d (peak %d)",
			m.stats.Heap.Live, m.stats.Heap.Collections, m.stats.Roots, m.stats.PeakRoots)))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f engine.Export) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("arg%d: %s", i, typeStyle.Render(api.ValueTypeName(p)))
	}
	result := ""
	if len(f.Result) > 0 {
		result = " -> " + typeStyle.Render(api.ValueTypeName(f.Result[0]))
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(filename string, wasm []byte, cfg engine.Config, log *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(filename, wasm, cfg, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
