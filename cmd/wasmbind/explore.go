package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/host"
	"github.com/wasmbind/wasmbind/wasm"
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Call a module's public functions interactively",
	Long: `Instantiate an annotated module under the embedded host runtime and
call its public functions from a terminal UI: pick a function, fill in
arguments, see the marshalled result.

List arguments are entered as comma-separated values.`,
	Run: runExplore,
}

func init() {
	exploreCmd.Flags().StringP("input", "i", "", "Annotated .wasm module (required)")
	rootCmd.AddCommand(exploreCmd)
}

func runExplore(cmd *cobra.Command, args []string) {
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmbind explore -i <module.wasm>")
		os.Exit(1)
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: explore needs a terminal")
		os.Exit(1)
	}

	p := tea.NewProgram(newExploreModel(input), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

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

type exploreState int

const (
	stateSelectFunc exploreState = iota
	stateInputArgs
	stateShowResult
)

type exploreModel struct {
	err      error
	rt       *host.Runtime
	inst     *host.Instance
	filename string
	result   string
	funcs    []funcEntry
	inputs   []textinput.Model
	selected int
	focusIdx int
	loaded   bool
	state    exploreState
}

// funcEntry pairs a public function with its rendered WIT-style line
// for the argument view.
type funcEntry struct {
	export *descriptor.Export
	wit    string
}

func newExploreModel(filename string) *exploreModel {
	return &exploreModel{
		filename: filename,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	rt    *host.Runtime
	inst  *host.Instance
	funcs []funcEntry
}

type callResultMsg struct {
	err    error
	result string
}

func (m *exploreModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *exploreModel) loadModule() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	set, err := descriptor.Extract(mod)
	if err != nil {
		return loadedMsg{err: err}
	}
	if err := set.Validate(); err != nil {
		return loadedMsg{err: err}
	}

	var funcs []funcEntry
	for _, e := range set.PublicFunctions() {
		line, err := descriptor.WitSignature(e, set)
		if err != nil {
			return loadedMsg{err: err}
		}
		funcs = append(funcs, funcEntry{export: e, wit: line})
	}

	rt, err := host.New(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	inst, err := rt.Load(ctx, data, set)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{funcs: funcs, rt: rt, inst: inst}
}

func (m *exploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()

		case "q":
			// Inside an argument field "q" is just a character.
			if m.state != stateInputArgs {
				return m.quit()
			}

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
					return m, nil
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
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.funcs = msg.funcs
		m.rt = msg.rt
		m.inst = msg.inst

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
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

func (m *exploreModel) quit() (tea.Model, tea.Cmd) {
	ctx := context.Background()
	if m.inst != nil {
		m.inst.Close(ctx)
	}
	if m.rt != nil {
		m.rt.Close(ctx)
	}
	return m, tea.Quit
}

func (m *exploreModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.export.Params))
	for i, p := range f.export.Params {
		ti := textinput.New()
		ti.Placeholder = placeholder(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func placeholder(k descriptor.ValueKind) string {
	if k.Tag == descriptor.TagSlice {
		return "comma-separated " + k.Elem.String()
	}
	return k.String()
}

func (m *exploreModel) callFunction() tea.Msg {
	ctx := context.Background()

	// Idempotent once the instance is ready.
	if err := m.inst.Init(ctx); err != nil {
		return callResultMsg{err: err}
	}

	f := m.funcs[m.selected]
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		a, err := convertArg(input.Value(), f.export.Params[i])
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = a
	}

	out, err := m.inst.Call(ctx, f.export.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: renderValue(out)}
}

// convertArg parses a text field into the Go value the host marshaller
// expects for the declared kind.
func convertArg(value string, k descriptor.ValueKind) (any, error) {
	switch k.Tag {
	case descriptor.TagNumber:
		if k.Signed {
			v, err := strconv.ParseInt(value, 10, int(k.Width))
			if err != nil {
				return nil, fmt.Errorf("parse %q as %s: %w", value, k, err)
			}
			return v, nil
		}
		v, err := strconv.ParseUint(value, 10, int(k.Width))
		if err != nil {
			return nil, fmt.Errorf("parse %q as %s: %w", value, k, err)
		}
		return v, nil

	case descriptor.TagBoolean:
		return value == "true" || value == "1", nil

	case descriptor.TagStringRef:
		return value, nil

	case descriptor.TagSlice:
		return convertSlice(value, *k.Elem)
	}
	return nil, fmt.Errorf("%s arguments cannot be entered as text", k)
}

func convertSlice(value string, elem descriptor.ValueKind) (any, error) {
	var parts []string
	if strings.TrimSpace(value) != "" {
		parts = strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
	}

	switch elem.Tag {
	case descriptor.TagStringRef:
		return parts, nil

	case descriptor.TagBoolean:
		out := make([]bool, len(parts))
		for i, p := range parts {
			out[i] = p == "true" || p == "1"
		}
		return out, nil

	case descriptor.TagNumber:
		return parseNumericSlice(parts, elem)
	}
	return nil, fmt.Errorf("list<%s> arguments cannot be entered as text", elem)
}

// parseNumericSlice produces the exact element type the marshaller
// requires for the declared width; there is no cross-width coercion
// inside slices.
func parseNumericSlice(parts []string, k descriptor.ValueKind) (any, error) {
	signed := make([]int64, len(parts))
	unsigned := make([]uint64, len(parts))
	for i, p := range parts {
		if k.Signed {
			v, err := strconv.ParseInt(p, 10, int(k.Width))
			if err != nil {
				return nil, fmt.Errorf("element %d: parse %q as %s: %w", i, p, k, err)
			}
			signed[i] = v
		} else {
			v, err := strconv.ParseUint(p, 10, int(k.Width))
			if err != nil {
				return nil, fmt.Errorf("element %d: parse %q as %s: %w", i, p, k, err)
			}
			unsigned[i] = v
		}
	}

	switch k.Width {
	case 8:
		if k.Signed {
			out := make([]int8, len(signed))
			for i, v := range signed {
				out[i] = int8(v)
			}
			return out, nil
		}
		out := make([]uint8, len(unsigned))
		for i, v := range unsigned {
			out[i] = uint8(v)
		}
		return out, nil
	case 16:
		if k.Signed {
			out := make([]int16, len(signed))
			for i, v := range signed {
				out[i] = int16(v)
			}
			return out, nil
		}
		out := make([]uint16, len(unsigned))
		for i, v := range unsigned {
			out[i] = uint16(v)
		}
		return out, nil
	case 32:
		if k.Signed {
			out := make([]int32, len(signed))
			for i, v := range signed {
				out[i] = int32(v)
			}
			return out, nil
		}
		out := make([]uint32, len(unsigned))
		for i, v := range unsigned {
			out[i] = uint32(v)
		}
		return out, nil
	case 64:
		if k.Signed {
			return signed, nil
		}
		return unsigned, nil
	}
	return nil, fmt.Errorf("number width %d is not supported", k.Width)
}

func renderValue(v any) string {
	switch out := v.(type) {
	case nil:
		return "(void)"
	case string:
		return strconv.Quote(out)
	case *host.Object:
		return fmt.Sprintf("%s#%d", out.Struct().Name, out.Handle())
	default:
		return fmt.Sprintf("%v", out)
	}
}

func (m *exploreModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmbind explore"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module declares no public functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(typeStyle.Render(f.wit))
		b.WriteString("\n\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.export.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *exploreModel) formatFunc(f funcEntry) string {
	e := f.export
	var params []string
	for i, p := range e.Params {
		params = append(params, fmt.Sprintf("arg%d: %s", i, typeStyle.Render(p.String())))
	}
	out := funcStyle.Render(e.Name) + "(" + strings.Join(params, ", ") + ")"
	if e.Result != nil {
		out += " -> " + typeStyle.Render(e.Result.String())
	}
	return out
}
