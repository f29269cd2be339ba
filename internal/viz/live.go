package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/sim"
)

const historyCapacity = 600

type TickMsg time.Time

func tick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model steps a box-model run on every tick and shows its progress.
type Model struct {
	backend chem.Backend
	state   chem.State
	init    sim.Initial
	cfg     sim.Config
	every   time.Duration

	species  []string
	selected int
	history  [][]float64
	current  []float64

	t       float64
	steps   int
	last    chem.Result
	stats   chem.Stats
	err     error
	running bool
	done    bool

	theme    Theme
	showHelp bool
}

// NewModel prepares a live run of init on backend.
func NewModel(backend chem.Backend, init sim.Initial, cfg sim.Config, every time.Duration) (Model, error) {
	st, err := sim.NewState(backend, init, cfg.Cells)
	if err != nil {
		return Model{}, err
	}
	if every <= 0 {
		every = time.Second / 30
	}
	species := st.SpeciesOrdering().Names()
	m := Model{
		backend: backend,
		state:   st,
		init:    init,
		cfg:     cfg,
		every:   every,
		species: species,
		running: true,
		theme:   Themes[0],
		last:    chem.Result{Status: chem.NotYetCalled},
	}
	m.record()
	return m, nil
}

// WithTheme returns m drawn with theme.
func (m Model) WithTheme(theme Theme) Model {
	m.theme = theme
	return m
}

func (m Model) Init() tea.Cmd {
	return tick(m.every)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "tab":
			if len(m.species) > 0 {
				m.selected = (m.selected + 1) % len(m.species)
			}
		case "r":
			m.reset()
		case "t":
			m.theme = m.theme.Next()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running && !m.done {
			m.step()
		}
		return m, tick(m.every)
	}
	return m, nil
}

func (m *Model) step() {
	dt := min(m.cfg.Dt, m.cfg.Duration-m.t)
	res, err := m.backend.Solve(m.state, dt)
	if err != nil {
		m.err = err
		m.done = true
		return
	}
	m.t += dt
	m.steps++
	m.last = res
	m.stats.FunctionCalls += res.Stats.FunctionCalls
	m.stats.NumberOfSteps += res.Stats.NumberOfSteps
	m.stats.Rejected += res.Stats.Rejected
	m.record()

	if m.t >= m.cfg.Duration || (m.cfg.StopOnFailure && res.Status != chem.Converged && res.Status != chem.AcceptingUnconvergedIntegration) {
		m.done = true
	}
}

func (m *Model) record() {
	m.current = sim.Means(m.state)
	if len(m.history) >= historyCapacity {
		m.history = m.history[1:]
	}
	m.history = append(m.history, m.current)
}

func (m *Model) reset() {
	if err := sim.Apply(m.state, m.init); err != nil {
		m.err = err
		return
	}
	m.t, m.steps, m.err, m.done = 0, 0, nil, false
	m.stats = chem.Stats{}
	m.last = chem.Result{Status: chem.NotYetCalled}
	m.history = m.history[:0]
	m.record()
}

// Column returns the recorded history of the selected species.
func (m Model) Column() []float64 {
	out := make([]float64, len(m.history))
	for i, row := range m.history {
		out[i] = row[m.selected]
	}
	return out
}

func (m Model) Selected() string {
	if len(m.species) == 0 {
		return ""
	}
	return m.species[m.selected]
}

func (m Model) Time() float64 { return m.t }
func (m Model) Done() bool    { return m.done }
func (m Model) Err() error    { return m.err }

func (m Model) View() string {
	th := m.theme
	var b strings.Builder

	b.WriteString(th.Title().Render(fmt.Sprintf("chemsim live · %s · %d cells", m.backend.Type(), m.cfg.Cells)))
	b.WriteString("\n\n")

	fraction := 0.0
	if m.cfg.Duration > 0 {
		fraction = m.t / m.cfg.Duration
	}
	fmt.Fprintf(&b, "%s %5.1f%%\n\n", th.ProgressBar(fraction, 40), 100*fraction)

	row := func(label, value string) {
		b.WriteString(th.Label().Render(label) + th.Value().Render(value) + "\n")
	}
	row("time", fmt.Sprintf("%.1f / %.1f s", m.t, m.cfg.Duration))
	row("steps", fmt.Sprintf("%d", m.steps))
	b.WriteString(th.Label().Render("status") + th.Status(m.last.Status) + "\n")
	row("rhs calls", fmt.Sprintf("%d", m.stats.FunctionCalls))
	row("rejected", fmt.Sprintf("%d", m.stats.Rejected))
	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(th.Error).Render("error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n")

	var conc strings.Builder
	for i, name := range m.species {
		marker := "  "
		if i == m.selected {
			marker = "▶ "
		}
		fmt.Fprintf(&conc, "%s%-8s %12.5g\n", marker, name, m.current[i])
	}
	panels := []string{th.Panel().Render(strings.TrimRight(conc.String(), "\n"))}

	if col := m.Column(); len(col) > 1 {
		chart := asciigraph.Plot(col, asciigraph.Height(8), asciigraph.Width(40), asciigraph.Caption(m.Selected()))
		panels = append(panels, th.Panel().Render(chart))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString(th.Hint().Render("space pause/resume · tab next species · r restart · t theme · q quit"))
	} else {
		b.WriteString(th.Hint().Render("? help"))
	}
	return b.String()
}

// Run starts the live view and blocks until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
