package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/lazyfall/internal/dynamo"
)

const (
	sceneWidth      = 60
	sceneHeight     = 12
	barWidth        = 20
	historyCapacity = 240
	pollTimeout     = 2 * time.Second
)

// Fetcher queries one body. client.Client satisfies it.
type Fetcher interface {
	GetPos(ctx context.Context, id int) ([16]float32, error)
}

type Options struct {
	IDs    []int
	FPS    int
	Theme  string
	Bounds Bounds
	Source string
}

type tickMsg time.Time

type frameMsg struct {
	positions map[int][16]float32
	err       error
}

// Model polls every watched body once per frame.
type Model struct {
	fetch     Fetcher
	ids       []int
	interval  time.Duration
	source    string
	positions map[int][16]float32
	history   []float64
	selected  int
	paused    bool
	frames    int
	err       error
	theme     Theme
	styles    styles
	scene     *Scene
	maxY      float32
}

func NewModel(fetch Fetcher, opts Options) Model {
	fps := opts.FPS
	if fps <= 0 {
		fps = 10
	}
	theme := GetTheme(opts.Theme)
	return Model{
		fetch:     fetch,
		ids:       opts.IDs,
		interval:  time.Second / time.Duration(fps),
		source:    opts.Source,
		positions: make(map[int][16]float32, len(opts.IDs)),
		history:   make([]float64, 0, historyCapacity),
		theme:     theme,
		styles:    newStyles(theme),
		scene:     NewScene(sceneWidth, sceneHeight, opts.Bounds),
		maxY:      opts.Bounds.MaxY,
	}
}

func (m Model) Init() tea.Cmd {
	return m.poll()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// poll fetches every watched body. The first failure aborts the frame.
func (m Model) poll() tea.Cmd {
	fetch, ids := m.fetch, m.ids
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		out := make(map[int][16]float32, len(ids))
		for _, id := range ids {
			pos, err := fetch.GetPos(ctx, id)
			if err != nil {
				return frameMsg{err: fmt.Errorf("body %d: %w", id, err)}
			}
			out[id] = pos
		}
		return frameMsg{positions: out}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "down", "j":
			m.selectBody(1)
		case "up", "k":
			m.selectBody(-1)
		case "t":
			m.theme = nextTheme(m.theme.Name)
			m.styles = newStyles(m.theme)
		}
	case tickMsg:
		if m.paused {
			return m, m.tick()
		}
		return m, m.poll()
	case frameMsg:
		m.frames++
		m.err = msg.err
		if msg.err == nil {
			m.positions = msg.positions
			if len(m.ids) > 0 {
				if pos, ok := m.positions[m.ids[m.selected]]; ok {
					m.record(float64(pos[dynamo.CellY]))
				}
			}
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) selectBody(dir int) {
	if len(m.ids) == 0 {
		return
	}
	m.selected = (m.selected + dir + len(m.ids)) % len(m.ids)
	m.history = m.history[:0]
}

func (m *Model) record(y float64) {
	m.history = append(m.history, y)
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

func (m Model) View() string {
	st := m.styles
	var s strings.Builder

	status := AnimatedSpinner(m.frames) + " LIVE"
	if m.paused {
		status = "PAUSED"
	}
	s.WriteString(st.title.Render(fmt.Sprintf("LAZYFALL %s  %s", m.source, status)) + "\n")

	points := make([][2]float32, 0, len(m.positions))
	for _, id := range m.ids {
		if pos, ok := m.positions[id]; ok {
			points = append(points, [2]float32{pos[dynamo.CellX], pos[dynamo.CellY]})
		}
	}
	m.scene.Draw(points)
	s.WriteString(st.scene.Render(m.scene.String()) + "\n")

	s.WriteString(st.label.Render("body") + st.value.Render("x") + st.value.Render("y") + st.value.Render("z") + "\n")
	for i, id := range m.ids {
		pos, ok := m.positions[id]
		if !ok {
			s.WriteString(st.label.Render(fmt.Sprintf("  %d", id)) + st.subtle.Render("  waiting") + "\n")
			continue
		}
		cursor := "  "
		if i == m.selected {
			cursor = st.cursor.Render("> ")
		}
		y := pos[dynamo.CellY]
		bar := st.falling
		if y == 0 {
			bar = st.resting
		}
		s.WriteString(cursor + st.label.Render(fmt.Sprint(id)) +
			st.value.Render(fmt.Sprintf("%.3f", pos[dynamo.CellX])) +
			st.value.Render(fmt.Sprintf("%.3f", y)) +
			st.value.Render(fmt.Sprintf("%.3f", pos[dynamo.CellZ])) + "  " +
			bar.Render(HeightBar(m.heightFrac(y), barWidth)) + "\n")
	}

	if len(m.history) > 1 && len(m.ids) > 0 {
		graph := asciigraph.Plot(m.history,
			asciigraph.Height(8),
			asciigraph.Width(sceneWidth),
			asciigraph.LowerBound(0),
			asciigraph.Caption(fmt.Sprintf("body %d height", m.ids[m.selected])))
		s.WriteString(st.graph.Render(graph) + "\n")
	}

	if m.err != nil {
		s.WriteString(st.err.Render("error: "+m.err.Error()) + "\n")
	}
	s.WriteString(st.subtle.Render("space pause  j/k select  t theme  q quit"))
	return s.String()
}

func (m Model) heightFrac(y float32) float64 {
	if m.maxY <= 0 {
		return 0
	}
	return float64(y / m.maxY)
}

// Run starts the watch program on the terminal.
func Run(fetch Fetcher, opts Options) error {
	_, err := tea.NewProgram(NewModel(fetch, opts), tea.WithAltScreen()).Run()
	return err
}
