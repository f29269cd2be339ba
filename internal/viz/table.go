package viz

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// BackendRow describes one solver selector for display.
type BackendRow struct {
	Name       string
	Available  bool
	VectorSize int
	MaxCells   int
	Note       string
}

func BackendTable(theme Theme, rows []BackendRow) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Muted)).
		Headers("SOLVER", "AVAILABLE", "VECTOR", "MAX CELLS", "NOTE")

	for _, r := range rows {
		avail := "no"
		if r.Available {
			avail = "yes"
		}
		vector, cells := "-", "-"
		if r.Available {
			vector = strconv.Itoa(r.VectorSize)
			cells = strconv.Itoa(r.MaxCells)
		}
		t.Row(r.Name, avail, vector, cells, r.Note)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		s := lipgloss.NewStyle().Padding(0, 1)
		switch {
		case row == table.HeaderRow:
			return s.Bold(true).Foreground(theme.Primary)
		case col == 1 && rows[row].Available:
			return s.Foreground(theme.Success)
		case col == 1:
			return s.Foreground(theme.Error)
		}
		return s.Foreground(theme.Text)
	})
	return t.String()
}
