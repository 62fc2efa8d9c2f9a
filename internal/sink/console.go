package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"golang.org/x/time/rate"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Console renders each snapshot as terminal tables, one per category.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	maxRows int
	limiter *rate.Limiter
}

// NewConsole creates a console sink. maxRows limits the rows shown per
// table; zero shows all.
func NewConsole(out io.Writer, maxRows int) *Console {
	return &Console{out: out, maxRows: maxRows}
}

// WithMinInterval drops snapshots that arrive less than d after the last
// rendered one. The first snapshot is always rendered.
func (c *Console) WithMinInterval(d time.Duration) *Console {
	if d > 0 {
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
	return c
}

func (c *Console) Name() string { return "console" }

func (c *Console) Publish(_ context.Context, snap table.Snapshot) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return nil
	}
	var b strings.Builder
	for _, d := range snap.Datasets {
		b.WriteString(RenderRows(d.Label(), d.Rows, c.maxRows))
		b.WriteString("\n")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, b.String())
	return err
}

func (c *Console) PublishHistory(_ context.Context, targets []target.Target) error {
	rows := make([]target.Row, len(targets))
	for i := range targets {
		rows[i] = targets[i].Row()
	}
	out := RenderRows("history", rows, c.maxRows) + "\n"

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, out)
	return err
}

func (c *Console) Close() error { return nil }

// RenderRows formats rows as a bordered table under a title.
func RenderRows(title string, rows []target.Row, maxRows int) string {
	shown := rows
	if maxRows > 0 && len(shown) > maxRows {
		shown = shown[:maxRows]
	}

	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(target.Columns...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range shown {
		t.Row(r.Strings()...)
	}

	heading := titleStyle.Render(fmt.Sprintf("%s (%d)", title, len(rows)))
	body := t.Render()
	if len(shown) < len(rows) {
		body += "\n" + mutedStyle.Render(fmt.Sprintf("… %d more", len(rows)-len(shown)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, heading, body)
}
