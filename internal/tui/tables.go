package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/plugin"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

// NewTable returns a table with the shared header and cell styles.
func NewTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TableHeader
			}
			return styles.TableCell
		}).
		Headers(headers...)
}

// LayerTable renders layers bottom first.
func LayerTable(layers []layer.State) string {
	t := NewTable("#", "ID", "TYPE", "CATEGORY", "VISIBLE", "OPACITY", "APPLIED", "ERROR")
	for _, l := range layers {
		t.Row(
			strconv.Itoa(l.Order),
			l.ID,
			l.Type,
			string(l.Category),
			strconv.FormatBool(l.Visible),
			fmt.Sprintf("%.2f", l.Opacity),
			styles.Check(l.Applied),
			Truncate(l.Error, 40),
		)
	}
	return t.String()
}

// PluginTable renders plugins in registration order.
func PluginTable(plugins []plugin.State) string {
	t := NewTable("#", "ID", "NAME", "VERSION", "SCHEMA", "ACTIVE", "LAST ERROR")
	for _, p := range plugins {
		t.Row(
			strconv.Itoa(p.Order),
			p.ID,
			p.Name,
			p.Version,
			strconv.Itoa(p.SchemaVersion),
			styles.Check(p.Active),
			Truncate(p.LastError, 40),
		)
	}
	return t.String()
}
