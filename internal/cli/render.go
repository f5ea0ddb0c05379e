package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	accent = lipgloss.Color("#0EA5E9")
	dim    = lipgloss.Color("#6B7280")
	danger = lipgloss.Color("#EF4444")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	errorStyle  = lipgloss.NewStyle().Foreground(danger).Bold(true)
	fieldStyle  = lipgloss.NewStyle().Foreground(danger)
)

// emit writes v as JSON or YAML, or calls human for the table view.
func (app *App) emit(cmd *cobra.Command, v any, human func() string) error {
	out := cmd.OutOrStdout()
	switch app.output {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		raw, err := toYAML(v)
		if err != nil {
			return err
		}
		_, err = out.Write(raw)
		return err
	default:
		_, err := fmt.Fprintln(out, human())
		return err
	}
}

// toYAML goes through JSON so field names and number formats match the
// JSON output. JSON is valid YAML, so the node keeps key order.
func toYAML(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode output")
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, errors.Wrap(err, "convert output to yaml")
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, errors.Wrap(err, "encode yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode yaml")
	}
	return buf.Bytes(), nil
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, child := range n.Content {
		blockStyle(child)
	}
}

func renderTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return dimStyle.Render("No records found.")
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func section(title, body string) string {
	return titleStyle.Render(title) + "\n" + body
}

// fieldErrorLines renders path: message pairs in a stable order.
func fieldErrorLines(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fieldStyle.Render("  • "+k+": ") + errs[k] + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
