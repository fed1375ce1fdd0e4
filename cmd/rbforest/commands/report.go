package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/rbforest/pkg/config"
	"github.com/Sumatoshi-tech/rbforest/pkg/safeconv"
)

// ErrValidationFailed is returned after the report when a tree fails validation.
var ErrValidationFailed = errors.New("forest validation failed")

const (
	statusPass = "PASS"
	statusFail = "FAIL"
)

// treeReport is the final state of one tree.
type treeReport struct {
	Name     string `json:"name"            yaml:"name"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Shard    int    `json:"shard"           yaml:"shard"`
	Len      int    `json:"len"             yaml:"len"`
	Capacity int    `json:"capacity"        yaml:"capacity"`
	Shared   int    `json:"shared"          yaml:"shared"`
}

// opReport counts one kind of operation.
type opReport struct {
	Op    string `json:"op"    yaml:"op"`
	Count int64  `json:"count" yaml:"count"`
	Hits  int64  `json:"hits"  yaml:"hits"`
}

// stressReport is the outcome of a stress run.
type stressReport struct {
	Operations     []opReport   `json:"operations"      yaml:"operations"`
	Trees          []treeReport `json:"trees"           yaml:"trees"`
	Seed           int64        `json:"seed"            yaml:"seed"`
	DroppedMoves   int64        `json:"dropped_moves"   yaml:"dropped_moves"`
	Workers        int          `json:"workers"         yaml:"workers"`
	Shards         int          `json:"shards"          yaml:"shards"`
	Keyspace       int          `json:"keyspace"        yaml:"keyspace"`
	ElapsedSeconds float64      `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Passed         bool         `json:"passed"          yaml:"passed"`
}

// hibernateReport is the outcome of a hibernate run.
type hibernateReport struct {
	Trees           []treeReport `json:"trees"            yaml:"trees"`
	Keys            int          `json:"keys"             yaml:"keys"`
	Shards          int          `json:"shards"           yaml:"shards"`
	RawBytes        int          `json:"raw_bytes"        yaml:"raw_bytes"`
	CompressedBytes int          `json:"compressed_bytes" yaml:"compressed_bytes"`
	HibernateMillis float64      `json:"hibernate_ms"     yaml:"hibernate_ms"`
	BootMillis      float64      `json:"boot_ms"          yaml:"boot_ms"`
	Passed          bool         `json:"passed"           yaml:"passed"`
}

func totalOps(ops []opReport) int64 {
	total := int64(0)
	for _, op := range ops {
		total += op.Count
	}

	return total
}

// writeStructured renders report as JSON or YAML. It reports false for the table format.
func writeStructured(writer io.Writer, format string, report any) (bool, error) {
	switch format {
	case config.FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(report)
		if err != nil {
			return true, fmt.Errorf("encode json report: %w", err)
		}

		return true, nil
	case config.FormatYAML:
		data, err := yaml.Marshal(report)
		if err != nil {
			return true, fmt.Errorf("encode yaml report: %w", err)
		}

		_, err = writer.Write(data)
		if err != nil {
			return true, fmt.Errorf("write yaml report: %w", err)
		}

		return true, nil
	default:
		return false, nil
	}
}

func newTable(writer io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(writer)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	return tbl
}

func status(passed bool) string {
	if passed {
		return color.New(color.FgGreen).Sprint(statusPass)
	}

	return color.New(color.FgRed).Sprint(statusFail)
}

func renderTrees(writer io.Writer, trees []treeReport) {
	tbl := newTable(writer)
	tbl.AppendHeader(table.Row{"Tree", "Shard", "Len", "Arena cap", "Arena len", "Status"})

	total := 0

	for _, tree := range trees {
		state := status(tree.Error == "")
		if tree.Error != "" {
			state += " " + tree.Error
		}

		tbl.AppendRow(table.Row{
			tree.Name,
			tree.Shard,
			humanize.Comma(int64(tree.Len)),
			humanize.Comma(int64(tree.Capacity)),
			humanize.Comma(int64(tree.Shared)),
			state,
		})

		total += tree.Len
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("%d trees", len(trees)), "", humanize.Comma(int64(total))})
	tbl.Render()
}

func renderStress(writer io.Writer, format string, report *stressReport) error {
	handled, err := writeStructured(writer, format, report)
	if handled {
		return err
	}

	ops := newTable(writer)
	ops.AppendHeader(table.Row{"Operation", "Count", "Hits"})

	for _, op := range report.Operations {
		ops.AppendRow(table.Row{op.Op, humanize.Comma(op.Count), humanize.Comma(op.Hits)})
	}

	total := totalOps(report.Operations)
	ops.AppendFooter(table.Row{"total", humanize.Comma(total)})
	ops.Render()

	renderTrees(writer, report.Trees)

	rate := 0.0
	if report.ElapsedSeconds > 0 {
		rate = float64(total) / report.ElapsedSeconds
	}

	fmt.Fprintf(writer, "%s  %s ops by %d workers over %d shards in %.3fs (%s ops/s, seed %d)\n",
		status(report.Passed),
		humanize.Comma(total),
		report.Workers,
		report.Shards,
		report.ElapsedSeconds,
		humanize.CommafWithDigits(rate, 0),
		report.Seed,
	)

	if report.DroppedMoves > 0 {
		fmt.Fprintf(writer, "%s moves dropped their entry: the key was reinserted into the source meanwhile\n",
			humanize.Comma(report.DroppedMoves))
	}

	return nil
}

func renderHibernate(writer io.Writer, format string, report *hibernateReport) error {
	handled, err := writeStructured(writer, format, report)
	if handled {
		return err
	}

	renderTrees(writer, report.Trees)

	ratio := 0.0
	if report.CompressedBytes > 0 {
		ratio = float64(report.RawBytes) / float64(report.CompressedBytes)
	}

	fmt.Fprintf(writer, "%s  %s keys in %d shards: %s raw, %s compressed (%.1fx), hibernate %.1fms, boot %.1fms\n",
		status(report.Passed),
		humanize.Comma(int64(report.Keys)),
		report.Shards,
		humanize.IBytes(safeconv.MustIntToUint64(report.RawBytes)),
		humanize.IBytes(safeconv.MustIntToUint64(report.CompressedBytes)),
		ratio,
		report.HibernateMillis,
		report.BootMillis,
	)

	return nil
}
