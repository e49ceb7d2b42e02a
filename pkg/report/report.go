// Package report renders a supply-chain analysis for people and tools:
// JSON, CSV, HTML and Markdown reports, a terminal summary and a Graphviz
// DOT view of the dependency graph.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quantumlayerhq/ql-supplychain/pkg/supplychain"
)

// ErrUnsupportedFormat is returned for an unknown report format.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Format is a report output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatHTML, FormatMarkdown}

// Report and graph file base names.
const (
	ReportBaseName = "supply-chain-analysis"
	GraphFileName  = "supply-chain-graph.dot"
)

// ParseFormat parses a format name. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatHTML, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Extension returns the file extension of the format.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Write renders the analysis in format f.
func Write(w io.Writer, a *supplychain.Analysis, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	case FormatCSV:
		_, err := fmt.Fprintln(w, nodeTable(a).RenderCSV())
		return err
	case FormatHTML:
		return writeHTML(w, a)
	case FormatMarkdown:
		return writeMarkdown(w, a)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Export writes the report, and the DOT graph when withGraph is set, into
// dir. It returns the paths written.
func Export(dir string, a *supplychain.Analysis, f Format, withGraph bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	reportPath := filepath.Join(dir, ReportBaseName+"."+f.Extension())
	if err := writeFile(reportPath, func(w io.Writer) error { return Write(w, a, f) }); err != nil {
		return nil, err
	}
	paths := []string{reportPath}

	if withGraph {
		graphPath := filepath.Join(dir, GraphFileName)
		if err := writeFile(graphPath, func(w io.Writer) error { return WriteDOT(w, a) }); err != nil {
			return paths, err
		}
		paths = append(paths, graphPath)
	}
	return paths, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Summary prints a short terminal overview of the analysis.
func Summary(w io.Writer, a *supplychain.Analysis) {
	tw := summaryTable(a)
	tw.SetStyle(table.StyleLight)
	_, _ = fmt.Fprintln(w, tw.Render())

	risky := riskiest(a, 5)
	if len(risky) == 0 {
		return
	}
	rt := table.NewWriter()
	rt.SetStyle(table.StyleLight)
	rt.AppendHeader(table.Row{"Component", "Risk", "Level", "Trust"})
	for _, n := range risky {
		rt.AppendRow(table.Row{n.ID, score(n.RiskScore), levelColor(n.RiskLevel).Sprint(n.RiskLevel), n.TrustLevel})
	}
	_, _ = fmt.Fprintln(w, rt.Render())
}

func summaryRows(a *supplychain.Analysis) []table.Row {
	rows := []table.Row{
		{"Supply chain score", score(a.SupplyChainScore) + "/10"},
		{"Components", a.TotalNodes},
		{"Dependencies", a.TotalEdges},
		{"Max depth", a.MaxDepth},
		{"Average degree", score(a.AverageDegree)},
		{"Circular dependencies", len(a.CircularDependencies)},
		{"Single points of failure", len(a.SinglePointsOfFailure)},
		{"Orphaned dependencies", len(a.OrphanedDependencies)},
		{"Vulnerable paths", len(a.VulnerablePaths)},
	}
	if a.DroppedRelationships > 0 {
		rows = append(rows, table.Row{"Dropped relationships", a.DroppedRelationships})
	}
	if a.EnrichmentErrors > 0 {
		rows = append(rows, table.Row{"Enrichment errors", a.EnrichmentErrors})
	}
	if a.Partial {
		rows = append(rows, table.Row{"Partial", "yes"})
	}
	return rows
}

func nodeTable(a *supplychain.Analysis) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{
		"ID", "Name", "Version", "Package Manager", "Dependency Type", "Depth",
		"Trust Level", "Risk Score", "Risk Level", "Vulnerabilities", "Critical",
	})
	for _, n := range a.Nodes {
		tw.AppendRow(table.Row{
			n.ID, n.Name, n.Version, string(n.PackageManager), string(n.DependencyType), n.Depth,
			string(n.TrustLevel), score(n.RiskScore), string(n.RiskLevel),
			n.SecurityMetrics.VulnerabilityCount, n.SecurityMetrics.CriticalVulnerabilities,
		})
	}
	return tw
}

func distributionTable(a *supplychain.Analysis) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Risk Level", "Components"})
	for _, level := range supplychain.RiskLevels {
		tw.AppendRow(table.Row{string(level), a.RiskDistribution[level]})
	}
	return tw
}

func trustTable(a *supplychain.Analysis) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Trust Level", "Components"})
	for _, level := range supplychain.TrustLevels {
		tw.AppendRow(table.Row{string(level), a.TrustDistribution[level]})
	}
	return tw
}

func summaryTable(a *supplychain.Analysis) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Metric", "Value"})
	for _, row := range summaryRows(a) {
		tw.AppendRow(row)
	}
	return tw
}

func writeMarkdown(w io.Writer, a *supplychain.Analysis) error {
	var b strings.Builder
	b.WriteString("# Supply Chain Analysis\n\n")
	fmt.Fprintf(&b, "Analysis `%s`", a.ID)
	if a.SBOMName != "" {
		fmt.Fprintf(&b, " of `%s`", a.SBOMName)
	}
	fmt.Fprintf(&b, " at %s\n\n", a.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))

	section(&b, "Summary", summaryTable(a).RenderMarkdown())
	section(&b, "Risk Distribution", distributionTable(a).RenderMarkdown())
	section(&b, "Trust Distribution", trustTable(a).RenderMarkdown())
	section(&b, "Components", nodeTable(a).RenderMarkdown())

	pathSection(&b, "Circular Dependencies", a.CircularDependencies, " -> ", true)
	pathSection(&b, "Critical Paths", a.CriticalPaths, " -> ", false)
	pathSection(&b, "Vulnerable Paths", a.VulnerablePaths, " -> ", false)
	listSection(&b, "Single Points of Failure", a.SinglePointsOfFailure)
	listSection(&b, "Orphaned Dependencies", a.OrphanedDependencies)
	listSection(&b, "Recommendations", a.Recommendations)

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", title, body)
}

func pathSection(b *strings.Builder, title string, paths [][]string, sep string, closed bool) {
	if len(paths) == 0 {
		return
	}
	items := make([]string, len(paths))
	for i, p := range paths {
		items[i] = "`" + joinPath(p, sep, closed) + "`"
	}
	listSection(b, title, items)
}

func listSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func joinPath(p []string, sep string, closed bool) string {
	s := strings.Join(p, sep)
	if closed && len(p) > 0 {
		s += sep + p[0]
	}
	return s
}

func writeHTML(w io.Writer, a *supplychain.Analysis) error {
	var b strings.Builder
	title := "Supply Chain Analysis"
	if a.SBOMName != "" {
		title += " - " + a.SBOMName
	}

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	b.WriteString("<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse;margin-bottom:1.5em}" +
		"td,th{border:1px solid #ccc;padding:4px 8px}th{background:#f0f0f0}</style>\n</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<p>Analysis <code>%s</code> at %s. Score <strong>%s/10</strong>.</p>\n",
		html.EscapeString(a.ID), a.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"), score(a.SupplyChainScore))

	htmlSection(&b, "Summary", summaryTable(a).RenderHTML())
	htmlSection(&b, "Risk Distribution", distributionTable(a).RenderHTML())
	htmlSection(&b, "Trust Distribution", trustTable(a).RenderHTML())
	htmlSection(&b, "Components", nodeTable(a).RenderHTML())

	htmlPaths(&b, "Circular Dependencies", a.CircularDependencies, true)
	htmlPaths(&b, "Critical Paths", a.CriticalPaths, false)
	htmlPaths(&b, "Vulnerable Paths", a.VulnerablePaths, false)
	htmlList(&b, "Single Points of Failure", a.SinglePointsOfFailure)
	htmlList(&b, "Orphaned Dependencies", a.OrphanedDependencies)
	htmlList(&b, "Recommendations", a.Recommendations)

	b.WriteString("</body>\n</html>\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func htmlSection(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "<h2>%s</h2>\n%s\n", html.EscapeString(title), body)
}

func htmlPaths(b *strings.Builder, title string, paths [][]string, closed bool) {
	items := make([]string, len(paths))
	for i, p := range paths {
		items[i] = joinPath(p, " → ", closed)
	}
	htmlList(b, title, items)
}

func htmlList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "<h2>%s</h2>\n<ul>\n", html.EscapeString(title))
	for _, item := range items {
		fmt.Fprintf(b, "<li>%s</li>\n", html.EscapeString(item))
	}
	b.WriteString("</ul>\n")
}

func riskiest(a *supplychain.Analysis, limit int) []supplychain.Node {
	nodes := make([]supplychain.Node, len(a.Nodes))
	copy(nodes, a.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].RiskScore != nodes[j].RiskScore {
			return nodes[i].RiskScore > nodes[j].RiskScore
		}
		return nodes[i].ID < nodes[j].ID
	})
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes
}

func levelColor(level supplychain.RiskLevel) text.Colors {
	switch level {
	case supplychain.RiskCritical:
		return text.Colors{text.FgHiRed, text.Bold}
	case supplychain.RiskHigh:
		return text.Colors{text.FgRed}
	case supplychain.RiskMedium:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgGreen}
	}
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
