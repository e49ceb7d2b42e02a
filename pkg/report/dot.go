package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/quantumlayerhq/ql-supplychain/pkg/supplychain"
)

var riskFill = map[supplychain.RiskLevel]string{
	supplychain.RiskMinimal:  "#d9f2d9",
	supplychain.RiskLow:      "#b3e6b3",
	supplychain.RiskMedium:   "#ffe699",
	supplychain.RiskHigh:     "#ffb366",
	supplychain.RiskCritical: "#ff6666",
}

// dotEscaper escapes quoted DOT strings. UTF-8 is written as is and a
// newline becomes the centered line break escape.
var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", "")

func quote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}

// WriteDOT renders the dependency graph in Graphviz DOT. Nodes are filled
// by risk level, single points of failure are drawn as double octagons and
// edges on a cycle are red.
func WriteDOT(w io.Writer, a *supplychain.Analysis) error {
	bw := bufio.NewWriter(w)

	spof := make(map[string]bool, len(a.SinglePointsOfFailure))
	for _, id := range a.SinglePointsOfFailure {
		spof[id] = true
	}
	cycleEdges := make(map[[2]string]bool)
	for _, c := range a.CircularDependencies {
		for i := range c {
			cycleEdges[[2]string{c[i], c[(i+1)%len(c)]}] = true
		}
	}

	fmt.Fprintf(bw, "digraph %s {\n", quote("supply-chain"))
	fmt.Fprintf(bw, "  label=%s;\n", quote(fmt.Sprintf("Supply chain score %s/10", score(a.SupplyChainScore))))
	bw.WriteString("  rankdir=LR;\n")
	bw.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")

	for _, n := range a.Nodes {
		shape := "box"
		if spof[n.ID] {
			shape = "doubleoctagon"
		}
		fill, ok := riskFill[n.RiskLevel]
		if !ok {
			fill = "#ffffff"
		}
		label := fmt.Sprintf("%s\nrisk %s", n.ID, score(n.RiskScore))
		fmt.Fprintf(bw, "  %s [label=%s, shape=%s, fillcolor=%s];\n",
			quote(n.ID), quote(label), shape, quote(fill))
	}

	for _, e := range a.Edges {
		attrs := ""
		switch {
		case cycleEdges[[2]string{e.SourceID, e.TargetID}]:
			attrs = " [color=red, penwidth=2]"
		case e.DependencyType == supplychain.DependencyDev || e.DependencyType == supplychain.DependencyOptional:
			attrs = " [style=dashed]"
		}
		fmt.Fprintf(bw, "  %s -> %s%s;\n", quote(e.SourceID), quote(e.TargetID), attrs)
	}

	bw.WriteString("}\n")
	return bw.Flush()
}
