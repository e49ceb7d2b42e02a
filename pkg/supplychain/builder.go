package supplychain

import (
	"fmt"

	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

// built is the graph produced from one SBOM document.
type built struct {
	g       *graph
	scopes  []string
	dropped int
}

// nodeID is the identifier of a component within one analysis.
func nodeID(name, version string) string {
	return name + "@" + version
}

// build turns SBOM components and depends_on relationships into a graph.
// Duplicate components collapse into their first occurrence. Relationships
// naming unknown components are dropped and counted, or rejected in strict
// mode.
func (a *Analyzer) build(doc *sbom.Document) (*built, error) {
	b := &built{g: newGraph()}
	refs := make(map[string]int, len(doc.Components)*3)

	alias := func(key string, v int) {
		if key == "" {
			return
		}
		if _, ok := refs[key]; !ok {
			refs[key] = v
		}
	}

	for _, c := range doc.Components {
		id := nodeID(c.Name, c.Version)
		if v, ok := b.g.index[id]; ok {
			alias(c.Ref, v)
			alias(c.PURL, v)
			continue
		}

		pm := sbom.PackageManagerFromPURL(c.PURL)
		metadata := map[string]any{}
		if c.Ref != "" {
			metadata["ref"] = c.Ref
		}
		if c.Type != "" {
			metadata["type"] = c.Type
		}
		if c.Scope != "" {
			metadata["scope"] = c.Scope
		}
		if len(c.Licenses) > 0 {
			metadata["licenses"] = c.Licenses
		}
		if len(c.Hashes) > 0 {
			metadata["hashes"] = c.Hashes
		}

		v := b.g.addNode(&Node{
			ID:             id,
			Name:           c.Name,
			Version:        c.Version,
			PURL:           c.PURL,
			PackageManager: pm,
			Metadata:       metadata,
		})
		b.scopes = append(b.scopes, c.Scope)
		alias(c.Ref, v)
		alias(c.PURL, v)
		alias(id, v)
	}

	for _, rel := range doc.Relationships {
		if rel.Kind != sbom.RelationshipDependsOn {
			continue
		}
		from, okFrom := refs[rel.SourceRef]
		to, okTo := refs[rel.TargetRef]
		if !okFrom || !okTo {
			missing := rel.SourceRef
			if okFrom {
				missing = rel.TargetRef
			}
			if a.opts.StrictReferences {
				return nil, fmt.Errorf("%w: %q in %s -> %s",
					ErrDanglingReference, missing, rel.SourceRef, rel.TargetRef)
			}
			b.dropped++
			a.logger.Warn("dropping relationship with unknown component",
				"source_ref", rel.SourceRef,
				"target_ref", rel.TargetRef,
				"missing", missing,
			)
			continue
		}
		b.g.addEdge(from, to)
	}

	return b, nil
}
