package sbom

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// ErrUnsupportedFormat is returned when a document is neither CycloneDX nor SPDX JSON.
var ErrUnsupportedFormat = errors.New("unsupported sbom format")

// ReadFile reads and decodes the SBOM at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sbom file: %w", err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// Decode sniffs the document format and decodes it.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnsupportedFormat)
	}

	if trimmed[0] == '<' {
		return DecodeCycloneDX(bytes.NewReader(trimmed), cdx.BOMFileFormatXML)
	}

	var probe struct {
		BOMFormat   string `json:"bomFormat"`
		SPDXVersion string `json:"spdxVersion"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	switch {
	case strings.EqualFold(probe.BOMFormat, "CycloneDX"):
		return DecodeCycloneDX(bytes.NewReader(trimmed), cdx.BOMFileFormatJSON)
	case probe.SPDXVersion != "":
		return DecodeSPDX(bytes.NewReader(trimmed))
	default:
		return nil, ErrUnsupportedFormat
	}
}

// DecodeCycloneDX decodes a CycloneDX BOM in the given file format.
func DecodeCycloneDX(r io.Reader, format cdx.BOMFileFormat) (*Document, error) {
	bom := new(cdx.BOM)
	if err := cdx.NewBOMDecoder(r, format).Decode(bom); err != nil {
		return nil, fmt.Errorf("decode cyclonedx: %w", err)
	}
	return FromCycloneDX(bom), nil
}

// FromCycloneDX converts a decoded CycloneDX BOM. The metadata component is
// included so that dependencies declared on the root resolve. Nested
// components are flattened.
func FromCycloneDX(bom *cdx.BOM) *Document {
	doc := &Document{
		Format:       FormatCycloneDX,
		SpecVersion:  bom.SpecVersion.String(),
		SerialNumber: bom.SerialNumber,
	}

	if bom.Metadata != nil && bom.Metadata.Component != nil && bom.Metadata.Component.Name != "" {
		root := bom.Metadata.Component
		doc.Name = root.Name
		doc.Components = append(doc.Components, fromCDXComponent(root))
	}

	if bom.Components != nil {
		var walk func(components []cdx.Component)
		walk = func(components []cdx.Component) {
			for i := range components {
				doc.Components = append(doc.Components, fromCDXComponent(&components[i]))
				if components[i].Components != nil {
					walk(*components[i].Components)
				}
			}
		}
		walk(*bom.Components)
	}

	if bom.Dependencies != nil {
		for _, dep := range *bom.Dependencies {
			if dep.Dependencies == nil {
				continue
			}
			for _, child := range *dep.Dependencies {
				doc.Relationships = append(doc.Relationships, Relationship{
					SourceRef: dep.Ref,
					TargetRef: child,
					Kind:      RelationshipDependsOn,
				})
			}
		}
	}

	return doc
}

func fromCDXComponent(c *cdx.Component) Component {
	comp := Component{
		Ref:     c.BOMRef,
		Name:    c.Name,
		Version: c.Version,
		Type:    string(c.Type),
		PURL:    c.PackageURL,
		Scope:   string(c.Scope),
	}
	if c.Group != "" && c.PackageURL == "" {
		comp.Name = c.Group + "/" + c.Name
	}
	if comp.Ref == "" {
		comp.Ref = comp.PURL
	}

	if c.Licenses != nil {
		for _, choice := range *c.Licenses {
			switch {
			case choice.Expression != "":
				comp.Licenses = append(comp.Licenses, choice.Expression)
			case choice.License != nil && choice.License.ID != "":
				comp.Licenses = append(comp.Licenses, choice.License.ID)
			case choice.License != nil && choice.License.Name != "":
				comp.Licenses = append(comp.Licenses, choice.License.Name)
			}
		}
	}

	if c.Hashes != nil {
		for _, h := range *c.Hashes {
			comp.Hashes = append(comp.Hashes, string(h.Algorithm)+":"+h.Value)
		}
	}

	return comp
}

// spdxDocument is the subset of SPDX 2.x JSON the analyzer reads.
type spdxDocument struct {
	SPDXVersion   string             `json:"spdxVersion"`
	SPDXID        string             `json:"SPDXID"`
	Name          string             `json:"name"`
	Namespace     string             `json:"documentNamespace"`
	Packages      []spdxPackage      `json:"packages"`
	Relationships []spdxRelationship `json:"relationships"`
}

type spdxPackage struct {
	SPDXID           string            `json:"SPDXID"`
	Name             string            `json:"name"`
	VersionInfo      string            `json:"versionInfo"`
	LicenseConcluded string            `json:"licenseConcluded"`
	LicenseDeclared  string            `json:"licenseDeclared"`
	ExternalRefs     []spdxExternalRef `json:"externalRefs"`
	Checksums        []spdxChecksum    `json:"checksums"`
}

type spdxExternalRef struct {
	Category string `json:"referenceCategory"`
	Type     string `json:"referenceType"`
	Locator  string `json:"referenceLocator"`
}

type spdxChecksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"checksumValue"`
}

type spdxRelationship struct {
	Element string `json:"spdxElementId"`
	Type    string `json:"relationshipType"`
	Related string `json:"relatedSpdxElement"`
}

// DecodeSPDX decodes an SPDX 2.x JSON document. DEPENDENCY_OF style
// relationships are reversed into depends_on edges; the dev and optional
// variants also set the dependent component's scope.
func DecodeSPDX(r io.Reader) (*Document, error) {
	var raw spdxDocument
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode spdx: %w", err)
	}

	doc := &Document{
		Format:       FormatSPDX,
		SpecVersion:  raw.SPDXVersion,
		SerialNumber: raw.Namespace,
		Name:         raw.Name,
	}

	index := make(map[string]int, len(raw.Packages))
	for _, p := range raw.Packages {
		comp := Component{
			Ref:     p.SPDXID,
			Name:    p.Name,
			Version: p.VersionInfo,
		}
		for _, license := range []string{p.LicenseConcluded, p.LicenseDeclared} {
			if license != "" && license != "NOASSERTION" && license != "NONE" {
				comp.Licenses = append(comp.Licenses, license)
				break
			}
		}
		for _, ref := range p.ExternalRefs {
			if ref.Type == "purl" && comp.PURL == "" {
				comp.PURL = ref.Locator
			}
		}
		for _, c := range p.Checksums {
			comp.Hashes = append(comp.Hashes, c.Algorithm+":"+c.Value)
		}
		index[p.SPDXID] = len(doc.Components)
		doc.Components = append(doc.Components, comp)
	}

	for _, rel := range raw.Relationships {
		switch strings.ToUpper(rel.Type) {
		case "DEPENDS_ON":
			doc.Relationships = append(doc.Relationships, Relationship{
				SourceRef: rel.Element, TargetRef: rel.Related, Kind: RelationshipDependsOn,
			})
		case "DEPENDENCY_OF", "RUNTIME_DEPENDENCY_OF", "BUILD_DEPENDENCY_OF":
			doc.Relationships = append(doc.Relationships, Relationship{
				SourceRef: rel.Related, TargetRef: rel.Element, Kind: RelationshipDependsOn,
			})
		case "DEV_DEPENDENCY_OF", "OPTIONAL_DEPENDENCY_OF":
			scope := ScopeDev
			if strings.HasPrefix(strings.ToUpper(rel.Type), "OPTIONAL") {
				scope = ScopeOptional
			}
			if i, ok := index[rel.Element]; ok {
				doc.Components[i].Scope = scope
			}
			doc.Relationships = append(doc.Relationships, Relationship{
				SourceRef: rel.Related, TargetRef: rel.Element, Kind: RelationshipDependsOn,
			})
		case "DESCRIBES":
			doc.Relationships = append(doc.Relationships, Relationship{
				SourceRef: rel.Element, TargetRef: rel.Related, Kind: RelationshipDescribes,
			})
		case "CONTAINS":
			doc.Relationships = append(doc.Relationships, Relationship{
				SourceRef: rel.Element, TargetRef: rel.Related, Kind: RelationshipContains,
			})
		}
	}

	return doc, nil
}
