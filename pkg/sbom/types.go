// Package sbom decodes Software Bill of Materials documents into the component and
// relationship records consumed by the supply-chain analyzer.
package sbom

// Format represents the SBOM format type.
type Format string

const (
	// FormatSPDX represents the SPDX SBOM format (ISO/IEC 5962:2021).
	FormatSPDX Format = "spdx"
	// FormatCycloneDX represents the CycloneDX SBOM format (OWASP).
	FormatCycloneDX Format = "cyclonedx"
)

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is valid.
func (f Format) IsValid() bool {
	switch f {
	case FormatSPDX, FormatCycloneDX:
		return true
	default:
		return false
	}
}

// PackageManager identifies the ecosystem a component was published to.
type PackageManager string

const (
	PackageManagerNPM      PackageManager = "npm"
	PackageManagerPyPI     PackageManager = "pypi"
	PackageManagerMaven    PackageManager = "maven"
	PackageManagerNuGet    PackageManager = "nuget"
	PackageManagerRubyGems PackageManager = "rubygems"
	PackageManagerGolang   PackageManager = "golang"
	PackageManagerUnknown  PackageManager = "unknown"
)

// String returns the string representation of the package manager.
func (p PackageManager) String() string {
	return string(p)
}

// RelationshipKind is the kind of a relationship between two components.
type RelationshipKind string

const (
	// RelationshipDependsOn means the source component depends on the target.
	// It is the only kind the analyzer consumes.
	RelationshipDependsOn RelationshipKind = "depends_on"
	// RelationshipDescribes links a document to the components it describes.
	RelationshipDescribes RelationshipKind = "describes"
	// RelationshipContains links a component to a component it contains.
	RelationshipContains RelationshipKind = "contains"
)

// Component scopes, normalised across formats.
const (
	ScopeRequired = "required"
	ScopeOptional = "optional"
	ScopeExcluded = "excluded"
	ScopeDev      = "dev"
	ScopePeer     = "peer"
)

// Component is one package entry of an SBOM.
type Component struct {
	// Ref is the document-local reference (CycloneDX bom-ref or SPDXID).
	Ref      string   `json:"ref,omitempty"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Type     string   `json:"type,omitempty"`
	PURL     string   `json:"purl,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	Licenses []string `json:"licenses,omitempty"`
	Hashes   []string `json:"hashes,omitempty"` // "ALG:value"
}

// Relationship is a directed relationship between two component references.
type Relationship struct {
	SourceRef string           `json:"source_ref"`
	TargetRef string           `json:"target_ref"`
	Kind      RelationshipKind `json:"relationship_kind"`
}

// Document is a parsed SBOM reduced to its components and relationships.
type Document struct {
	Format        Format         `json:"format"`
	SpecVersion   string         `json:"spec_version,omitempty"`
	SerialNumber  string         `json:"serial_number,omitempty"`
	Name          string         `json:"name,omitempty"`
	Components    []Component    `json:"components"`
	Relationships []Relationship `json:"relationships"`
}

// DependsOn returns only the depends_on relationships of the document.
func (d *Document) DependsOn() []Relationship {
	var rels []Relationship
	for _, r := range d.Relationships {
		if r.Kind == RelationshipDependsOn {
			rels = append(rels, r)
		}
	}
	return rels
}
