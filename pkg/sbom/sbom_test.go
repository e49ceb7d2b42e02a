package sbom

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatIsValid(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   bool
	}{
		{name: "valid spdx", format: FormatSPDX, want: true},
		{name: "valid cyclonedx", format: FormatCycloneDX, want: true},
		{name: "invalid format", format: Format("invalid"), want: false},
		{name: "empty format", format: Format(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("Format.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{name: "spdx", format: FormatSPDX, want: "spdx"},
		{name: "cyclonedx", format: FormatCycloneDX, want: "cyclonedx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("Format.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

const cycloneDXJSON = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.5",
  "serialNumber": "urn:uuid:3e671687-395b-41f5-a30f-a58921a69b79",
  "version": 1,
  "metadata": {
    "component": {"bom-ref": "app", "type": "application", "name": "app", "version": "1.0.0"}
  },
  "components": [
    {
      "bom-ref": "pkg:npm/express@4.18.2",
      "type": "library",
      "name": "express",
      "version": "4.18.2",
      "purl": "pkg:npm/express@4.18.2",
      "licenses": [{"license": {"id": "MIT"}}],
      "hashes": [{"alg": "SHA-256", "content": "abc123"}],
      "components": [
        {"bom-ref": "pkg:npm/debug@2.6.9", "type": "library", "name": "debug", "version": "2.6.9", "purl": "pkg:npm/debug@2.6.9"}
      ]
    },
    {
      "bom-ref": "pkg:npm/jest@29.0.0",
      "type": "library",
      "name": "jest",
      "version": "29.0.0",
      "purl": "pkg:npm/jest@29.0.0",
      "scope": "excluded"
    }
  ],
  "dependencies": [
    {"ref": "app", "dependsOn": ["pkg:npm/express@4.18.2", "pkg:npm/jest@29.0.0"]},
    {"ref": "pkg:npm/express@4.18.2", "dependsOn": ["pkg:npm/debug@2.6.9"]},
    {"ref": "pkg:npm/debug@2.6.9"}
  ]
}`

const spdxJSON = `{
  "spdxVersion": "SPDX-2.3",
  "SPDXID": "SPDXRef-DOCUMENT",
  "name": "service",
  "documentNamespace": "https://example.com/service-1",
  "packages": [
    {"SPDXID": "SPDXRef-root", "name": "service", "versionInfo": "0.1.0", "licenseConcluded": "NOASSERTION", "licenseDeclared": "Apache-2.0"},
    {
      "SPDXID": "SPDXRef-requests", "name": "requests", "versionInfo": "2.31.0",
      "licenseConcluded": "Apache-2.0",
      "externalRefs": [{"referenceCategory": "PACKAGE-MANAGER", "referenceType": "purl", "referenceLocator": "pkg:pypi/requests@2.31.0"}],
      "checksums": [{"algorithm": "SHA256", "checksumValue": "deadbeef"}]
    },
    {"SPDXID": "SPDXRef-urllib3", "name": "urllib3", "versionInfo": "2.0.7"},
    {"SPDXID": "SPDXRef-pytest", "name": "pytest", "versionInfo": "7.4.0"}
  ],
  "relationships": [
    {"spdxElementId": "SPDXRef-DOCUMENT", "relationshipType": "DESCRIBES", "relatedSpdxElement": "SPDXRef-root"},
    {"spdxElementId": "SPDXRef-root", "relationshipType": "DEPENDS_ON", "relatedSpdxElement": "SPDXRef-requests"},
    {"spdxElementId": "SPDXRef-urllib3", "relationshipType": "DEPENDENCY_OF", "relatedSpdxElement": "SPDXRef-requests"},
    {"spdxElementId": "SPDXRef-pytest", "relationshipType": "DEV_DEPENDENCY_OF", "relatedSpdxElement": "SPDXRef-root"}
  ]
}`

func TestDecodeCycloneDXJSON(t *testing.T) {
	doc, err := Decode([]byte(cycloneDXJSON))
	require.NoError(t, err)

	assert.Equal(t, FormatCycloneDX, doc.Format)
	assert.Equal(t, "1.5", doc.SpecVersion)
	assert.Equal(t, "app", doc.Name)
	require.Len(t, doc.Components, 4)

	names := make([]string, 0, len(doc.Components))
	for _, c := range doc.Components {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"app", "express", "debug", "jest"}, names)

	express := doc.Components[1]
	assert.Equal(t, "pkg:npm/express@4.18.2", express.Ref)
	assert.Equal(t, []string{"MIT"}, express.Licenses)
	assert.Equal(t, []string{"SHA-256:abc123"}, express.Hashes)
	assert.Equal(t, ScopeExcluded, doc.Components[3].Scope)

	assert.Equal(t, []Relationship{
		{SourceRef: "app", TargetRef: "pkg:npm/express@4.18.2", Kind: RelationshipDependsOn},
		{SourceRef: "app", TargetRef: "pkg:npm/jest@29.0.0", Kind: RelationshipDependsOn},
		{SourceRef: "pkg:npm/express@4.18.2", TargetRef: "pkg:npm/debug@2.6.9", Kind: RelationshipDependsOn},
	}, doc.Relationships)
}

func TestDecodeSPDXJSON(t *testing.T) {
	doc, err := Decode([]byte(spdxJSON))
	require.NoError(t, err)

	assert.Equal(t, FormatSPDX, doc.Format)
	assert.Equal(t, "SPDX-2.3", doc.SpecVersion)
	require.Len(t, doc.Components, 4)

	assert.Equal(t, []string{"Apache-2.0"}, doc.Components[0].Licenses)
	assert.Equal(t, "pkg:pypi/requests@2.31.0", doc.Components[1].PURL)
	assert.Equal(t, []string{"SHA256:deadbeef"}, doc.Components[1].Hashes)
	assert.Equal(t, ScopeDev, doc.Components[3].Scope)

	assert.Equal(t, []Relationship{
		{SourceRef: "SPDXRef-root", TargetRef: "SPDXRef-requests", Kind: RelationshipDependsOn},
		{SourceRef: "SPDXRef-requests", TargetRef: "SPDXRef-urllib3", Kind: RelationshipDependsOn},
		{SourceRef: "SPDXRef-root", TargetRef: "SPDXRef-pytest", Kind: RelationshipDependsOn},
	}, doc.DependsOn())
	assert.Len(t, doc.Relationships, 4)
}

func TestDecodeUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: "   "},
		{name: "not json", input: "name,version\nexpress,4.18.2"},
		{name: "unknown json", input: `{"packages": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestFromCycloneDXEmptyBOM(t *testing.T) {
	doc := FromCycloneDX(cdx.NewBOM())
	assert.Equal(t, FormatCycloneDX, doc.Format)
	assert.Empty(t, doc.Components)
	assert.Empty(t, doc.Relationships)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.json")
	require.NoError(t, os.WriteFile(path, []byte(cycloneDXJSON), 0o600))

	doc, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Components, 4)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPackageManagerFromPURL(t *testing.T) {
	tests := []struct {
		purl string
		want PackageManager
	}{
		{purl: "pkg:npm/express@4.18.2", want: PackageManagerNPM},
		{purl: "pkg:npm/%40babel/core@7.0.0", want: PackageManagerNPM},
		{purl: "pkg:pypi/requests@2.31.0", want: PackageManagerPyPI},
		{purl: "pkg:maven/org.apache.commons/commons-lang3@3.12.0", want: PackageManagerMaven},
		{purl: "pkg:nuget/Newtonsoft.Json@13.0.1", want: PackageManagerNuGet},
		{purl: "pkg:gem/rails@7.0.0", want: PackageManagerRubyGems},
		{purl: "pkg:golang/github.com/spf13/cobra@v1.10.2", want: PackageManagerGolang},
		{purl: "pkg:deb/debian/curl@7.88.1", want: PackageManagerUnknown},
		{purl: "not-a-purl", want: PackageManagerUnknown},
		{purl: "", want: PackageManagerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.purl, func(t *testing.T) {
			assert.Equal(t, tt.want, PackageManagerFromPURL(tt.purl))
		})
	}
}

func TestBuildPURL(t *testing.T) {
	tests := []struct {
		name    string
		pm      PackageManager
		pkgName string
		version string
		prefix  string
	}{
		{name: "npm", pm: PackageManagerNPM, pkgName: "lodash", version: "4.17.21", prefix: "pkg:npm/lodash@4.17.21"},
		{name: "npm scoped", pm: PackageManagerNPM, pkgName: "@babel/core", version: "7.0.0", prefix: "pkg:npm/"},
		{name: "pypi", pm: PackageManagerPyPI, pkgName: "requests", version: "2.31.0", prefix: "pkg:pypi/requests@2.31.0"},
		{name: "maven", pm: PackageManagerMaven, pkgName: "org.slf4j:slf4j-api", version: "2.0.9", prefix: "pkg:maven/org.slf4j/slf4j-api@2.0.9"},
		{name: "golang", pm: PackageManagerGolang, pkgName: "github.com/google/uuid", version: "v1.6.0", prefix: "pkg:golang/github.com/google/uuid@v1.6.0"},
		{name: "unknown", pm: PackageManagerUnknown, pkgName: "thing", version: "1", prefix: "pkg:generic/thing@1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPURL(tt.pm, tt.pkgName, tt.version)
			assert.True(t, strings.HasPrefix(got, tt.prefix), "got %s", got)
			if tt.pm != PackageManagerUnknown {
				assert.Equal(t, tt.pm, PackageManagerFromPURL(got))
			}
		})
	}
}

func TestOSVEcosystem(t *testing.T) {
	assert.Equal(t, "npm", OSVEcosystem(PackageManagerNPM))
	assert.Equal(t, "PyPI", OSVEcosystem(PackageManagerPyPI))
	assert.Equal(t, "Go", OSVEcosystem(PackageManagerGolang))
	assert.Equal(t, "RubyGems", OSVEcosystem(PackageManagerRubyGems))
	assert.Equal(t, "", OSVEcosystem(PackageManagerUnknown))
}
