package sbom

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

// PackageManagerFromPURL detects the ecosystem of a package URL.
// Invalid or unrecognised purls yield PackageManagerUnknown.
func PackageManagerFromPURL(purl string) PackageManager {
	if purl == "" {
		return PackageManagerUnknown
	}
	p, err := packageurl.FromString(purl)
	if err != nil {
		return PackageManagerUnknown
	}
	return packageManagerFromType(p.Type)
}

func packageManagerFromType(purlType string) PackageManager {
	switch strings.ToLower(purlType) {
	case packageurl.TypeNPM:
		return PackageManagerNPM
	case packageurl.TypePyPi:
		return PackageManagerPyPI
	case packageurl.TypeMaven:
		return PackageManagerMaven
	case packageurl.TypeNuget:
		return PackageManagerNuGet
	case packageurl.TypeGem:
		return PackageManagerRubyGems
	case packageurl.TypeGolang:
		return PackageManagerGolang
	default:
		return PackageManagerUnknown
	}
}

// BuildPURL builds a package URL for a component of a known ecosystem.
// Maven names of the form "group:artifact" and npm scoped names are split
// into namespace and name.
func BuildPURL(pm PackageManager, name, version string) string {
	var purlType, namespace string

	switch pm {
	case PackageManagerNPM:
		purlType = packageurl.TypeNPM
		if strings.HasPrefix(name, "@") {
			if i := strings.Index(name, "/"); i > 0 {
				namespace, name = name[:i], name[i+1:]
			}
		}
	case PackageManagerPyPI:
		purlType = packageurl.TypePyPi
	case PackageManagerMaven:
		purlType = packageurl.TypeMaven
		if i := strings.Index(name, ":"); i > 0 {
			namespace, name = name[:i], name[i+1:]
		}
	case PackageManagerNuGet:
		purlType = packageurl.TypeNuget
	case PackageManagerRubyGems:
		purlType = packageurl.TypeGem
	case PackageManagerGolang:
		purlType = packageurl.TypeGolang
		if i := strings.LastIndex(name, "/"); i > 0 {
			namespace, name = name[:i], name[i+1:]
		}
	default:
		purlType = packageurl.TypeGeneric
	}

	purl := packageurl.NewPackageURL(purlType, namespace, name, version, nil, "")
	return purl.ToString()
}

// OSVEcosystem maps a package manager to its OSV ecosystem name.
// An empty string means OSV does not cover the ecosystem.
func OSVEcosystem(pm PackageManager) string {
	switch pm {
	case PackageManagerNPM:
		return "npm"
	case PackageManagerPyPI:
		return "PyPI"
	case PackageManagerGolang:
		return "Go"
	case PackageManagerMaven:
		return "Maven"
	case PackageManagerNuGet:
		return "NuGet"
	case PackageManagerRubyGems:
		return "RubyGems"
	default:
		return ""
	}
}
