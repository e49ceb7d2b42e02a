package enrichment

import (
	"context"

	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

// RegistryClient looks up package metadata from one package registry.
type RegistryClient interface {
	GetPackageInfo(ctx context.Context, name, version string) (Info, error)
}

// SecurityClient looks up vulnerability information for a package.
type SecurityClient interface {
	GetSecurityInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error)
}

// TrustClient looks up signature and reputation information for a package.
type TrustClient interface {
	GetTrustInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error)
}

// RegistryFunc adapts a function to RegistryClient.
type RegistryFunc func(ctx context.Context, name, version string) (Info, error)

// GetPackageInfo calls f.
func (f RegistryFunc) GetPackageInfo(ctx context.Context, name, version string) (Info, error) {
	return f(ctx, name, version)
}

// SecurityFunc adapts a function to SecurityClient.
type SecurityFunc func(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error)

// GetSecurityInfo calls f.
func (f SecurityFunc) GetSecurityInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
	return f(ctx, name, version, pm)
}

// TrustFunc adapts a function to TrustClient.
type TrustFunc func(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error)

// GetTrustInfo calls f.
func (f TrustFunc) GetTrustInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
	return f(ctx, name, version, pm)
}

// PlaceholderRegistry returns no registry data. Risk scoring then falls back
// to its defaults for age, downloads and maintainers.
type PlaceholderRegistry struct{}

// GetPackageInfo returns an empty Info.
func (PlaceholderRegistry) GetPackageInfo(ctx context.Context, name, version string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Info{}, nil
}

// DefaultRegistries returns a placeholder registry per supported package manager.
func DefaultRegistries() map[sbom.PackageManager]RegistryClient {
	return map[sbom.PackageManager]RegistryClient{
		sbom.PackageManagerNPM:      PlaceholderRegistry{},
		sbom.PackageManagerPyPI:     PlaceholderRegistry{},
		sbom.PackageManagerMaven:    PlaceholderRegistry{},
		sbom.PackageManagerNuGet:    PlaceholderRegistry{},
		sbom.PackageManagerRubyGems: PlaceholderRegistry{},
		sbom.PackageManagerGolang:   PlaceholderRegistry{},
	}
}

// PlaceholderSecurity reports no known vulnerabilities.
type PlaceholderSecurity struct{}

// GetSecurityInfo returns zero vulnerability counts.
func (PlaceholderSecurity) GetSecurityInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Info{
		KeyVulnerabilityCount:      0,
		KeyCriticalVulnerabilities: 0,
		KeySecurityAdvisories:      []string{},
	}, nil
}

// PlaceholderTrust reports an unsigned package with neutral reputation.
type PlaceholderTrust struct{}

// GetTrustInfo returns neutral trust data.
func (PlaceholderTrust) GetTrustInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Info{
		KeySigned:               false,
		KeyMaintainerReputation: 0.5,
		KeySecurityIncidents:    0,
	}, nil
}
