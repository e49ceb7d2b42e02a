package enrichment

import (
	"context"

	"github.com/quantumlayerhq/ql-supplychain/pkg/resilience"
	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

// GuardRegistry routes registry lookups through breaker.
func GuardRegistry(breaker *resilience.Breaker, next RegistryClient) RegistryClient {
	return RegistryFunc(func(ctx context.Context, name, version string) (Info, error) {
		return resilience.Do(ctx, breaker, func(ctx context.Context) (Info, error) {
			return next.GetPackageInfo(ctx, name, version)
		})
	})
}

// GuardSecurity routes security lookups through breaker.
func GuardSecurity(breaker *resilience.Breaker, next SecurityClient) SecurityClient {
	return SecurityFunc(func(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
		return resilience.Do(ctx, breaker, func(ctx context.Context) (Info, error) {
			return next.GetSecurityInfo(ctx, name, version, pm)
		})
	})
}

// GuardTrust routes trust lookups through breaker.
func GuardTrust(breaker *resilience.Breaker, next TrustClient) TrustClient {
	return TrustFunc(func(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
		return resilience.Do(ctx, breaker, func(ctx context.Context) (Info, error) {
			return next.GetTrustInfo(ctx, name, version, pm)
		})
	})
}

// Stack is a ready-to-use set of collaborators.
type Stack struct {
	Registries map[sbom.PackageManager]RegistryClient
	Security   SecurityClient
	Trust      TrustClient
}

// Wrap applies the breaker registry and then the cache to every client in s.
// Either may be nil. Breakers are named "registry:<pm>", "security" and "trust".
func (s Stack) Wrap(breakers *resilience.Registry, cache *Cache) Stack {
	out := Stack{
		Registries: make(map[sbom.PackageManager]RegistryClient, len(s.Registries)),
		Security:   s.Security,
		Trust:      s.Trust,
	}
	for pm, client := range s.Registries {
		if breakers != nil {
			client = GuardRegistry(breakers.Get("registry:"+string(pm)), client)
		}
		if cache != nil {
			client = cache.Registry(pm, client)
		}
		out.Registries[pm] = client
	}
	if out.Security != nil {
		if breakers != nil {
			out.Security = GuardSecurity(breakers.Get("security"), out.Security)
		}
		if cache != nil {
			out.Security = cache.Security(out.Security)
		}
	}
	if out.Trust != nil {
		if breakers != nil {
			out.Trust = GuardTrust(breakers.Get("trust"), out.Trust)
		}
		if cache != nil {
			out.Trust = cache.Trust(out.Trust)
		}
	}
	return out
}
