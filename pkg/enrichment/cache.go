package enrichment

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

// Cache memoises successful lookups so that the same package version seen in
// several SBOMs is only fetched once per TTL. Errors are never cached.
type Cache struct {
	entries *expirable.LRU[string, Info]
}

// NewCache creates a cache holding up to size entries for ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		entries: expirable.NewLRU[string, Info](size, nil, ttl),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) lookup(key string, fetch func() (Info, error)) (Info, error) {
	if info, ok := c.entries.Get(key); ok {
		return info.Clone(), nil
	}
	info, err := fetch()
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, info.Clone())
	return info, nil
}

func cacheKey(kind string, pm sbom.PackageManager, name, version string) string {
	return kind + "|" + string(pm) + "|" + name + "@" + version
}

// Registry wraps next with the cache. pm namespaces the keys.
func (c *Cache) Registry(pm sbom.PackageManager, next RegistryClient) RegistryClient {
	return RegistryFunc(func(ctx context.Context, name, version string) (Info, error) {
		return c.lookup(cacheKey("registry", pm, name, version), func() (Info, error) {
			return next.GetPackageInfo(ctx, name, version)
		})
	})
}

// Security wraps next with the cache.
func (c *Cache) Security(next SecurityClient) SecurityClient {
	return SecurityFunc(func(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
		return c.lookup(cacheKey("security", pm, name, version), func() (Info, error) {
			return next.GetSecurityInfo(ctx, name, version, pm)
		})
	})
}

// Trust wraps next with the cache.
func (c *Cache) Trust(next TrustClient) TrustClient {
	return TrustFunc(func(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
		return c.lookup(cacheKey("trust", pm, name, version), func() (Info, error) {
			return next.GetTrustInfo(ctx, name, version, pm)
		})
	})
}
