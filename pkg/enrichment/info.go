// Package enrichment looks up registry, security and trust information for
// SBOM components. Lookups return loosely typed Info maps because the shape
// of the data differs per source.
package enrichment

import (
	"encoding/json"
	"maps"
)

// Registry info keys.
const (
	KeyAgeDays     = "age_days"
	KeyDownloads   = "downloads"
	KeyMaintainers = "maintainers"
	KeyRepository  = "repository"
	KeyLicense     = "license"
)

// Security info keys.
const (
	KeyVulnerabilityCount      = "vulnerability_count"
	KeyCriticalVulnerabilities = "critical_vulnerabilities"
	KeySecurityAdvisories      = "security_advisories"
)

// Trust info keys.
const (
	KeySigned               = "signed"
	KeyMaintainerReputation = "maintainer_reputation"
	KeySecurityIncidents    = "security_incidents"
)

// Info is the result of a single lookup.
type Info map[string]any

// Has reports whether key is present.
func (i Info) Has(key string) bool {
	_, ok := i[key]
	return ok
}

// Int returns key as an int, or def when missing or not numeric.
func (i Info) Int(key string, def int) int {
	switch v := i[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	}
	return def
}

// Float returns key as a float64, or def when missing or not numeric.
func (i Info) Float(key string, def float64) float64 {
	switch v := i[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Bool returns key as a bool, or def when missing.
func (i Info) Bool(key string, def bool) bool {
	if v, ok := i[key].(bool); ok {
		return v
	}
	return def
}

// String returns key as a string, or "" when missing.
func (i Info) String(key string) string {
	if v, ok := i[key].(string); ok {
		return v
	}
	return ""
}

// Strings returns key as a string slice. Non-string elements are skipped.
func (i Info) Strings(key string) []string {
	switch v := i[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Count returns the length of a list value, or the value itself when it is
// numeric. Missing keys count as zero.
func (i Info) Count(key string) int {
	switch v := i[key].(type) {
	case []string:
		return len(v)
	case []any:
		return len(v)
	case []map[string]any:
		return len(v)
	case nil:
		return 0
	}
	return i.Int(key, 0)
}

// Clone returns a shallow copy. A nil Info clones to an empty one.
func (i Info) Clone() Info {
	if i == nil {
		return Info{}
	}
	return maps.Clone(i)
}
