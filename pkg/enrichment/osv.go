package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
)

// DefaultOSVEndpoint is the public OSV query API.
const DefaultOSVEndpoint = "https://api.osv.dev/v1/query"

// OSVClient is a SecurityClient backed by the OSV vulnerability database.
type OSVClient struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewOSVClient creates an OSV client. An empty endpoint uses DefaultOSVEndpoint.
func NewOSVClient(endpoint string, client *http.Client, logger *slog.Logger) *OSVClient {
	if endpoint == "" {
		endpoint = DefaultOSVEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OSVClient{
		endpoint: endpoint,
		client:   client,
		logger:   logger.With("component", "osv-client"),
	}
}

type osvQueryRequest struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version,omitempty"`
}

type osvVulnerability struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Severity []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

// GetSecurityInfo queries OSV and reports the vulnerability count, the number
// of critical vulnerabilities and the advisory IDs. Ecosystems OSV does not
// cover report zero vulnerabilities.
func (c *OSVClient) GetSecurityInfo(ctx context.Context, name, version string, pm sbom.PackageManager) (Info, error) {
	ecosystem := sbom.OSVEcosystem(pm)
	if ecosystem == "" || name == "" {
		return Info{
			KeyVulnerabilityCount:      0,
			KeyCriticalVulnerabilities: 0,
			KeySecurityAdvisories:      []string{},
		}, nil
	}

	query := osvQueryRequest{Version: version}
	query.Package.Name = name
	query.Package.Ecosystem = ecosystem

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query osv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osv api returned status %d", resp.StatusCode)
	}

	var result struct {
		Vulns []osvVulnerability `json:"vulns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	critical := 0
	advisories := make([]string, 0, len(result.Vulns))
	for _, v := range result.Vulns {
		advisories = append(advisories, v.ID)
		if isCritical(v) {
			critical++
		}
	}

	c.logger.Debug("osv lookup complete",
		"package", name,
		"version", version,
		"ecosystem", ecosystem,
		"vulnerabilities", len(result.Vulns),
		"critical", critical,
	)

	return Info{
		KeyVulnerabilityCount:      len(result.Vulns),
		KeyCriticalVulnerabilities: critical,
		KeySecurityAdvisories:      advisories,
	}, nil
}

// isCritical prefers the database-specific severity label and falls back to
// a numeric CVSS score when the source publishes one.
func isCritical(v osvVulnerability) bool {
	if v.DatabaseSpecific.Severity != "" {
		return strings.EqualFold(v.DatabaseSpecific.Severity, "critical")
	}
	for _, s := range v.Severity {
		if score, err := strconv.ParseFloat(s.Score, 64); err == nil && score >= 9.0 {
			return true
		}
	}
	return false
}
