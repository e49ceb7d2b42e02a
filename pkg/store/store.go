// Package store persists supply-chain analyses to PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quantumlayerhq/ql-supplychain/pkg/database"
	"github.com/quantumlayerhq/ql-supplychain/pkg/supplychain"
	"github.com/quantumlayerhq/ql-supplychain/pkg/telemetry"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when an analysis does not exist.
var ErrNotFound = errors.New("analysis not found")

const (
	sqlUpsertAnalysis = `
        INSERT INTO supplychain_analyses
            (id, sbom_name, created_at, total_nodes, total_edges, max_depth, supply_chain_score, partial, document)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            sbom_name = EXCLUDED.sbom_name,
            created_at = EXCLUDED.created_at,
            total_nodes = EXCLUDED.total_nodes,
            total_edges = EXCLUDED.total_edges,
            max_depth = EXCLUDED.max_depth,
            supply_chain_score = EXCLUDED.supply_chain_score,
            partial = EXCLUDED.partial,
            document = EXCLUDED.document`

	sqlDeleteNodes = `DELETE FROM supplychain_nodes WHERE analysis_id = $1`
	sqlDeleteEdges = `DELETE FROM supplychain_edges WHERE analysis_id = $1`

	sqlInsertNode = `
        INSERT INTO supplychain_nodes
            (analysis_id, node_id, name, version, package_manager, dependency_type, trust_level, risk_score, risk_level, depth)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	sqlInsertEdge = `
        INSERT INTO supplychain_edges
            (analysis_id, source_id, target_id, dependency_type, risk_contribution)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT DO NOTHING`

	sqlGetAnalysis = `SELECT document FROM supplychain_analyses WHERE id = $1`

	sqlListAnalyses = `
        SELECT id, sbom_name, created_at, total_nodes, total_edges, supply_chain_score, partial
        FROM supplychain_analyses
        ORDER BY created_at DESC
        LIMIT $1`

	sqlRiskiestNodes = `
        SELECT node_id, name, version, risk_score, risk_level, trust_level
        FROM supplychain_nodes
        WHERE analysis_id = $1
        ORDER BY risk_score DESC, node_id
        LIMIT $2`

	sqlDeleteAnalysis = `DELETE FROM supplychain_analyses WHERE id = $1`
)

// Summary is the list view of a stored analysis.
type Summary struct {
	ID               string    `json:"analysis_id"`
	SBOMName         string    `json:"sbom_name"`
	CreatedAt        time.Time `json:"created_at"`
	TotalNodes       int       `json:"total_nodes"`
	TotalEdges       int       `json:"total_edges"`
	SupplyChainScore float64   `json:"supply_chain_score"`
	Partial          bool      `json:"partial"`
}

// NodeRisk is a stored node ranked by risk.
type NodeRisk struct {
	NodeID     string                 `json:"node_id"`
	Name       string                 `json:"name"`
	Version    string                 `json:"version"`
	RiskScore  float64                `json:"risk_score"`
	RiskLevel  supplychain.RiskLevel  `json:"risk_level"`
	TrustLevel supplychain.TrustLevel `json:"trust_level"`
}

// Store is the PostgreSQL analysis repository.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// New creates a store on db.
func New(db *database.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "store")}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, span := telemetry.DatabaseSpan(ctx, "migrate", "schema.sql")
	defer span.End()

	if err := s.db.Exec(ctx, schemaSQL); err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Save stores the analysis, its nodes and its edges in one transaction.
// Saving an existing analysis replaces it.
func (s *Store) Save(ctx context.Context, a *supplychain.Analysis) error {
	ctx, span := telemetry.DatabaseSpan(ctx, "insert", "supplychain_analyses")
	defer span.End()

	document, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlUpsertAnalysis,
			a.ID, a.SBOMName, a.Timestamp.UTC(),
			a.TotalNodes, a.TotalEdges, a.MaxDepth,
			a.SupplyChainScore, a.Partial, document,
		); err != nil {
			return fmt.Errorf("failed to upsert analysis: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlDeleteNodes, a.ID); err != nil {
			return fmt.Errorf("failed to clear nodes: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlDeleteEdges, a.ID); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}

		for i := range a.Nodes {
			n := &a.Nodes[i]
			if _, err := tx.Exec(ctx, sqlInsertNode,
				a.ID, n.ID, n.Name, n.Version,
				string(n.PackageManager), string(n.DependencyType), string(n.TrustLevel),
				n.RiskScore, string(n.RiskLevel), n.Depth,
			); err != nil {
				return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
			}
		}

		for _, e := range a.Edges {
			if _, err := tx.Exec(ctx, sqlInsertEdge,
				a.ID, e.SourceID, e.TargetID, string(e.DependencyType), e.RiskContribution,
			); err != nil {
				return fmt.Errorf("failed to insert edge %s -> %s: %w", e.SourceID, e.TargetID, err)
			}
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return err
	}

	s.logger.Debug("analysis saved",
		"analysis_id", a.ID,
		"nodes", len(a.Nodes),
		"edges", len(a.Edges),
	)
	return nil
}

// Get loads a stored analysis.
func (s *Store) Get(ctx context.Context, id string) (*supplychain.Analysis, error) {
	ctx, span := telemetry.DatabaseSpan(ctx, "select", "supplychain_analyses")
	defer span.End()

	var document []byte
	if err := s.db.QueryRow(ctx, sqlGetAnalysis, id).Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		span.SetError(err)
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}

	var a supplychain.Analysis
	if err := json.Unmarshal(document, &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	return &a, nil
}

// List returns the most recent analyses, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	ctx, span := telemetry.DatabaseSpan(ctx, "select", "supplychain_analyses")
	defer span.End()

	rows, err := s.db.Query(ctx, sqlListAnalyses, limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.SBOMName, &sum.CreatedAt,
			&sum.TotalNodes, &sum.TotalEdges, &sum.SupplyChainScore, &sum.Partial); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RiskiestNodes returns up to limit nodes of an analysis, riskiest first.
func (s *Store) RiskiestNodes(ctx context.Context, analysisID string, limit int) ([]NodeRisk, error) {
	ctx, span := telemetry.DatabaseSpan(ctx, "select", "supplychain_nodes")
	defer span.End()

	rows, err := s.db.Query(ctx, sqlRiskiestNodes, analysisID, limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	defer rows.Close()

	var out []NodeRisk
	for rows.Next() {
		var (
			n                NodeRisk
			riskLevel, trust string
		)
		if err := rows.Scan(&n.NodeID, &n.Name, &n.Version, &n.RiskScore, &riskLevel, &trust); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.RiskLevel = supplychain.RiskLevel(riskLevel)
		n.TrustLevel = supplychain.TrustLevel(trust)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Delete removes an analysis and its nodes and edges.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.DatabaseSpan(ctx, "delete", "supplychain_analyses")
	defer span.End()

	tag, err := s.db.Pool.Exec(ctx, sqlDeleteAnalysis, id)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
