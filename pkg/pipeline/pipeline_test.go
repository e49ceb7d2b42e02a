package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumlayerhq/ql-supplychain/pkg/config"
	"github.com/quantumlayerhq/ql-supplychain/pkg/kafka"
	"github.com/quantumlayerhq/ql-supplychain/pkg/resilience"
	"github.com/quantumlayerhq/ql-supplychain/pkg/sbom"
	"github.com/quantumlayerhq/ql-supplychain/pkg/supplychain"
)

const chainBOM = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.5",
  "components": [
    {"bom-ref": "a", "type": "library", "name": "a", "version": "1.0", "purl": "pkg:npm/a@1.0"},
    {"bom-ref": "b", "type": "library", "name": "b", "version": "2.0", "purl": "pkg:npm/b@2.0"},
    {"bom-ref": "c", "type": "library", "name": "c", "version": "3.0", "purl": "pkg:npm/c@3.0"}
  ],
  "dependencies": [
    {"ref": "a", "dependsOn": ["b"]},
    {"ref": "b", "dependsOn": ["c"]}
  ]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	saved []*supplychain.Analysis
	err   error
}

func (s *fakeStore) Save(_ context.Context, a *supplychain.Analysis) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, a)
	return nil
}

type published struct {
	topic string
	event kafka.Event
}

type fakePublisher struct {
	events []published
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic string, event kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, event: event})
	return nil
}

func newAnalyzer() *supplychain.Analyzer {
	return supplychain.NewAnalyzer(supplychain.DefaultOptions(), supplychain.Clients{}, testLogger())
}

func chainDocument(t *testing.T) *sbom.Document {
	t.Helper()
	doc, err := sbom.Decode([]byte(chainBOM))
	require.NoError(t, err)
	return doc
}

func TestAnalyzerOptions(t *testing.T) {
	cfg := config.AnalyzerConfig{
		BatchSize:             4,
		LookupTimeout:         3 * time.Second,
		StrictReferences:      true,
		MaxPathLength:         20,
		MaxPathSearch:         500,
		MaxReportedPaths:      5,
		CriticalPathThreshold: 5.5,
		MaxCycles:             10,
		MaxCycleLength:        8,
		MaxCycleSearch:        2000,
		SPOFMinDependents:     3,
		HighRiskThreshold:     6.5,
		ComplexityDepth:       7,
	}

	assert.Equal(t, supplychain.Options{
		BatchSize:             4,
		LookupTimeout:         3 * time.Second,
		StrictReferences:      true,
		MaxPathLength:         20,
		MaxPathSearch:         500,
		MaxReportedPaths:      5,
		CriticalPathThreshold: 5.5,
		MaxCycles:             10,
		MaxCycleLength:        8,
		MaxCycleSearch:        2000,
		SPOFMinDependents:     3,
		HighRiskThreshold:     6.5,
		ComplexityDepth:       7,
	}, AnalyzerOptions(cfg))
}

func TestClients(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		clients, breakers := Clients(config.EnrichmentConfig{Enabled: false}, testLogger())
		assert.Empty(t, clients.Registries)
		assert.Nil(t, clients.Security)
		assert.Nil(t, clients.Trust)
		assert.Nil(t, breakers)
	})

	t.Run("placeholders", func(t *testing.T) {
		clients, breakers := Clients(config.EnrichmentConfig{Enabled: true, CacheSize: 16, CacheTTL: time.Minute}, testLogger())
		require.NotNil(t, breakers)
		assert.Len(t, clients.Registries, len(enrichmentRegistries()))
		require.NotNil(t, clients.Security)
		require.NotNil(t, clients.Trust)

		info, err := clients.Security.GetSecurityInfo(context.Background(), "a", "1.0", sbom.PackageManagerNPM)
		require.NoError(t, err)
		assert.Equal(t, 0, info.Int("vulnerability_count", -1))
	})

	t.Run("osv failures open the breaker", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		clients, _ := Clients(config.EnrichmentConfig{
			Enabled:            true,
			OSVEnabled:         true,
			OSVEndpoint:        server.URL,
			HTTPTimeout:        time.Second,
			BreakerMaxFailures: 2,
			BreakerOpenTimeout: time.Hour,
		}, testLogger())

		ctx := context.Background()
		for i := 0; i < 2; i++ {
			_, err := clients.Security.GetSecurityInfo(ctx, "lodash", "4.17.20", sbom.PackageManagerNPM)
			require.Error(t, err)
			assert.False(t, resilience.IsOpen(err))
		}

		_, err := clients.Security.GetSecurityInfo(ctx, "lodash", "4.17.20", sbom.PackageManagerNPM)
		assert.True(t, resilience.IsOpen(err))
		assert.Equal(t, int32(2), calls.Load())
	})
}

func enrichmentRegistries() []sbom.PackageManager {
	return []sbom.PackageManager{
		sbom.PackageManagerNPM,
		sbom.PackageManagerPyPI,
		sbom.PackageManagerMaven,
		sbom.PackageManagerNuGet,
		sbom.PackageManagerRubyGems,
		sbom.PackageManagerGolang,
	}
}

func TestRun(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	p := New(newAnalyzer(), testLogger(), WithStore(store), WithPublisher(publisher, "custom.completed"))

	analysis, err := p.Run(context.Background(), chainDocument(t))
	require.NoError(t, err)
	assert.InDelta(t, 7.9, analysis.SupplyChainScore, 1e-9)

	require.Len(t, store.saved, 1)
	assert.Same(t, analysis, store.saved[0])

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "custom.completed", publisher.events[0].topic)
	event := publisher.events[0].event
	assert.Equal(t, kafka.EventAnalysisCompleted, event.Type)
	payload, ok := event.Data.(kafka.AnalysisCompleted)
	require.True(t, ok)
	assert.Equal(t, analysis.ID, payload.AnalysisID)
	assert.Equal(t, 3, payload.TotalNodes)
	assert.Equal(t, 2, payload.TotalEdges)
	assert.False(t, payload.Partial)
}

func TestRunWithoutSinks(t *testing.T) {
	p := New(newAnalyzer(), nil)
	analysis, err := p.Run(context.Background(), chainDocument(t))
	require.NoError(t, err)
	assert.Equal(t, 3, analysis.TotalNodes)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed document", func(t *testing.T) {
		p := New(newAnalyzer(), testLogger())
		_, err := p.Run(ctx, nil)
		assert.ErrorIs(t, err, supplychain.ErrMalformedSBOM)
	})

	t.Run("store failure keeps the analysis and skips publishing", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		publisher := &fakePublisher{}
		p := New(newAnalyzer(), testLogger(), WithStore(&fakeStore{err: storeErr}), WithPublisher(publisher, kafka.TopicAnalysisCompleted))

		analysis, err := p.Run(ctx, chainDocument(t))
		assert.ErrorIs(t, err, storeErr)
		require.NotNil(t, analysis)
		assert.Empty(t, publisher.events)
	})

	t.Run("publish failure", func(t *testing.T) {
		pubErr := errors.New("leader not available")
		p := New(newAnalyzer(), testLogger(), WithPublisher(&fakePublisher{err: pubErr}, kafka.TopicAnalysisCompleted))

		analysis, err := p.Run(ctx, chainDocument(t))
		assert.ErrorIs(t, err, pubErr)
		assert.NotNil(t, analysis)
	})
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       kafka.Message
		wantErr   error
		wantSaved int
		wantName  string
	}{
		{
			name:      "cyclonedx document",
			msg:       kafka.Message{Key: "web-frontend", Value: []byte(chainBOM), Topic: kafka.TopicSBOMSubmitted},
			wantSaved: 1,
			wantName:  "web-frontend",
		},
		{
			name:    "not an sbom",
			msg:     kafka.Message{Key: "junk", Value: []byte(`{"hello":"world"}`)},
			wantErr: sbom.ErrUnsupportedFormat,
		},
		{
			name:    "empty payload",
			msg:     kafka.Message{Key: "empty"},
			wantErr: sbom.ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			p := New(newAnalyzer(), testLogger(), WithStore(store))

			err := p.HandleMessage(context.Background(), tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Len(t, store.saved, tt.wantSaved)
			if tt.wantSaved > 0 {
				assert.Equal(t, tt.wantName, store.saved[0].SBOMName)
			}
		})
	}
}

func TestCompleted(t *testing.T) {
	a := &supplychain.Analysis{
		ID:                    "a-1",
		SBOMName:              "api",
		SupplyChainScore:      6.2,
		TotalNodes:            40,
		TotalEdges:            52,
		CircularDependencies:  [][]string{{"x@1", "y@1"}},
		SinglePointsOfFailure: []string{"x@1", "z@1"},
		RiskDistribution: map[supplychain.RiskLevel]int{
			supplychain.RiskLow:      30,
			supplychain.RiskHigh:     7,
			supplychain.RiskCritical: 3,
		},
		Partial: true,
	}

	assert.Equal(t, kafka.AnalysisCompleted{
		AnalysisID:            "a-1",
		SBOMName:              "api",
		SupplyChainScore:      6.2,
		TotalNodes:            40,
		TotalEdges:            52,
		CircularDependencies:  1,
		SinglePointsOfFailure: 2,
		HighRiskComponents:    10,
		Partial:               true,
	}, Completed(a))
}
