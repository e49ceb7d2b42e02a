// Package secrets resolves credentials from HashiCorp Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/quantumlayerhq/ql-supplychain/pkg/config"
)

// Keys looked up in the KV secret.
const (
	KeyDatabaseURL       = "database_url"
	KeyKafkaSASLPassword = "kafka_sasl_password"
)

// Resolver reads credentials from a single KV v2 secret. A disabled resolver
// returns the fallbacks unchanged.
type Resolver struct {
	kv      *vault.KVv2
	path    string
	timeout time.Duration
	logger  *slog.Logger

	data map[string]any
}

// NewResolver creates a resolver from cfg. It returns a disabled resolver
// when Vault is not enabled.
func NewResolver(cfg config.VaultConfig, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		path:    cfg.Path,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "secrets"),
	}
	if !cfg.Enabled {
		return r, nil
	}

	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		vcfg.Timeout = cfg.Timeout
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	r.kv = client.KVv2(cfg.Mount)
	return r, nil
}

// Enabled reports whether lookups go to Vault.
func (r *Resolver) Enabled() bool {
	return r.kv != nil
}

// Load fetches the secret once. Later calls are no-ops.
func (r *Resolver) Load(ctx context.Context) error {
	if r.kv == nil || r.data != nil {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	secret, err := r.kv.Get(ctx, r.path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			r.logger.Warn("vault secret not found, using configured values", "path", r.path)
			r.data = map[string]any{}
			return nil
		}
		return fmt.Errorf("failed to read vault secret %s: %w", r.path, err)
	}

	r.data = secret.Data
	if r.data == nil {
		r.data = map[string]any{}
	}
	r.logger.Debug("vault secret loaded", "path", r.path, "keys", len(r.data))
	return nil
}

// Resolve returns the string stored under key, or fallback when Vault is
// disabled or the key is absent.
func (r *Resolver) Resolve(ctx context.Context, key, fallback string) (string, error) {
	if r.kv == nil {
		return fallback, nil
	}
	if err := r.Load(ctx); err != nil {
		return "", err
	}
	if v, ok := r.data[key].(string); ok && v != "" {
		return v, nil
	}
	return fallback, nil
}

// Apply overwrites the credentials in cfg with values found in Vault.
func (r *Resolver) Apply(ctx context.Context, cfg *config.Config) error {
	dbURL, err := r.Resolve(ctx, KeyDatabaseURL, cfg.Database.URL)
	if err != nil {
		return err
	}
	password, err := r.Resolve(ctx, KeyKafkaSASLPassword, cfg.Kafka.SASLPassword)
	if err != nil {
		return err
	}
	cfg.Database.URL = dbURL
	cfg.Kafka.SASLPassword = password
	return nil
}
