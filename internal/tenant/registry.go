package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"app/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// Initializer runs once against each tenant database during registry
// construction. Used to provision the universal class type and the
// notification outbox queue before any request is served.
type Initializer func(ctx context.Context, t *Tenant) error

// Registry is the tenant-id-keyed index of opened tenant connections.
// It is built once at startup and read-only afterwards.
type Registry struct {
	byID map[string]*Tenant
	ids  []string
}

// Load parses the tenant list from config, resolves secret material, opens
// and pings each tenant database and runs the initializers. Tenants are
// processed sequentially; a failing tenant fails startup.
func Load(ctx context.Context, cfg *config.Config, logger zerolog.Logger, inits ...Initializer) (*Registry, error) {
	var entries []Tenant
	if err := json.Unmarshal([]byte(cfg.TenantsJSON), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse TENANTS_JSON: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no tenants configured")
	}

	var resolver SecretResolver
	if cfg.GCPSecretPrefix != "" {
		r, err := NewSecretManagerResolver(ctx, cfg.GCPProjectID, cfg.GCPSecretPrefix)
		if err != nil {
			return nil, err
		}
		resolver = r
		defer resolver.Close()
	}

	reg := &Registry{byID: make(map[string]*Tenant, len(entries))}
	for i := range entries {
		t := entries[i]
		if t.ID == "" {
			return nil, fmt.Errorf("tenant entry %d has no id", i)
		}
		if resolver != nil {
			dsn, err := resolver.Resolve(ctx, t.ID+"-dsn")
			if err != nil {
				return nil, err
			}
			secret, err := resolver.Resolve(ctx, t.ID+"-api-secret")
			if err != nil {
				return nil, err
			}
			t.DSN, t.APISecret = dsn, secret
		}
		if t.DSN == "" || t.APISecret == "" {
			return nil, fmt.Errorf("tenant %s is missing dsn or api secret", t.ID)
		}
		if t.UTCOffsetMin == 0 {
			t.UTCOffsetMin = cfg.DefaultUTCOffsetMin
		}

		db, err := openDB(t.DSN)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		t.DB = db

		for _, init := range inits {
			if err := init(ctx, &t); err != nil {
				return nil, fmt.Errorf("tenant %s initialization failed: %w", t.ID, err)
			}
		}

		reg.byID[t.ID] = &t
		reg.ids = append(reg.ids, t.ID)
		logger.Info().Str("tenant", t.ID).Str("name", t.Name).Msg("Tenant connection established")
	}
	sort.Strings(reg.ids)
	return reg, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Get returns the tenant for the given id, or nil when unknown.
func (r *Registry) Get(id string) *Tenant {
	return r.byID[id]
}

// IDs returns the tenant ids in stable (sorted) order.
func (r *Registry) IDs() []string {
	return r.ids
}

// Close closes every tenant connection.
func (r *Registry) Close() {
	for _, id := range r.ids {
		r.byID[id].DB.Close()
	}
}
