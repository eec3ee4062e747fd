// Package tenants routes requests to per-tenant analytical databases. Each
// tenant (a brand's store) owns an isolated SQLite database holding its
// summary tables; the router maps a tenant tag to an open query handle.
package tenants

import (
	"fmt"
	"os"
	"sync"

	"log/slog"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Tenant is one entry of the tenant registry file.
type Tenant struct {
	Tag  string `yaml:"tag"`
	Name string `yaml:"name"`
	DSN  string `yaml:"dsn"`
}

// UnknownTenantError reports a tag absent from the registry.
type UnknownTenantError struct {
	Tag string
}

func (e *UnknownTenantError) Error() string {
	return fmt.Sprintf("unknown tenant: %s", e.Tag)
}

// Router resolves a tenant tag to its database handle.
type Router interface {
	Resolve(tag string) (*gorm.DB, error)
	Tags() []string
}

type registryFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// DBRouter routes tags to lazily opened SQLite connections declared in a
// YAML registry. Connections are opened once and reused across requests.
type DBRouter struct {
	mu      sync.Mutex
	tenants map[string]Tenant
	tags    []string
	conns   map[string]*gorm.DB
	log     *slog.Logger
}

// LoadRouter reads the tenant registry file and builds a router over it.
func LoadRouter(path string, logger *slog.Logger) (*DBRouter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tenant registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing tenant registry: %w", err)
	}
	return NewRouter(file.Tenants, logger)
}

// NewRouter builds a router from an explicit tenant list.
func NewRouter(list []Tenant, logger *slog.Logger) (*DBRouter, error) {
	r := &DBRouter{
		tenants: make(map[string]Tenant, len(list)),
		conns:   make(map[string]*gorm.DB, len(list)),
		log:     logger,
	}
	for _, t := range list {
		if t.Tag == "" || t.DSN == "" {
			return nil, fmt.Errorf("tenant entry needs both tag and dsn: %+v", t)
		}
		if _, dup := r.tenants[t.Tag]; dup {
			return nil, fmt.Errorf("duplicate tenant tag: %s", t.Tag)
		}
		r.tenants[t.Tag] = t
		r.tags = append(r.tags, t.Tag)
	}
	return r, nil
}

// Resolve returns the open database handle for a tenant, opening it on
// first use.
func (r *DBRouter) Resolve(tag string) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.conns[tag]; ok {
		return db, nil
	}
	tenant, ok := r.tenants[tag]
	if !ok {
		return nil, &UnknownTenantError{Tag: tag}
	}

	db, err := gorm.Open(sqlite.Open(tenant.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database for tenant %s: %w", tag, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(2)
	}

	r.log.Info("opened tenant database", slog.String("tenant", tag), slog.String("name", tenant.Name))
	r.conns[tag] = db
	return db, nil
}

// Tags lists registered tenant tags in registry order.
func (r *DBRouter) Tags() []string {
	tags := make([]string, len(r.tags))
	copy(tags, r.tags)
	return tags
}

// Close closes every opened tenant connection.
func (r *DBRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for tag, db := range r.conns {
		sqlDB, err := db.DB()
		if err != nil {
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing tenant %s: %w", tag, err)
		}
		delete(r.conns, tag)
	}
	return firstErr
}

// StaticRouter serves pre-opened connections. Embedded setups and tests
// use it to route to databases they already hold.
type StaticRouter struct {
	conns map[string]*gorm.DB
	tags  []string
}

// NewStaticRouter builds a router over already-open handles.
func NewStaticRouter(conns map[string]*gorm.DB, order ...string) *StaticRouter {
	if len(order) == 0 {
		for tag := range conns {
			order = append(order, tag)
		}
	}
	return &StaticRouter{conns: conns, tags: order}
}

func (r *StaticRouter) Resolve(tag string) (*gorm.DB, error) {
	db, ok := r.conns[tag]
	if !ok {
		return nil, &UnknownTenantError{Tag: tag}
	}
	return db, nil
}

func (r *StaticRouter) Tags() []string {
	tags := make([]string, len(r.tags))
	copy(tags, r.tags)
	return tags
}
