// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Environment binds a *sql.DB and its dialect id together, replacing
// the connection state MyBatis's Environment/TransactionFactory pair
// manages.
type Environment struct {
	ID         string
	DB         *sql.DB
	DatabaseID string
	Placeholder PlaceholderStyle
}

// PlaceholderStyle selects how #{...} tokens are rewritten into driver
// bind markers, since database/sql drivers disagree on placeholder
// syntax.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota // MySQL/SQLite: ?
	PlaceholderDollar                           // PostgreSQL: $1, $2, ...
)

// DatabaseIDProvider resolves the logical database identifier used to
// select databaseId-scoped statement overrides.
type DatabaseIDProvider interface {
	DatabaseID(env *Environment) (string, error)
}

// VendorDatabaseIDProvider maps a driver/product name to a short id
// via an explicit table, matching MyBatis's VendorDatabaseIdProvider
// properties file.
type VendorDatabaseIDProvider struct {
	Properties map[string]string
}

func NewVendorDatabaseIDProvider() *VendorDatabaseIDProvider {
	return &VendorDatabaseIDProvider{Properties: map[string]string{
		"mysql":    "mysql",
		"postgres": "postgresql",
		"sqlite3":  "sqlite",
	}}
}

func (p *VendorDatabaseIDProvider) DatabaseID(env *Environment) (string, error) {
	if env.DatabaseID != "" {
		if alias, ok := p.Properties[env.DatabaseID]; ok {
			return alias, nil
		}
		product := strings.ToLower(env.DatabaseID)
		for vendor, alias := range p.Properties {
			if vendor != "" && strings.Contains(product, strings.ToLower(vendor)) {
				return alias, nil
			}
		}
		return env.DatabaseID, nil
	}
	return "", nil
}

// OpenMySQL opens a MySQL environment with the question-mark
// placeholder style.
func OpenMySQL(id, dsn string) (*Environment, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, newErr(ErrExecution, "open mysql environment", id, err)
	}
	return &Environment{ID: id, DB: db, DatabaseID: "mysql", Placeholder: PlaceholderQuestion}, nil
}

// OpenPostgres opens a PostgreSQL environment with $N placeholders.
func OpenPostgres(id, dsn string) (*Environment, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, newErr(ErrExecution, "open postgres environment", id, err)
	}
	return &Environment{ID: id, DB: db, DatabaseID: "postgres", Placeholder: PlaceholderDollar}, nil
}

// OpenSQLite opens a SQLite environment with the question-mark
// placeholder style.
func OpenSQLite(id, dsn string) (*Environment, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, newErr(ErrExecution, "open sqlite environment", id, err)
	}
	return &Environment{ID: id, DB: db, DatabaseID: "sqlite3", Placeholder: PlaceholderQuestion}, nil
}
