package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// GetQuerier returns the transaction if provided, otherwise uses the database.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// Open builds a Database from driver name and config. Supported drivers:
// "mysql" and "postgres".
func Open(driver string, mysqlCfg *MySQLConfig, pgCfg *PostgreSQLConfig) (Database, error) {
	switch strings.ToLower(driver) {
	case "", "mysql":
		return NewMySQLWithConfig(mysqlCfg)
	case "postgres", "postgresql":
		return NewPostgreSQLWithConfig(pgCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports whether err is a duplicate key error on either backend.
func UniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
