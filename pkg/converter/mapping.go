// pkg/converter/mapping.go
package converter

import (
	"strings"

	"github.com/lib/pq"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Dialect identifies the SQL flavour of a sink or source
type Dialect string

// Supported dialects
const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLite    Dialect = "sqlite"
	DialectSnowflake Dialect = "snowflake"
)

// DialectForDriver maps a database/sql driver name to its dialect
func DialectForDriver(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "snowflake":
		return DialectSnowflake
	default:
		return Dialect(driver)
	}
}

// SQLType returns the column type used to store a kind
func SQLType(kind model.Kind, dialect Dialect) string {
	switch kind {
	case model.KindNumber:
		switch dialect {
		case DialectSnowflake:
			return "FLOAT"
		case DialectSQLite:
			return "REAL"
		default:
			return "DOUBLE PRECISION"
		}
	default:
		if dialect == DialectSnowflake {
			return "VARCHAR"
		}
		return "TEXT"
	}
}

// KindForDatabaseType maps a driver-reported column type to a kind
func KindForDatabaseType(dbType string) model.Kind {
	switch getBaseType(strings.ToUpper(dbType)) {
	case "NUMBER", "NUMERIC", "DECIMAL", "FIXED",
		"INT", "INT2", "INT4", "INT8", "INTEGER", "BIGINT", "SMALLINT", "TINYINT",
		"FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "BOOLEAN", "BOOL":
		return model.KindNumber
	default:
		return model.KindText
	}
}

// QuoteIdentifier quotes a table or column name for DDL and DML
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// QualifiedName quotes and joins schema and table; schema may be empty
func QualifiedName(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// ColumnDefinitions creates column definitions for a table schema
func ColumnDefinitions(columns []model.Column, dialect Dialect) []string {
	definitions := make([]string, 0, len(columns))
	for _, col := range columns {
		definitions = append(definitions, QuoteIdentifier(col.Name)+" "+SQLType(col.Kind, dialect))
	}
	return definitions
}

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}
