package abilities

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dangerousKeywords are rejected inside mysql-query input even when the
// statement starts with SELECT.
var dangerousKeywords = []string{"drop", "delete", "update", "insert", "alter", "truncate", "create"}

// maxQueryRows caps the number of rows rendered into a query result.
const maxQueryRows = 50

// MySQLConfig holds the settings for the database abilities.
type MySQLConfig struct {
	// DSN is the MySQL data source name.
	DSN string
}

// MySQLAbilities provides the mysql-schema and mysql-query backends over a
// pooled connection.
type MySQLAbilities struct {
	db *gorm.DB
}

// NewMySQLAbilities opens the database connection the abilities share.
func NewMySQLAbilities(cfg MySQLConfig) (*MySQLAbilities, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return &MySQLAbilities{db: db}, nil
}

// Schema returns the mysql-schema ability. With a table name as input it
// describes that table's columns and indexes; with empty input it returns an
// overview of every table in the current database.
func (m *MySQLAbilities) Schema() Func {
	return func(ctx context.Context, input string) (string, error) {
		table := strings.TrimSpace(input)
		start := time.Now()

		var out string
		var err error
		if table != "" {
			out, err = m.describeTable(ctx, table)
		} else {
			out, err = m.describeDatabase(ctx)
		}
		if err != nil {
			return "", err
		}

		log.Printf("[ability] mysql-schema completed in %.2fs", time.Since(start).Seconds())
		return out, nil
	}
}

type columnInfo struct {
	ColumnName string `gorm:"column:COLUMN_NAME"`
	DataType   string `gorm:"column:DATA_TYPE"`
	IsNullable string `gorm:"column:IS_NULLABLE"`
	ColumnKey  string `gorm:"column:COLUMN_KEY"`
}

type indexInfo struct {
	IndexName  string `gorm:"column:INDEX_NAME"`
	ColumnName string `gorm:"column:COLUMN_NAME"`
	NonUnique  int    `gorm:"column:NON_UNIQUE"`
	SeqInIndex int    `gorm:"column:SEQ_IN_INDEX"`
}

type tableInfo struct {
	TableName  string  `gorm:"column:TABLE_NAME"`
	TableRows  int64   `gorm:"column:TABLE_ROWS"`
	DataSizeMB float64 `gorm:"column:data_size_mb"`
}

func (m *MySQLAbilities) describeTable(ctx context.Context, table string) (string, error) {
	var columns []columnInfo
	err := m.db.WithContext(ctx).Raw(`
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table).Scan(&columns).Error
	if err != nil {
		return "", fmt.Errorf("describe table %s: %w", table, err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s not found in current database", table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n\nColumns:\n", table)
	for _, col := range columns {
		fmt.Fprintf(&b, "- %s (%s)", col.ColumnName, col.DataType)
		if col.ColumnKey == "PRI" {
			b.WriteString(" PRIMARY KEY")
		}
		if col.IsNullable == "NO" {
			b.WriteString(" NOT NULL")
		}
		b.WriteString("\n")
	}

	var indexes []indexInfo
	err = m.db.WithContext(ctx).Raw(`
		SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, SEQ_IN_INDEX
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table).Scan(&indexes).Error
	if err == nil && len(indexes) > 0 {
		b.WriteString("\nIndexes:\n")
		current := ""
		for _, idx := range indexes {
			if idx.IndexName != current {
				current = idx.IndexName
				kind := "Unique"
				if idx.NonUnique != 0 {
					kind = "Non-unique"
				}
				fmt.Fprintf(&b, "- %s (%s):\n", current, kind)
			}
			fmt.Fprintf(&b, "  - Column: %s (Position: %d)\n", idx.ColumnName, idx.SeqInIndex)
		}
	}

	return b.String(), nil
}

func (m *MySQLAbilities) describeDatabase(ctx context.Context) (string, error) {
	var tables []tableInfo
	err := m.db.WithContext(ctx).Raw(`
		SELECT TABLE_NAME, TABLE_ROWS, DATA_LENGTH/1024/1024 AS data_size_mb
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_ROWS DESC`).Scan(&tables).Error
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	var b strings.Builder
	b.WriteString("Database Schema Overview:\n\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "Table: %s\n- Approximate rows: %d\n- Data size: %.2f MB\n\n",
			t.TableName, t.TableRows, t.DataSizeMB)
	}
	return b.String(), nil
}

// Query returns the mysql-query ability. Only SELECT statements are allowed;
// statements containing mutation keywords are rejected before reaching the
// database.
func (m *MySQLAbilities) Query() Func {
	return func(ctx context.Context, input string) (string, error) {
		query := strings.TrimSpace(input)
		if err := CheckReadOnlyQuery(query); err != nil {
			return "", err
		}

		start := time.Now()
		var rows []map[string]any
		if err := m.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
			return "", fmt.Errorf("execute query: %w", err)
		}

		log.Printf("[ability] mysql-query returned %d rows in %.2fs", len(rows), time.Since(start).Seconds())
		return formatQueryRows(rows), nil
	}
}

// CheckReadOnlyQuery rejects anything other than a plain SELECT statement.
func CheckReadOnlyQuery(query string) error {
	lowered := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lowered, "select") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	padded := " " + lowered + " "
	for _, kw := range dangerousKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			return fmt.Errorf("dangerous keyword %q detected in query", kw)
		}
	}
	return nil
}

func formatQueryRows(rows []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query Results Summary:\n- Rows returned: %d\n", len(rows))
	if len(rows) == 0 {
		return b.String()
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	fmt.Fprintf(&b, "- Columns: %s\n\n", strings.Join(columns, ", "))

	limit := len(rows)
	if limit > maxQueryRows {
		limit = maxQueryRows
	}
	for i := 0; i < limit; i++ {
		parts := make([]string, 0, len(columns))
		for _, col := range columns {
			parts = append(parts, fmt.Sprintf("%s=%v", col, rows[i][col]))
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(parts, ", "))
	}
	if len(rows) > limit {
		fmt.Fprintf(&b, "... %d more rows omitted\n", len(rows)-limit)
	}
	return b.String()
}
