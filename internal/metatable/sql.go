package metatable

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads reference rows from a relational table. The table needs
// tablename, agol_item_id and agol_published_name columns plus either an
// authoritative flag or a category column.
type SQLSource struct {
	label         string
	driver        string
	dsn           string
	table         string
	authoritative bool
}

// NewSQLSource validates the table reference and returns a source backed by
// the named sql driver. When authoritative is true the fourth column is read
// as the authoritative flag and rows are categorized SGID; otherwise it is
// read as the category.
func NewSQLSource(label, driver, dsn, table string, authoritative bool) (*SQLSource, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	return &SQLSource{
		label:         label,
		driver:        driver,
		dsn:           dsn,
		table:         table,
		authoritative: authoritative,
	}, nil
}

// validateTable rejects table references that could splice SQL into the
// select statement. Parts stay unquoted so case-insensitive databases
// resolve them however they store identifiers.
func validateTable(table string) error {
	if table == "" {
		return fmt.Errorf("table name is empty")
	}
	for _, part := range strings.Split(table, ".") {
		if !identifierPattern.MatchString(part) {
			return fmt.Errorf("invalid table name %q", table)
		}
	}
	return nil
}

func (s *SQLSource) Name() string { return s.label }

func (s *SQLSource) Load(ctx context.Context) ([]Row, error) {
	db, err := sqlx.ConnectContext(ctx, s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", s.label, err)
	}
	defer db.Close()

	flagColumn := "category"
	if s.authoritative {
		flagColumn = "authoritative"
	}
	query := fmt.Sprintf("SELECT tablename, agol_item_id, agol_published_name, %s FROM %s",
		flagColumn, s.table)

	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.label, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var tableName, itemID, publishedName, flag sql.NullString
		if err := rows.Scan(&tableName, &itemID, &publishedName, &flag); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", s.label, err)
		}
		out = append(out, newRow(tableName.String, itemID.String, publishedName.String, flag.String, s.authoritative))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s rows: %w", s.label, err)
	}
	return out, nil
}
