package sqlprovider

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - no catalog
// 1 - dynq_tables catalog
const currentSchemaVersion = 1

// ScalarColumn is the single column of a table holding scalar elements.
const ScalarColumn = "value"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Provider executes query expressions against SQLite tables.
// Uses WAL mode and a single connection; safe for concurrent use.
type Provider struct {
	db       *sql.DB
	reg      *operator.Registry
	compiler *Compiler
}

var _ query.Provider = (*Provider)(nil)

// Open creates or opens a SQLite database at path. Element types are
// resolved through reg.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Open is idempotent.
func Open(path string, reg *operator.Registry) (*Provider, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Provider{db: db, reg: reg, compiler: NewCompiler()}, nil
}

// Close closes the database connection.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// DB returns the underlying sql.DB.
func (p *Provider) DB() *sql.DB {
	return p.db
}

// CreateDeferred implements query.Provider.
func (p *Provider) CreateDeferred(expr queryexpr.Expr, elem *ir.TypeDesc) *query.Handle {
	return query.NewHandle(p, expr, elem)
}

// Table returns a root handle over an existing table. The table must
// have been created by Load for the same descriptor.
func (p *Provider) Table(ctx context.Context, name string, desc *ir.TypeDesc) (*query.Handle, error) {
	if err := p.checkTarget(name, desc); err != nil {
		return nil, err
	}

	var typeID, typeHash string
	err := p.db.QueryRowContext(ctx,
		"SELECT type_id, type_hash FROM dynq_tables WHERE name = ?", name,
	).Scan(&typeID, &typeHash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("table %q: not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	if typeID != string(desc.ID) || typeHash != ir.TypeHash(desc) {
		return nil, fmt.Errorf("table %q: created for %s, descriptor %s has changed", name, typeID, desc.ID)
	}

	return p.CreateDeferred(queryexpr.NewSource(name, desc), desc), nil
}

// Load creates table name for desc and appends rows in one transaction.
// Rows are ir.IRObject values for row types and IRInt, IRString or
// IRBool values for scalar types; insertion order is the sequence order.
// Load on an existing table appends.
func (p *Provider) Load(ctx context.Context, name string, desc *ir.TypeDesc, rows []ir.IRValue) (*query.Handle, error) {
	if err := p.checkTarget(name, desc); err != nil {
		return nil, err
	}
	cols := columns(desc)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", name, err)
	}
	defer tx.Rollback()

	var typeHash string
	err = tx.QueryRowContext(ctx, "SELECT type_hash FROM dynq_tables WHERE name = ?", name).Scan(&typeHash)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, createTableSQL(name, desc)); err != nil {
			return nil, fmt.Errorf("load %q: create table: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO dynq_tables (name, type_id, type_hash) VALUES (?, ?, ?)",
			name, string(desc.ID), ir.TypeHash(desc),
		); err != nil {
			return nil, fmt.Errorf("load %q: register table: %w", name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("load %q: %w", name, err)
	case typeHash != ir.TypeHash(desc):
		return nil, fmt.Errorf("load %q: table exists with a different element type", name)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name),
		strings.Join(quoteAll(cols), ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", name, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		params, err := rowParams(desc, row)
		if err != nil {
			return nil, fmt.Errorf("load %q: row %d: %w", name, i, err)
		}
		if _, err := stmt.ExecContext(ctx, params...); err != nil {
			return nil, fmt.Errorf("load %q: row %d: %w", name, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("load %q: commit: %w", name, err)
	}
	return p.CreateDeferred(queryexpr.NewSource(name, desc), desc), nil
}

// Tables returns the catalog: table name to element type ID.
func (p *Provider) Tables(ctx context.Context) (map[string]ir.TypeID, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT name, type_id FROM dynq_tables ORDER BY name ASC COLLATE BINARY")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ir.TypeID)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		out[name] = ir.TypeID(id)
	}
	return out, rows.Err()
}

func (p *Provider) checkTarget(name string, desc *ir.TypeDesc) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	if desc == nil {
		return fmt.Errorf("table %q: nil element type", name)
	}
	if _, ok := p.reg.Lookup(desc.ID); !ok {
		return fmt.Errorf("table %q: %w", name, &operator.UnknownTypeError{ID: desc.ID})
	}
	if desc.Kind == ir.KindObject && len(desc.Fields) == 0 {
		return fmt.Errorf("table %q: row type %s has no fields", name, desc.ID)
	}
	for _, c := range columns(desc) {
		if !identRe.MatchString(c) {
			return fmt.Errorf("table %q: invalid column name %q", name, c)
		}
		if isOrdColumn(c) {
			return fmt.Errorf("table %q: column name %q is reserved", name, c)
		}
	}
	return nil
}

// isOrdColumn reports whether c names the order column. SQLite
// identifiers are case-insensitive.
func isOrdColumn(c string) bool {
	return strings.EqualFold(c, OrdColumn)
}

func columns(desc *ir.TypeDesc) []string {
	if desc.Kind != ir.KindObject {
		return []string{ScalarColumn}
	}
	cols := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = f.Name
	}
	return cols
}

// createTableSQL declares OrdColumn explicitly so ordering never depends
// on the implicit rowid, which a field named rowid or oid would shadow.
func createTableSQL(name string, desc *ir.TypeDesc) string {
	defs := []string{quoteIdent(OrdColumn) + " INTEGER PRIMARY KEY"}
	if desc.Kind != ir.KindObject {
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL", quoteIdent(ScalarColumn), columnType(desc.Kind)))
	} else {
		for _, f := range desc.Fields {
			defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(f.Name), columnType(f.Kind)))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

func columnType(k ir.Kind) string {
	switch k {
	case ir.KindInt:
		return "INTEGER"
	case ir.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// rowParams converts one element to insert parameters in column order.
func rowParams(desc *ir.TypeDesc, row ir.IRValue) ([]any, error) {
	if desc.Kind != ir.KindObject {
		v, err := irValueToParam(desc.Kind, row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("scalar element must not be null")
		}
		return []any{v}, nil
	}

	obj, ok := row.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected object for %s, got %T", desc.ID, row)
	}
	for k := range obj {
		if _, known := desc.Field(k); !known {
			return nil, fmt.Errorf("unknown field %q", k)
		}
	}
	params := make([]any, len(desc.Fields))
	for i, f := range desc.Fields {
		fv, present := obj[f.Name]
		if !present {
			continue
		}
		v, err := irValueToParam(f.Kind, fv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		params[i] = v
	}
	return params, nil
}

// irValueToParam converts an ir.IRValue to a Go native SQL parameter,
// checking it against the column kind. IRNull becomes NULL.
func irValueToParam(kind ir.Kind, v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRNull, nil:
		return nil, nil
	case ir.IRString:
		if kind == ir.KindString {
			return string(val), nil
		}
	case ir.IRInt:
		if kind == ir.KindInt {
			return int64(val), nil
		}
	case ir.IRBool:
		if kind == ir.KindBool {
			return bool(val), nil
		}
	}
	return nil, fmt.Errorf("%T cannot be stored in a %s column", v, kind)
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = quoteIdent(s)
	}
	return out
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the catalog if it doesn't exist and records the
// schema version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (p *Provider) verifyPragma(name, expected string) error {
	var value string
	q := fmt.Sprintf("PRAGMA %s", name)
	if err := p.db.QueryRow(q).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
