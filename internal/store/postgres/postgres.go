// Package postgres implements the store contract on a relational table
// per logical sheet. Tables are created on demand with TEXT columns named
// exactly after the sheet headers, so rows round-trip byte-for-byte with
// the spreadsheet backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ritetech/rcm-intake/internal/store"
)

type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Backend is the relational store adapter. The connection pool is built
// lazily on first use and rebuilt only when the DSN changes, so a single
// Backend survives config reloads without reconnecting per request.
type Backend struct {
	mu  sync.Mutex
	cfg Config
	db  *sqlx.DB
	dsn string
}

func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// NewWithDB wires an existing pool, used by tests.
func NewWithDB(db *sqlx.DB) *Backend {
	return &Backend{db: db, dsn: "external"}
}

func (b *Backend) conn() (*sqlx.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dsn := b.cfg.dsn()
	if b.db != nil && b.dsn == dsn {
		return b.db, nil
	}
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, classify("connect", "", err)
	}
	b.db = db
	b.dsn = dsn
	return db, nil
}

// Close releases the pool. Safe to call on a never-used backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Backend) ReadAll(ctx context.Context, table string) ([]store.Row, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	t := store.NormalizeTableName(table)

	rows, err := db.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(t)))
	if err != nil {
		// A table nobody has written to yet reads as empty, matching
		// the spreadsheet backend's missing-sheet behavior.
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, classify("read", table, err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		raw := map[string]interface{}{}
		if err := rows.MapScan(raw); err != nil {
			return nil, classify("read", table, err)
		}
		r := store.Row{}
		for k, v := range raw {
			r[k] = cellString(v)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read", table, err)
	}
	return out, nil
}

func (b *Backend) AppendRow(ctx context.Context, table string, headers, values []string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if err := b.EnsureSchema(ctx, table, headers); err != nil {
		return err
	}

	t := store.NormalizeTableName(table)
	cols := make([]string, len(headers))
	params := make([]string, len(headers))
	args := make([]interface{}, len(headers))
	for i, h := range headers {
		cols[i] = quoteIdent(h)
		params[i] = fmt.Sprintf("$%d", i+1)
		if i < len(values) {
			args[i] = values[i]
		} else {
			args[i] = ""
		}
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(t), strings.Join(cols, ", "), strings.Join(params, ", "))
	if _, err := db.ExecContext(ctx, q, args...); err != nil {
		return classify("append", table, err)
	}
	return nil
}

func (b *Backend) UpsertByKey(ctx context.Context, table, keyColumn string, headers []string, record store.Row) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if err := b.EnsureSchema(ctx, table, headers); err != nil {
		return err
	}

	t := store.NormalizeTableName(table)
	keyVal := record[keyColumn]

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("upsert", table, err)
	}
	defer tx.Rollback()

	var sets []string
	var args []interface{}
	for _, h := range headers {
		if h == keyColumn {
			continue
		}
		args = append(args, record[h])
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(h), len(args)))
	}
	args = append(args, keyVal)
	upd := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`,
		quoteIdent(t), strings.Join(sets, ", "), quoteIdent(keyColumn), len(args))

	res, err := tx.ExecContext(ctx, upd, args...)
	if err != nil {
		return classify("upsert", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("upsert", table, err)
	}

	if n == 0 {
		cols := make([]string, len(headers))
		params := make([]string, len(headers))
		insArgs := make([]interface{}, len(headers))
		for i, h := range headers {
			cols[i] = quoteIdent(h)
			params[i] = fmt.Sprintf("$%d", i+1)
			insArgs[i] = record[h]
		}
		ins := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			quoteIdent(t), strings.Join(cols, ", "), strings.Join(params, ", "))
		if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
			return classify("upsert", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("upsert", table, err)
	}
	return nil
}

func (b *Backend) EnsureSchema(ctx context.Context, table string, columns []string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	t := store.NormalizeTableName(table)

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c) + " TEXT"
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quoteIdent(t), strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return classify("ensure_schema", table, err)
	}

	// Columns added to the logical schema after the table was first
	// created get backfilled here.
	for _, c := range columns {
		alter := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT`, quoteIdent(t), quoteIdent(c))
		if _, err := db.ExecContext(ctx, alter); err != nil {
			return classify("ensure_schema", table, err)
		}
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isUndefinedTable(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "42P01"
	}
	return false
}

// classify maps driver failures onto the transient/permanent split.
// Connection-level trouble is retryable; schema and auth problems are not.
func classify(op, table string, err error) *store.StoreError {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Class() {
		case "08", // connection exceptions
			"53", // insufficient resources (incl. too_many_connections)
			"57", // operator intervention (incl. cannot_connect_now)
			"40": // transaction rollback (serialization, deadlock)
			return store.NewTransient(op, table, err)
		}
		return store.NewPermanent(op, table, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.NewTransient(op, table, err)
	}
	return store.NewPermanent(op, table, err)
}
