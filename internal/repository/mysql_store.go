package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store over a *sql.DB.  Row locks are taken with
// SELECT ... FOR UPDATE inside the unit of work.
type MySQLStore struct{ DB *sql.DB }

// NewMySQLStore returns a store bound to db.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{DB: db} }

// txOptions runs units of work at READ COMMITTED so that a read issued
// after a FOR UPDATE lock is granted sees rows committed while waiting
// for it.  Under REPEATABLE READ the snapshot taken by the first plain
// read would hide holds another buyer committed in the meantime.
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithTx begins a transaction, runs fn and commits.  Any error from fn
// (or a panic) rolls the transaction back.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
    tx, err := s.DB.BeginTx(ctx, txOptions)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(&sqlTx{q: tx}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlTx implements Tx.  Its methods are spread over the per-entity
// repository files.
type sqlTx struct{ q querier }

var (
    _ Store      = (*MySQLStore)(nil)
    _ Tx         = (*sqlTx)(nil)
    _ UserStore  = (*UserRepo)(nil)
    _ TokenStore = (*TokenRepo)(nil)
)

type scanner interface {
    Scan(dest ...any) error
}

// notFound maps sql.ErrNoRows onto ErrNotFound.
func notFound(err error) error {
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    return err
}

// isDuplicate reports a MySQL unique key violation (error 1062).
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        return me.Number == 1062
    }
    return err != nil && strings.Contains(err.Error(), "1062")
}

// affected reports whether a conditional write changed exactly one row.
func affected(res sql.Result, err error) (bool, error) {
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

func insertID(res sql.Result, err error) (uint64, error) {
    if err != nil {
        if isDuplicate(err) {
            return 0, ErrConflict
        }
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

func nullInt(p *int) any {
    if p == nil {
        return nil
    }
    return *p
}

func nullUint(p *uint64) any {
    if p == nil {
        return nil
    }
    return *p
}

func nullTime(p *time.Time) any {
    if p == nil {
        return nil
    }
    return p.UTC()
}

func nullString(p *string) any {
    if p == nil {
        return nil
    }
    return *p
}

func intFrom(n sql.NullInt64) *int {
    if !n.Valid {
        return nil
    }
    v := int(n.Int64)
    return &v
}

func uintFrom(n sql.NullInt64) *uint64 {
    if !n.Valid {
        return nil
    }
    v := uint64(n.Int64)
    return &v
}

func timeFrom(n sql.NullTime) *time.Time {
    if !n.Valid {
        return nil
    }
    v := n.Time.UTC()
    return &v
}

func stringFrom(n sql.NullString) *string {
    if !n.Valid {
        return nil
    }
    v := n.String
    return &v
}
