package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
)

func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

// Struct binds a tagged model to PostgreSQL flavored builders.
type Struct struct {
	*sqlbuilder.Struct
}

func NewStruct(v any) *Struct {
	return &Struct{sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)}
}

// IsNoRows reports whether err is the driver's empty result error.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// AdvisoryXactLock takes a transaction scoped advisory lock. It must run inside a transaction;
// the lock is released on commit or rollback.
func AdvisoryXactLock(ctx context.Context, q Querier, key int64) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fmt.Sprintf("pg_advisory_xact_lock(%s)", sb.Var(key)))

	query, args := sb.Build()
	_, err := q.ExecContext(ctx, query, args...)
	return err
}
