// Пакет repository — доступ к данным PostgreSQL.
// Запросы пишутся на чистом SQL поверх pgx, без ORM-прослоек.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запрошенная запись отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности, такая запись уже есть.
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — минимальный интерфейс исполнения SQL.
// Ему удовлетворяют и *pgxpool.Pool, и pgx.Tx, поэтому один и тот же
// репозиторий работает как с пулом напрямую, так и внутри транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет операции в рамках одной транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner поверх пула соединений.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx открывает транзакцию, выполняет fn и коммитит результат.
// Любая ошибка fn приводит к откату; ошибка fn возвращается как есть.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// isUniqueViolation — нарушение unique-ограничения PostgreSQL (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
