package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/JHPush/cart-service/internal/entity"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/go-sql-driver/mysql"
)

// ER_DUP_ENTRY
const mysqlDuplicateKey = 1062

const cartColumns = `id,user_id,product_id,quantity,created_at,updated_at`

const (
	selectByID   = `SELECT ` + cartColumns + ` FROM cart_items WHERE id=?`
	selectByPair = `SELECT ` + cartColumns + ` FROM cart_items WHERE user_id=? AND product_id=?`
)

type MySQLCartRepo struct{ db *sql.DB }

func NewMySQLCartRepo(db *sql.DB) *MySQLCartRepo { return &MySQLCartRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.CartEntry, error) {
	var e domain.CartEntry
	if err := row.Scan(&e.ID, &e.UserID, &e.ProductID, &e.Quantity, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, usecase.ErrCartEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *MySQLCartRepo) FindByID(ctx context.Context, id string) (*domain.CartEntry, error) {
	return scanEntry(r.db.QueryRowContext(ctx, selectByID, id))
}

func (r *MySQLCartRepo) FindByUserAndProduct(ctx context.Context, userID string, productID int64) (*domain.CartEntry, error) {
	return scanEntry(r.db.QueryRowContext(ctx, selectByPair, userID, productID))
}

func (r *MySQLCartRepo) ListByUser(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+cartColumns+`
FROM cart_items WHERE user_id=?
ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CartEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *MySQLCartRepo) Insert(ctx context.Context, e *domain.CartEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO cart_items (`+cartColumns+`)
VALUES (?,?,?,?,?,?)`,
		e.ID, e.UserID, e.ProductID, e.Quantity, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: user=%s product=%d", usecase.ErrDuplicateEntry, e.UserID, e.ProductID)
	}
	return err
}

// UpsertIncrement inserts the candidate or adds one unit to the existing
// (user, product) row in a single statement.
func (r *MySQLCartRepo) UpsertIncrement(ctx context.Context, c *domain.CartEntry) (*domain.CartEntry, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT INTO cart_items (`+cartColumns+`)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE quantity = quantity + 1, updated_at = VALUES(updated_at)`,
		c.ID, c.UserID, c.ProductID, c.Quantity, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return nil, false, err
	}

	// MySQL reports 1 for an insert and 2 for an update
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	e, err := scanEntry(tx.QueryRowContext(ctx, selectByPair, c.UserID, c.ProductID))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return e, affected == 1, nil
}

func (r *MySQLCartRepo) IncrementQuantity(ctx context.Context, id string, delta int, now time.Time) (*domain.CartEntry, error) {
	return r.updateAndGet(ctx, id, `
UPDATE cart_items
SET quantity = quantity + ?, updated_at = ?
WHERE id = ?`, delta, now.UTC(), id)
}

func (r *MySQLCartRepo) SetQuantity(ctx context.Context, id string, quantity int, now time.Time) (*domain.CartEntry, error) {
	return r.updateAndGet(ctx, id, `
UPDATE cart_items
SET quantity = ?, updated_at = ?
WHERE id = ?`, quantity, now.UTC(), id)
}

// updateAndGet applies a single-row update and reads the row back inside
// one transaction. A missing row surfaces as ErrCartEntryNotFound.
func (r *MySQLCartRepo) updateAndGet(ctx context.Context, id, query string, args ...any) (*domain.CartEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	e, err := scanEntry(tx.QueryRowContext(ctx, selectByID, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *MySQLCartRepo) Delete(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM cart_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return usecase.ErrCartEntryNotFound
	}
	return nil
}

func (r *MySQLCartRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	return r.exec(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
}

func (r *MySQLCartRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return r.exec(ctx, `DELETE FROM cart_items WHERE created_at < ?`, cutoff.UTC())
}

func (r *MySQLCartRepo) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateKey
}

var (
	_ usecase.CartRepo     = (*MySQLCartRepo)(nil)
	_ usecase.CartUpserter = (*MySQLCartRepo)(nil)
)
