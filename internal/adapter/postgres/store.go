package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/collectibles/internal/domain/item"
)

const itemColumns = `id, name, description, price, created_at, updated_at`

// Store implements database.ItemStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanItem(row scannable) (item.Item, error) {
	var it item.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (s *Store) ListItems(ctx context.Context) ([]item.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []item.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, id int64) (*item.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get item %d", id)
	}
	return &it, nil
}

func (s *Store) ItemExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("item exists %d: %w", id, err)
	}
	return exists, nil
}

func (s *Store) CreateItem(ctx context.Context, req item.CreateRequest) (*item.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`INSERT INTO items (name, description, price)
		 VALUES ($1, $2, $3)
		 RETURNING `+itemColumns,
		req.Name, req.Description, req.Price))
	if err != nil {
		return nil, notFoundWrap(err, "create item")
	}
	return &it, nil
}

// UpdateItem applies the non-nil fields of req in a single statement.
func (s *Store) UpdateItem(ctx context.Context, id int64, req item.UpdateRequest) (*item.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`UPDATE items SET
		   name        = COALESCE($2, name),
		   description = COALESCE($3, description),
		   price       = COALESCE($4, price),
		   updated_at  = now()
		 WHERE id = $1
		 RETURNING `+itemColumns,
		id, req.Name, req.Description, req.Price))
	if err != nil {
		return nil, notFoundWrap(err, "update item %d", id)
	}
	return &it, nil
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete item %d", id)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
