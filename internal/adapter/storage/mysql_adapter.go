package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

//go:embed schema.sql
var schemaSQL string

const (
	listDocumentsQuery   = `SELECT data FROM documents WHERE collection = ? ORDER BY created_at, id`
	getDocumentQuery     = `SELECT data, version FROM documents WHERE collection = ? AND id = ?`
	lockDocumentQuery    = `SELECT data FROM documents WHERE collection = ? AND id = ? FOR UPDATE`
	insertDocumentQuery  = `INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`
	upsertDocumentQuery  = `INSERT INTO documents (collection, id, data) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data), version = version + 1`
	updateDocumentQuery  = `UPDATE documents SET data = ?, version = version + 1 WHERE collection = ? AND id = ?`
	updateVersionedQuery = `UPDATE documents SET data = ?, version = version + 1 WHERE collection = ? AND id = ? AND version = ?`
	deleteDocumentQuery  = `DELETE FROM documents WHERE collection = ? AND id = ?`
	deleteVersionedQuery = `DELETE FROM documents WHERE collection = ? AND id = ? AND version = ?`
)

// MySQL error numbers that mean another transaction won the race.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// MySQLStore keeps every collection as JSON documents in one table. Each
// document carries a version that transactions use for optimistic locking.
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

// Migrate creates the documents table if it does not exist.
func (m *MySQLStore) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (m *MySQLStore) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLStore) list(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := m.db.QueryContext(ctx, listDocumentsQuery, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, data)
	}
	return docs, rows.Err()
}

func (m *MySQLStore) get(ctx context.Context, collection, id string) ([]byte, error) {
	var data []byte
	var version int64
	err := m.db.QueryRowContext(ctx, getDocumentQuery, collection, id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (m *MySQLStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	docs, err := m.list(ctx, collectionProducts)
	if err != nil {
		return nil, err
	}
	return decodeDocuments[domain.Product](collectionProducts, docs)
}

func (m *MySQLStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	data, err := m.get(ctx, collectionProducts, id)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeDocument[domain.Product](collectionProducts, data)
}

func (m *MySQLStore) AddProduct(ctx context.Context, product domain.Product) (string, error) {
	if product.ID == "" {
		product.ID = newDocumentID()
	}
	now := m.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	data, err := json.Marshal(product)
	if err != nil {
		return "", fmt.Errorf("encode product: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, insertDocumentQuery, collectionProducts, product.ID, data); err != nil {
		return "", fmt.Errorf("insert product: %w", err)
	}
	return product.ID, nil
}

func (m *MySQLStore) UpdateProduct(ctx context.Context, product domain.Product) error {
	product.UpdatedAt = m.now()
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}

	result, err := m.db.ExecContext(ctx, updateDocumentQuery, data, collectionProducts, product.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (m *MySQLStore) DeleteProduct(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, deleteDocumentQuery, collectionProducts, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (m *MySQLStore) UpdatePricing(ctx context.Context, updates []domain.PricingUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := m.now()
	written := 0
	for _, u := range updates {
		var data []byte
		err := tx.QueryRowContext(ctx, lockDocumentQuery, collectionProducts, u.ProductID).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("lock product %s: %w", u.ProductID, asConflict(err))
		}

		var p domain.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return 0, fmt.Errorf("decode product %s: %w", u.ProductID, err)
		}
		if !u.Applies(p) {
			continue
		}
		p.Price = u.Price
		p.Discount = u.Discount
		p.UpdatedAt = now

		if data, err = json.Marshal(p); err != nil {
			return 0, fmt.Errorf("encode product %s: %w", u.ProductID, err)
		}
		if _, err := tx.ExecContext(ctx, updateDocumentQuery, data, collectionProducts, u.ProductID); err != nil {
			return 0, fmt.Errorf("update product %s: %w", u.ProductID, asConflict(err))
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func (m *MySQLStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := m.list(ctx, collectionCategories)
	if err != nil {
		return nil, err
	}
	return decodeDocuments[domain.Category](collectionCategories, docs)
}

func (m *MySQLStore) SaveCategory(ctx context.Context, category domain.Category) (string, error) {
	if category.ID == "" {
		category.ID = newDocumentID()
	}
	return category.ID, m.upsert(ctx, collectionCategories, category.ID, category)
}

func (m *MySQLStore) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	docs, err := m.list(ctx, collectionBrands)
	if err != nil {
		return nil, err
	}
	return decodeDocuments[domain.Brand](collectionBrands, docs)
}

func (m *MySQLStore) SaveBrand(ctx context.Context, brand domain.Brand) (string, error) {
	if brand.ID == "" {
		brand.ID = newDocumentID()
	}
	return brand.ID, m.upsert(ctx, collectionBrands, brand.ID, brand)
}

func (m *MySQLStore) upsert(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if _, err := m.db.ExecContext(ctx, upsertDocumentQuery, collection, id, data); err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

func (m *MySQLStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	docs, err := m.list(ctx, collectionOrders)
	if err != nil {
		return nil, err
	}
	return decodeDocuments[domain.Order](collectionOrders, docs)
}

func (m *MySQLStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	data, err := m.get(ctx, collectionOrders, id)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeDocument[domain.Order](collectionOrders, data)
}

func (m *MySQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Transaction) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &mysqlTx{
		tx:       sqlTx,
		versions: make(map[docKey]int64),
		writes:   make(map[docKey]*stagedWrite),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.apply(ctx); err != nil {
		return asConflict(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return asConflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// asConflict maps InnoDB deadlocks and lock wait timeouts to port.ErrConflict
// so the losing transaction is retried like any other version conflict.
func asConflict(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", port.ErrConflict, err)
	}
	return err
}

type stagedWrite struct {
	data   []byte // nil deletes
	insert bool
}

type mysqlTx struct {
	tx       *sql.Tx
	versions map[docKey]int64
	writes   map[docKey]*stagedWrite
	order    []docKey
}

func (t *mysqlTx) read(ctx context.Context, key docKey) ([]byte, error) {
	if w, ok := t.writes[key]; ok {
		return w.data, nil
	}

	var data []byte
	var version int64
	err := t.tx.QueryRowContext(ctx, getDocumentQuery, key.collection, key.id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", key.collection, key.id, err)
	}
	t.versions[key] = version
	return data, nil
}

func (t *mysqlTx) stage(key docKey, data []byte, insert bool) {
	if w, ok := t.writes[key]; ok {
		w.data = data
		return
	}
	t.writes[key] = &stagedWrite{data: data, insert: insert}
	t.order = append(t.order, key)
}

func (t *mysqlTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	data, err := t.read(ctx, docKey{collectionProducts, id})
	if err != nil || data == nil {
		return nil, err
	}
	return decodeDocument[domain.Product](collectionProducts, data)
}

func (t *mysqlTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	data, err := t.read(ctx, docKey{collectionOrders, id})
	if err != nil || data == nil {
		return nil, err
	}
	return decodeDocument[domain.Order](collectionOrders, data)
}

func (t *mysqlTx) UpdateProduct(product domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	t.stage(docKey{collectionProducts, product.ID}, data, false)
	return nil
}

func (t *mysqlTx) CreateOrder(order domain.Order) (string, error) {
	order.ID = newDocumentID()
	data, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	t.stage(docKey{collectionOrders, order.ID}, data, true)
	return order.ID, nil
}

func (t *mysqlTx) UpdateOrder(order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	t.stage(docKey{collectionOrders, order.ID}, data, false)
	return nil
}

func (t *mysqlTx) DeleteOrder(id string) error {
	t.stage(docKey{collectionOrders, id}, nil, false)
	return nil
}

// apply writes the staged documents. Documents read earlier in the
// transaction are written only if their version is unchanged.
func (t *mysqlTx) apply(ctx context.Context) error {
	for _, key := range t.order {
		w := t.writes[key]
		version, versioned := t.versions[key]

		var (
			result sql.Result
			err    error
		)
		switch {
		case w.insert && w.data == nil:
			continue
		case w.insert:
			result, err = t.tx.ExecContext(ctx, insertDocumentQuery, key.collection, key.id, w.data)
		case w.data == nil && versioned:
			result, err = t.tx.ExecContext(ctx, deleteVersionedQuery, key.collection, key.id, version)
		case w.data == nil:
			result, err = t.tx.ExecContext(ctx, deleteDocumentQuery, key.collection, key.id)
		case versioned:
			result, err = t.tx.ExecContext(ctx, updateVersionedQuery, w.data, key.collection, key.id, version)
		default:
			result, err = t.tx.ExecContext(ctx, updateDocumentQuery, w.data, key.collection, key.id)
		}
		if err != nil {
			return fmt.Errorf("write %s/%s: %w", key.collection, key.id, err)
		}

		if w.insert {
			continue
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			if versioned {
				return port.ErrConflict
			}
			if w.data != nil {
				return fmt.Errorf("write %s/%s: %w", key.collection, key.id, port.ErrNotFound)
			}
		}
	}
	return nil
}
