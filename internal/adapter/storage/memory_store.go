package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

type memoryDocument struct {
	data    []byte
	version int64
	created int64
}

// MemoryStore is an in-process DocumentStore. Transactions are validated
// optimistically at commit: if any document they read changed, the commit
// fails with port.ErrConflict.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[docKey]memoryDocument
	seq  int64
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[docKey]memoryDocument),
		now:  time.Now,
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) read(key docKey) ([]byte, int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	return doc.data, doc.version, ok
}

// putLocked writes data under key; nil data deletes. Caller holds m.mu.
func (m *MemoryStore) putLocked(key docKey, data []byte) {
	if data == nil {
		delete(m.docs, key)
		return
	}
	// Versions come from one store-wide sequence, so a deleted and
	// recreated document never reuses a version.
	m.seq++
	doc, ok := m.docs[key]
	if !ok {
		doc.created = m.seq
	}
	doc.data = data
	doc.version = m.seq
	m.docs[key] = doc
}

func (m *MemoryStore) put(key docKey, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key.collection, err)
	}
	m.mu.Lock()
	m.putLocked(key, data)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) list(collection string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	type row struct {
		seq  int64
		data []byte
	}
	var rows []row
	for k, doc := range m.docs {
		if k.collection == collection {
			rows = append(rows, row{doc.created, doc.data})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = r.data
	}
	return out
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return decodeDocuments[domain.Product](collectionProducts, m.list(collectionProducts))
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	data, _, ok := m.read(docKey{collectionProducts, id})
	if !ok {
		return nil, nil
	}
	return decodeDocument[domain.Product](collectionProducts, data)
}

func (m *MemoryStore) AddProduct(ctx context.Context, product domain.Product) (string, error) {
	if product.ID == "" {
		product.ID = newDocumentID()
	}
	now := m.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	return product.ID, m.put(docKey{collectionProducts, product.ID}, product)
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, product domain.Product) error {
	key := docKey{collectionProducts, product.ID}
	if _, _, ok := m.read(key); !ok {
		return port.ErrNotFound
	}
	product.UpdatedAt = m.now()
	return m.put(key, product)
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey{collectionProducts, id}
	if _, ok := m.docs[key]; !ok {
		return port.ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

func (m *MemoryStore) UpdatePricing(ctx context.Context, updates []domain.PricingUpdate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	staged := make(map[docKey][]byte, len(updates))
	for _, u := range updates {
		key := docKey{collectionProducts, u.ProductID}
		doc, ok := m.docs[key]
		if !ok {
			continue
		}
		var p domain.Product
		if err := json.Unmarshal(doc.data, &p); err != nil {
			return 0, fmt.Errorf("decode product %s: %w", u.ProductID, err)
		}
		if !u.Applies(p) {
			continue
		}
		p.Price = u.Price
		p.Discount = u.Discount
		p.UpdatedAt = now

		data, err := json.Marshal(p)
		if err != nil {
			return 0, fmt.Errorf("encode product %s: %w", u.ProductID, err)
		}
		staged[key] = data
	}

	for key, data := range staged {
		m.putLocked(key, data)
	}
	return len(staged), nil
}

func (m *MemoryStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return decodeDocuments[domain.Category](collectionCategories, m.list(collectionCategories))
}

func (m *MemoryStore) SaveCategory(ctx context.Context, category domain.Category) (string, error) {
	if category.ID == "" {
		category.ID = newDocumentID()
	}
	return category.ID, m.put(docKey{collectionCategories, category.ID}, category)
}

func (m *MemoryStore) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return decodeDocuments[domain.Brand](collectionBrands, m.list(collectionBrands))
}

func (m *MemoryStore) SaveBrand(ctx context.Context, brand domain.Brand) (string, error) {
	if brand.ID == "" {
		brand.ID = newDocumentID()
	}
	return brand.ID, m.put(docKey{collectionBrands, brand.ID}, brand)
}

func (m *MemoryStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return decodeDocuments[domain.Order](collectionOrders, m.list(collectionOrders))
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	data, _, ok := m.read(docKey{collectionOrders, id})
	if !ok {
		return nil, nil
	}
	return decodeDocument[domain.Order](collectionOrders, data)
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Transaction) error) error {
	tx := &memoryTx{
		store:  m,
		reads:  make(map[docKey]int64),
		writes: make(map[docKey][]byte),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type memoryTx struct {
	store  *MemoryStore
	reads  map[docKey]int64 // 0 when the document was absent
	writes map[docKey][]byte
	order  []docKey
}

func (t *memoryTx) read(key docKey) []byte {
	if data, ok := t.writes[key]; ok {
		return data
	}
	data, version, ok := t.store.read(key)
	if !ok {
		version = 0
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
	return data
}

func (t *memoryTx) stage(key docKey, data []byte) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = data
}

func (t *memoryTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	data := t.read(docKey{collectionProducts, id})
	if data == nil {
		return nil, nil
	}
	return decodeDocument[domain.Product](collectionProducts, data)
}

func (t *memoryTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	data := t.read(docKey{collectionOrders, id})
	if data == nil {
		return nil, nil
	}
	return decodeDocument[domain.Order](collectionOrders, data)
}

func (t *memoryTx) UpdateProduct(product domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	t.stage(docKey{collectionProducts, product.ID}, data)
	return nil
}

func (t *memoryTx) CreateOrder(order domain.Order) (string, error) {
	order.ID = newDocumentID()
	data, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	t.stage(docKey{collectionOrders, order.ID}, data)
	return order.ID, nil
}

func (t *memoryTx) UpdateOrder(order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	t.stage(docKey{collectionOrders, order.ID}, data)
	return nil
}

func (t *memoryTx) DeleteOrder(id string) error {
	t.stage(docKey{collectionOrders, id}, nil)
	return nil
}

func (t *memoryTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, version := range t.reads {
		current := int64(0)
		if doc, ok := m.docs[key]; ok {
			current = doc.version
		}
		if current != version {
			return port.ErrConflict
		}
	}

	for _, key := range t.order {
		m.putLocked(key, t.writes[key])
	}
	return nil
}
