package storage

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	collectionProducts   = "products"
	collectionOrders     = "orders"
	collectionCategories = "categories"
	collectionBrands     = "brands"
)

type docKey struct {
	collection string
	id         string
}

func newDocumentID() string {
	return uuid.NewString()
}

func decodeDocuments[T any](collection string, docs [][]byte) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, data := range docs {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeDocument[T any](collection string, data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", collection, err)
	}
	return &v, nil
}
