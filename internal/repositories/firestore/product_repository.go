package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/candles-cuddles/api/internal/domain"
	pfirestore "github.com/candles-cuddles/api/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	Title     string    `firestore:"title"`
	Price     int64     `firestore:"price"`
	Stock     int64     `firestore:"stock"`
	Active    bool      `firestore:"active"`
	Images    []string  `firestore:"images"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:        id,
		Title:     d.Title,
		Price:     d.Price,
		Stock:     d.Stock,
		Active:    d.Active,
		Images:    d.Images,
		UpdatedAt: d.UpdatedAt,
	}
}

// ProductRepository reads catalog documents from Firestore.
type ProductRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a ProductRepository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// FindByID fetches a single product by its identifier.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs fetches products in bulk. Missing products are simply absent from
// the result map; callers decide whether that is an error.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[string]domain.Product{}, nil
	}

	result := make(map[string]domain.Product, len(unique))
	// Firestore caps "in" filters at ten values per query.
	for _, batch := range chunkIDs(unique, 10) {
		docs, err := r.products.Query(ctx, func(query firestore.Query) firestore.Query {
			return query.Where(firestore.DocumentID, "in", batch)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			result[doc.ID] = doc.Data.toDomain(doc.ID)
		}
	}
	return result, nil
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		return [][]string{ids}
	}
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
