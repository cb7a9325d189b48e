package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/candles-cuddles/api/internal/platform/firestore"
	"github.com/candles-cuddles/api/internal/repositories"
)

const customersCollection = "customers"

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone"`
}

// CustomerRepository resolves customer references from Firestore.
type CustomerRepository struct {
	customers *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a CustomerRepository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil),
	}, nil
}

// Exists reports whether the referenced customer profile is stored. A missing
// profile is not an error; buyer references are weak.
func (r *CustomerRepository) Exists(ctx context.Context, customerRef string) (bool, error) {
	if strings.TrimSpace(customerRef) == "" {
		return false, nil
	}
	if _, err := r.customers.Get(ctx, customerRef); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
