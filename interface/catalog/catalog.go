package catalog

import (
	"context"
)

// DatasetCatalog is the catalog where the products are registered
type DatasetCatalog interface {
	// Exists returns true if a dataset with this id is already registered
	Exists(ctx context.Context, id string) (bool, error)
}
