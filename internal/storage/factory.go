package storage

import "fmt"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

func DefaultStoreKind() string {
	return StoreMemory
}

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLite:
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
