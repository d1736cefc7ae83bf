package vermittlermapping

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var ErrNotFound = errors.New("vermittler mapping not found")

// Mapping links a broker name as printed on insurer statements to an internal
// employee. The key is the normalized name; resolution is exact lookup only —
// ambiguity is settled by a human adding a mapping, never by fuzzy matching.
type Mapping struct {
	ID                       uint
	VermittlerNameNormalized string
	BeraterID                uint
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// UnmappedName is a broker name seen on statements that no mapping covers
// yet, surfaced so an admin can curate the table.
type UnmappedName struct {
	VermittlerName string
	Normalized     string
	RowCount       int64
}

type Repository interface {
	// MapByNames resolves normalized names to advisor ids; absent keys are
	// simply missing from the result.
	MapByNames(ctx context.Context, normalizedNames []string) (map[string]uint, error)
	GetAll(ctx context.Context) ([]*Mapping, error)
	// Upsert creates or repoints a mapping on its unique normalized key.
	Upsert(ctx context.Context, m *Mapping) (*Mapping, error)
	Delete(ctx context.Context, id uint) error
	// ListUnmapped returns distinct statement broker names without a mapping,
	// with the number of commission rows carrying each.
	ListUnmapped(ctx context.Context) ([]*UnmappedName, error)
}
