package store

import (
	"context"
	"strings"

	"racereg/internal/registration/models"
	"racereg/pkg/platform/sentinel"
)

// lookupOrder: bib numbers are unique among approved records, so they resolve
// first; phone and national id follow. First field with any match wins.
var lookupOrder = []Field{FieldBib, FieldPhone, FieldNationalID}

// Resolve maps a raw search key to a single registration by exact match
// against bib number, phone, or national id. When a field matches more than
// one record, the most recently created wins; that preference is documented
// behavior, not an accident of iteration order.
func Resolve(ctx context.Context, s Store, key string) (*models.Registration, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, field := range lookupOrder {
		matches, err := s.FindByField(ctx, field, key)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return nil, sentinel.ErrNotFound
}
