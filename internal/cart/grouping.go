package cart

import (
	"github.com/google/uuid"

	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
)

// SellerGroup is the subset of a cart attributable to one seller. Built once
// per checkout and never mutated afterwards.
type SellerGroup struct {
	SellerID      uuid.UUID `json:"sellerId"`
	SellerName    string    `json:"sellerName"`
	Items         []Item    `json:"items"`
	SubtotalCents int64     `json:"subtotalCents"`
}

// Group partitions cart items by seller. The returned slice follows the
// first-occurrence order of sellers in the input so downstream output is
// reproducible. Every item must carry a seller id.
func Group(items []Item) ([]SellerGroup, error) {
	byID := make(map[uuid.UUID]int, len(items))
	groups := make([]SellerGroup, 0, len(items))

	for _, item := range items {
		if item.SellerID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item missing seller")
		}

		idx, ok := byID[item.SellerID]
		if !ok {
			idx = len(groups)
			byID[item.SellerID] = idx
			groups = append(groups, SellerGroup{
				SellerID:   item.SellerID,
				SellerName: item.SellerName,
			})
		}

		groups[idx].Items = append(groups[idx].Items, item)
		groups[idx].SubtotalCents += item.LineTotalCents()
	}

	return groups, nil
}
