package cart

import "github.com/google/uuid"

// Item is one cart line as submitted at checkout. Prices are minor units.
type Item struct {
	ProductID      uuid.UUID `json:"productId"`
	SellerID       uuid.UUID `json:"sellerId"`
	SellerName     string    `json:"sellerName"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	Quantity       int       `json:"quantity"`
}

// LineTotalCents returns price times quantity for the line.
func (i Item) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
