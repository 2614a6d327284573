package domain

import "time"

// Product is the slice of the catalog the pricing paths need: identity,
// unit price in yen, and category membership for category-targeted campaigns.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	CategoryIDs []string  `json:"category_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
