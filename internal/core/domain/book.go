package domain

import "time"

// Book is the slice of the catalog the sale core needs: the base price cart
// lines fall back to when a discount ends, and the base stock that caps any
// cart quantity. Catalog CRUD lives elsewhere.
type Book struct {
	ID        int64
	Title     string
	BasePrice int64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}
