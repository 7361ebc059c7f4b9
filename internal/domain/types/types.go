// Package types contains common types used across the application
package types

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// NewPage wraps items, replacing a nil slice with an empty one so it
// encodes as [].
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: page, Limit: limit, Total: total}
}

// TotalPages is the number of pages at the current limit.
func (p Page[T]) TotalPages() int {
	if p.Limit < 1 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.Page < p.TotalPages()
}
