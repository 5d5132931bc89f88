package models

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// OrderFilter narrows order listings. ShopIDs and UserID are scoping
// constraints set by authorization, ShopID and Status come from the caller.
type OrderFilter struct {
	ShopIDs []int64
	UserID  *int64
	ShopID  int64
	Status  string
	Page    int
	PerPage int
}

// PointFilter narrows a user's point transaction history.
type PointFilter struct {
	UserID  int64
	Type    string
	ShopID  int64
	Page    int
	PerPage int
}

// Page is one page of a listing.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

// NormalizePaging clamps page and perPage to sane values.
func NormalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// NewPage builds a page, computing the page count from total.
func NewPage[T any](items []T, total, page, perPage int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Page[T]{Items: items, Total: total, Page: page, PerPage: perPage, Pages: pages}
}
