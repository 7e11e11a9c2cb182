package model

// Page is one bounded slice of a server-ordered result set.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// Pages returns the total page count, deriving it from TotalCount and
// PageSize when the server left TotalPages unset.
func (p Page[T]) Pages() int {
	if p.TotalPages > 0 {
		return p.TotalPages
	}
	if p.PageSize <= 0 || p.TotalCount <= 0 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

// HasNext reports whether a page after this one exists.
func (p Page[T]) HasNext() bool {
	return len(p.Items) > 0 && p.Page < p.Pages()
}
