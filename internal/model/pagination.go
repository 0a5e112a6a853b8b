package model

// Pagination is the page metadata returned with every paged read.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	Pages       int   `json:"pages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// NewPagination computes page count and navigation flags. Page is 1-based.
func NewPagination(page, limit int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	pages := 0
	if limit > 0 && total > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		Pages:       pages,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
	}
}

// Skip returns the number of records before page.
func Skip(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	return (page - 1) * limit
}
