package services

import "github.com/chukwumela909/taskhub-server/domain"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*pageSize far from overflowing.
	MaxPage = 1_000_000
)

// Pagination describes one page of a larger, already filtered result.
type Pagination struct {
	Page       int   `json:"currentPage"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// normalizePage applies defaults to non-positive values and caps both the
// page number and the page size.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func storePage(page, pageSize int) domain.Page {
	return domain.Page{Offset: (page - 1) * pageSize, Limit: pageSize}
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

// pageSlice returns the page of items, which must already be sorted.
func pageSlice[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 || page-1 >= (len(items)+pageSize-1)/pageSize {
		return []T{}
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
