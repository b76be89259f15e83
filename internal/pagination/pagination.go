// Package pagination slices ordered collections into fixed-size pages.
package pagination

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 5

// Page is one page of items plus the metadata needed to render page links.
type Page[T any] struct {
	Items       []T   `json:"items"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	Pages       []int `json:"pages"`
	PageSize    int   `json:"page_size"`
	Total       int   `json:"total"`
}

// Paginate returns the requested page of items. Out of range pages are clamped
// to the nearest valid page. An empty collection has zero pages and reports
// page 1 as current.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize

	current := page
	if current > totalPages {
		current = totalPages
	}
	if current < 1 {
		current = 1
	}

	pages := make([]int, totalPages)
	for i := range pages {
		pages[i] = i + 1
	}

	start := (current - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	slice := items[start:end:end]
	if slice == nil {
		slice = []T{}
	}

	return Page[T]{
		Items:       slice,
		CurrentPage: current,
		TotalPages:  totalPages,
		Pages:       pages,
		PageSize:    pageSize,
		Total:       total,
	}
}
