package models

// Pagination is the page/limit envelope returned by list endpoints.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func NewPagination(total int64, page int, limit int) Pagination {
	totalPages := int(total) / limit
	if int(total)%limit != 0 {
		totalPages++
	}
	return Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

type PaginatedOrders struct {
	Data       []*Order   `json:"data"`
	Pagination Pagination `json:"pagination"`
}
