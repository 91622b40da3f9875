package dto

type PaginationObject struct {
	TotalCount uint64 `json:"total_count"`
	Page       uint64 `json:"page"`
	Limit      uint64 `json:"limit"`
	TotalPages uint64 `json:"total_pages"`
}

type PaginatedResponse[T any] struct {
	List       []T              `json:"list"`
	Pagination PaginationObject `json:"pagination"`
}
