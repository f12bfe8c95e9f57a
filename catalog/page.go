package catalog

// Pagination describes where a page sits in a listing.
type Pagination struct {
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
}

// NewPagination builds a Pagination whose TotalPages is always
// ceil(totalItems/itemsPerPage). Negative totals are clamped to zero and
// non-positive page numbers or sizes fall back to 1.
func NewPagination(totalItems, itemsPerPage, currentPage int) Pagination {
	if totalItems < 0 {
		totalItems = 0
	}
	if itemsPerPage <= 0 {
		itemsPerPage = 1
	}
	if currentPage <= 0 {
		currentPage = 1
	}
	return Pagination{
		TotalItems:   totalItems,
		ItemsPerPage: itemsPerPage,
		CurrentPage:  currentPage,
		TotalPages:   TotalPages(totalItems, itemsPerPage),
	}
}

// TotalPages returns ceil(totalItems/itemsPerPage), or 0 when itemsPerPage is
// not positive.
func TotalPages(totalItems, itemsPerPage int) int {
	if itemsPerPage <= 0 || totalItems <= 0 {
		return 0
	}
	return (totalItems + itemsPerPage - 1) / itemsPerPage
}

// HasNext reports whether a page after the current one exists.
func (p Pagination) HasNext() bool {
	return p.CurrentPage < p.TotalPages
}

// Page is a paginated slice of movies. Values are built fresh by the
// normalizer and must not be mutated by callers.
type Page struct {
	Data       []Movie    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// EmptyPage is the neutral "no data" result listing entry points degrade to.
func EmptyPage(page, limit int) Page {
	return Page{
		Data:       []Movie{},
		Pagination: NewPagination(0, limit, page),
	}
}
