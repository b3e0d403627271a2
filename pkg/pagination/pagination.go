package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any listing query can request.
	MaxLimit = 100
)

// Params holds page/limit pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Page metadata returned alongside a listing.
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// Normalize enforces the default and maximum limits and a minimum page of 1.
func Normalize(p Params) Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset converts the normalized page/limit pair into a query offset.
func (p Params) Offset() int {
	norm := Normalize(p)
	return (norm.Page - 1) * norm.Limit
}

// BuildPage assembles the response metadata for a listing result.
func BuildPage(p Params, total int64) Page {
	norm := Normalize(p)
	pages := total / int64(norm.Limit)
	if total%int64(norm.Limit) != 0 {
		pages++
	}
	return Page{
		Page:       norm.Page,
		Limit:      norm.Limit,
		Total:      total,
		TotalPages: pages,
	}
}
