package source

import "time"

// Entry is one content record from the upstream API.
type Entry struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Region     string    `json:"region,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	URL        string    `json:"url,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Scope selects which entries a fetch covers: one collection, optionally
// narrowed to a region.
type Scope struct {
	Collection string
	Region     string
}

// listPage is one page of the paginated "list entries" response.
type listPage struct {
	Items      []Entry `json:"items"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
	Total      int     `json:"total"`
}

// ListResult is the outcome of a full paginated fetch. FailedPages
// records pages whose requests failed terminally; a non-zero value means
// the entry set is known to be incomplete.
type ListResult struct {
	Entries     []Entry
	TotalPages  int
	FailedPages int
}

// Partial reports whether the fetch is known to be incomplete.
func (r *ListResult) Partial() bool {
	return r.FailedPages > 0
}
