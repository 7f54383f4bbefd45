package content

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Filter narrows a collection. Zero values match everything.
type Filter struct {
	Category string `json:"category,omitempty"`
	Status   string `json:"status,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Key is a stable identity for the filter, used to key mounted stores.
func (f Filter) Key() string {
	return f.Values().Encode()
}

// Values encodes the filter as URL query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if c := normalizeAll(f.Category); c != "" {
		v.Set("category", c)
	}
	if s := normalizeAll(f.Status); s != "" {
		v.Set("status", s)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set("search", s)
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

// FilterFromValues is the inverse of Values. Bad numbers are ignored.
func FilterFromValues(v url.Values) Filter {
	f := Filter{
		Category: v.Get("category"),
		Status:   v.Get("status"),
		Search:   v.Get("search"),
	}
	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(v.Get("offset")); err == nil && n > 0 {
		f.Offset = n
	}
	return f
}

// Match reports whether r passes the category, status and search criteria.
func (f Filter) Match(r Resource) bool {
	if c := normalizeAll(f.Category); c != "" && !strings.EqualFold(r.ResourceCategory(), c) {
		return false
	}
	if s := normalizeAll(f.Status); s != "" && !strings.EqualFold(r.ResourceStatus(), s) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		return strings.Contains(FoldSearch(r.SearchText()), FoldSearch(q))
	}
	return true
}

// FoldSearch case-folds text for search comparison. The data service stores
// and queries folded text so both modes match the same records.
func FoldSearch(s string) string { return cases.Fold().String(s) }

// Apply filters items in memory the same way the data service does,
// preserving order, then applies offset and limit.
func Apply[T Resource](f Filter, items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return out[:0]
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func normalizeAll(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return ""
	}
	return s
}
