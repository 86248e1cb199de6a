// Package datatable parses list query strings and applies them to gorm queries.
package datatable

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aolus-software/rbac-api/internal"
	"gorm.io/gorm"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	SortAsc  = "asc"
	SortDesc = "desc"
)

var filterKey = regexp.MustCompile(`^filter\[([A-Za-z0-9_]+)\]$`)

type Query struct {
	Page          int
	Limit         int
	Search        string
	Sort          string
	SortDirection string
	Filters       map[string]string
}

type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"totalCount"`
}

type Page[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// NewPage never yields a null data array.
func NewPage[T any](data []T, q Query, total int64) *Page[T] {
	if data == nil {
		data = []T{}
	}
	return &Page[T]{
		Data: data,
		Meta: Meta{Page: q.Page, Limit: q.Limit, TotalCount: total},
	}
}

// Parse reads page, limit, search, sort, sortDirection and filter[field] values.
func Parse(values url.Values) (Query, error) {
	q := Query{
		Page:          DefaultPage,
		Limit:         DefaultLimit,
		Sort:          "id",
		SortDirection: SortDesc,
		Filters:       map[string]string{},
	}
	fieldErrors := internal.FieldErrors{}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			fieldErrors.Add("page", "page must be a number greater than or equal to 1")
		} else {
			q.Page = page
		}
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxLimit {
			fieldErrors.Add("limit", fmt.Sprintf("limit must be a number between 1 and %d", MaxLimit))
		} else {
			q.Limit = limit
		}
	}

	q.Search = strings.TrimSpace(values.Get("search"))

	if raw := strings.TrimSpace(values.Get("sort")); raw != "" {
		q.Sort = raw
	}

	if raw := strings.ToLower(strings.TrimSpace(values.Get("sortDirection"))); raw != "" {
		if raw != SortAsc && raw != SortDesc {
			fieldErrors.Add("sortDirection", "sortDirection must be one of: asc, desc")
		} else {
			q.SortDirection = raw
		}
	}

	for key, vals := range values {
		m := filterKey.FindStringSubmatch(key)
		if m == nil || len(vals) == 0 {
			continue
		}
		if v := strings.TrimSpace(vals[len(vals)-1]); v != "" {
			q.Filters[m[1]] = v
		}
	}

	if len(fieldErrors) > 0 {
		return q, internal.NewValidationError("Invalid query parameters", fieldErrors)
	}
	return q, nil
}

func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Filter returns the value of filter[field] if present.
func (q Query) Filter(field string) (string, bool) {
	v, ok := q.Filters[field]
	return v, ok
}

// Columns maps sortable keys to qualified columns; unknown keys fall back to Default.
type Columns struct {
	Allowed map[string]string
	Default string
	// TieBreaker keeps ordering stable when the sort column has duplicates.
	TieBreaker string
}

func (c Columns) OrderBy(q Query) string {
	column, ok := c.Allowed[q.Sort]
	if !ok {
		column = c.Default
	}
	direction := "DESC"
	if q.SortDirection == SortAsc {
		direction = "ASC"
	}
	order := fmt.Sprintf("%s %s", column, direction)
	if c.TieBreaker != "" && c.TieBreaker != column {
		order += fmt.Sprintf(", %s %s", c.TieBreaker, direction)
	}
	return order
}

// Like builds a case-insensitive substring pattern.
func Like(term string) string {
	return "%" + strings.ToLower(term) + "%"
}

// SearchAny adds a case-insensitive substring match over any of columns.
func SearchAny(db *gorm.DB, term string, columns ...string) *gorm.DB {
	if term == "" || len(columns) == 0 {
		return db
	}
	clauses := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		clauses[i] = fmt.Sprintf("LOWER(%s) LIKE ?", col)
		args[i] = Like(term)
	}
	return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

// Paginate counts the filtered rows, then orders and windows the query into dest.
func Paginate(db *gorm.DB, q Query, cols Columns, dest interface{}) (int64, error) {
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	err := db.Order(cols.OrderBy(q)).Limit(q.Limit).Offset(q.Offset()).Find(dest).Error
	return total, err
}
