package validators

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/pagination"
)

const (
	maxSearchLength = 200
	maxMatchLength  = 60
	maxOffset       = 1_000_000
)

// ParseListQuery reads search, pagination, sort and the named enum filters
// from the query string. Filters set to "all" or left empty match everything.
func ParseListQuery(r *http.Request, matchKeys ...string) (reconcile.Query, error) {
	values := r.URL.Query()

	limit, err := queryInt(values, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return reconcile.Query{}, err
	}
	offset, err := queryInt(values, "offset", 0, 0, maxOffset)
	if err != nil {
		return reconcile.Query{}, err
	}

	q := reconcile.Query{
		Criteria: reconcile.Criteria{Search: SanitizeString(values.Get("search"), maxSearchLength)},
		Page:     pagination.Params{Limit: limit, Offset: offset},
	}
	for _, key := range matchKeys {
		v := strings.ToLower(SanitizeString(values.Get(key), maxMatchLength))
		if v == "" || v == reconcile.All {
			continue
		}
		if q.Match == nil {
			q.Match = map[string]string{}
		}
		q.Match[key] = v
	}

	if sort := strings.TrimSpace(values.Get("sort")); sort != "" {
		q.SortDesc = strings.HasPrefix(sort, "-")
		q.SortKey = strings.TrimPrefix(sort, "-")
		if q.SortKey == "" {
			return reconcile.Query{}, pkgerrors.New(pkgerrors.CodeValidation, "sort key required").WithDetails(map[string]any{"field": "sort"})
		}
	}
	return q, nil
}

func queryInt(values url.Values, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
