package catalog

import (
	"net/url"
	"strconv"
)

// Options refines a listing query. Zero values are omitted from the upstream
// request; a zero Limit is replaced by the configured default.
type Options struct {
	SortField string `json:"sort_field,omitempty"` // e.g. modified.time, _id, year
	SortType  string `json:"sort_type,omitempty"`  // asc or desc
	SortLang  string `json:"sort_lang,omitempty"`  // vietsub, thuyet-minh, long-tieng
	Limit     int    `json:"limit,omitempty"`
	Category  string `json:"category,omitempty"`
	Country   string `json:"country,omitempty"`
	Year      int    `json:"year,omitempty"`
}

// WithDefaultLimit returns a copy whose Limit is def when unset and at most
// maxLimit when maxLimit is positive.
func (o Options) WithDefaultLimit(def, maxLimit int) Options {
	if o.Limit <= 0 {
		o.Limit = def
	}
	if maxLimit > 0 && o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	return o
}

// Values encodes the options as upstream query parameters.
func (o Options) Values() url.Values {
	v := url.Values{}
	if o.SortField != "" {
		v.Set("sort_field", o.SortField)
	}
	if o.SortType != "" {
		v.Set("sort_type", o.SortType)
	}
	if o.SortLang != "" {
		v.Set("sort_lang", o.SortLang)
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Category != "" {
		v.Set("category", o.Category)
	}
	if o.Country != "" {
		v.Set("country", o.Country)
	}
	if o.Year > 0 {
		v.Set("year", strconv.Itoa(o.Year))
	}
	return v
}

// Params flattens the options into a map suitable for cache key generation.
func (o Options) Params() map[string]string {
	out := make(map[string]string)
	for k, vs := range o.Values() {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
