package phimapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexInt accepts numbers, numeric strings and null; the upstream is not
// consistent about which one it sends.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(int(n))
	return nil
}

type rawRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type rawMovie struct {
	ID         string   `json:"_id"`
	Name       string   `json:"name"`
	Slug       string   `json:"slug"`
	OriginName string   `json:"origin_name"`
	PosterURL  string   `json:"poster_url"`
	ThumbURL   string   `json:"thumb_url"`
	Year       flexInt  `json:"year"`
	Quality    string   `json:"quality"`
	Lang       string   `json:"lang"`
	Type       string   `json:"type"`
	Category   []rawRef `json:"category"`
	Country    []rawRef `json:"country"`
	Actor      []string `json:"actor"`
	Director   []string `json:"director"`
	Content    string   `json:"content"`
	Time       string   `json:"time"`
}

type rawPagination struct {
	TotalItems        flexInt `json:"totalItems"`
	TotalItemsPerPage flexInt `json:"totalItemsPerPage"`
	ItemsPerPage      flexInt `json:"itemsPerPage"`
	Limit             flexInt `json:"limit"`
	CurrentPage       flexInt `json:"currentPage"`
	TotalPages        flexInt `json:"totalPages"`
}

type rawParams struct {
	Pagination *rawPagination `json:"pagination"`
}

type rawData struct {
	Items      json.RawMessage `json:"items"`
	Pagination *rawPagination  `json:"pagination"`
	Params     *rawParams      `json:"params"`
	CDNImage   string          `json:"APP_DOMAIN_CDN_IMAGE"`
}

// envelope covers every listing payload the upstream has been seen to send.
type envelope struct {
	Items      json.RawMessage `json:"items"`
	Pagination *rawPagination  `json:"pagination"`
	Data       *rawData        `json:"data"`
	CDNImage   string          `json:"APP_DOMAIN_CDN_IMAGE"`
}

type rawDetail struct {
	Status json.RawMessage `json:"status"`
	Msg    string          `json:"msg"`
	Movie  *rawMovie       `json:"movie"`
}
