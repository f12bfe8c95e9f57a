package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/internal/proxy"
	"github.com/phimhub/phimhub/listing"
)

const (
	maxRevalidateBody = 64 << 10
	swrSeconds        = 3600
)

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	body, err := s.Proxy.Fetch(r.Context(), target)
	if err != nil {
		switch catalog.KindOf(err) {
		case catalog.KindMissingParameter:
			writeError(w, r, http.StatusBadRequest, "Missing url parameter")
		case catalog.KindForbiddenDomain:
			hlog.FromRequest(r).Warn().Str("url", target).Msg("proxy target rejected")
			writeError(w, r, http.StatusForbidden, "Forbidden domain")
		default:
			writeError(w, r, http.StatusInternalServerError, proxy.FetchFailedMessage)
		}
		return
	}

	w.Header().Set("Cache-Control", s.Proxy.Classify(target).CacheControl)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write proxy response")
	}
}

type revalidateRequest struct {
	Tags []string `json:"tags"`
}

type revalidateResponse struct {
	Revalidated bool     `json:"revalidated"`
	Timestamp   int64    `json:"timestamp,omitempty"`
	Error       string   `json:"error,omitempty"`
	Failed      []string `json:"failed,omitempty"`
}

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	var req revalidateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRevalidateBody))
	if err := dec.Decode(&req); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("malformed revalidate body")
		writeJSON(w, r, http.StatusInternalServerError, revalidateResponse{Error: "Invalid request body"})
		return
	}
	if req.Tags == nil {
		writeJSON(w, r, http.StatusInternalServerError, revalidateResponse{Error: "tags must be an array of strings"})
		return
	}

	res, err := s.Revalidator.Revalidate(r.Context(), req.Tags)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, revalidateResponse{Revalidated: true, Timestamp: res.Timestamp})
	case catalog.IsKind(err, catalog.KindRevalidationPartial):
		writeJSON(w, r, http.StatusOK, revalidateResponse{
			Timestamp: res.Timestamp,
			Error:     "some tags could not be revalidated",
			Failed:    res.Failed,
		})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("revalidate failed")
		writeJSON(w, r, http.StatusInternalServerError, revalidateResponse{Error: err.Error()})
	}
}

// handleListing serves one listing kind. Failures degrade to an empty page
// with status 500 so callers can still render "no results".
func (s *Server) handleListing(kind listing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.parseQuery(r, kind)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, catalog.EmptyPage(q.Page, q.Options.Limit))
			return
		}

		page, err := s.Catalog.List(r.Context(), q)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).
				Str("kind", string(kind)).
				Str("slug", q.Slug).
				Int("page", q.Page).
				Str("error_kind", catalog.KindOf(err).String()).
				Msg("listing failed")
			w.Header().Set("Cache-Control", "no-store")
			writeJSON(w, r, http.StatusInternalServerError, catalog.EmptyPage(q.Page, q.Options.Limit))
			return
		}

		w.Header().Set("Cache-Control", s.cacheControl(q.Class()))
		writeJSON(w, r, http.StatusOK, page)
	}
}

func (s *Server) parseQuery(r *http.Request, kind listing.Kind) (listing.Query, error) {
	v := r.URL.Query()
	q := listing.Query{Kind: kind, Page: 1}
	q.Options.Limit = s.Limits.DefaultLimit

	if p, err := strconv.Atoi(v.Get("page")); err == nil && p > 0 {
		q.Page = p
	}
	if l, err := strconv.Atoi(v.Get("limit")); err == nil && l > 0 {
		q.Options.Limit = l
		if s.Limits.MaxLimit > 0 {
			q.Options.Limit = min(l, s.Limits.MaxLimit)
		}
	}
	q.Options.SortField = v.Get("sort_field")
	q.Options.SortType = v.Get("sort_type")
	q.Options.SortLang = v.Get("sort_lang")
	q.Options.Category = v.Get("category")
	q.Options.Country = v.Get("country")
	if y, err := strconv.Atoi(v.Get("year")); err == nil && y > 0 {
		q.Options.Year = y
	}

	switch kind {
	case listing.KindSearch:
		q.Slug = strings.TrimSpace(v.Get("keyword"))
	case listing.KindNew:
	default:
		q.Slug = chi.URLParam(r, "slug")
	}
	if kind != listing.KindNew && q.Slug == "" {
		return q, errors.New("missing slug")
	}
	if kind == listing.KindYear {
		if _, err := strconv.Atoi(q.Slug); err != nil {
			return q, fmt.Errorf("invalid year %q", q.Slug)
		}
	}
	return q, nil
}

func (s *Server) cacheControl(c cache.Class) string {
	return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", int(s.TTLs.For(c)/time.Second), swrSeconds)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	kind := listing.MenuKind(chi.URLParam(r, "menu"))
	refs, err := s.Catalog.Menu(r.Context(), kind)
	if err != nil {
		status := http.StatusInternalServerError
		if catalog.IsKind(err, catalog.KindMissingParameter) {
			status = http.StatusNotFound
		}
		hlog.FromRequest(r).Error().Err(err).Str("menu", string(kind)).Msg("menu failed")
		writeJSON(w, r, status, []catalog.Ref{})
		return
	}
	w.Header().Set("Cache-Control", s.cacheControl(cache.ClassTaxonomy))
	writeJSON(w, r, http.StatusOK, refs)
}

func (s *Server) handleMovie(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	m, err := s.Catalog.Movie(r.Context(), slug)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("slug", slug).Msg("movie failed")
		switch catalog.KindOf(err) {
		case catalog.KindMissingParameter:
			writeError(w, r, http.StatusBadRequest, "invalid slug")
		case catalog.KindInvalidShape:
			writeError(w, r, http.StatusNotFound, "movie not found")
		default:
			writeError(w, r, http.StatusInternalServerError, proxy.FetchFailedMessage)
		}
		return
	}
	w.Header().Set("Cache-Control", s.cacheControl(cache.ClassMovies))
	writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	home, err := s.Catalog.Home(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("home failed")
		writeJSON(w, r, http.StatusInternalServerError, listing.Home{Sections: []listing.HomeSection{}})
		return
	}
	w.Header().Set("Cache-Control", s.cacheControl(cache.ClassBatch))
	writeJSON(w, r, http.StatusOK, home)
}
