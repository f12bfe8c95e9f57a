package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/internal/config"
	appmw "github.com/phimhub/phimhub/internal/http/middleware"
	"github.com/phimhub/phimhub/internal/proxy"
	"github.com/phimhub/phimhub/internal/revalidate"
	"github.com/phimhub/phimhub/listing"
)

// Lister serves cached catalog reads.
type Lister interface {
	List(ctx context.Context, q listing.Query) (catalog.Page, error)
	Menu(ctx context.Context, kind listing.MenuKind) ([]catalog.Ref, error)
	Movie(ctx context.Context, slug string) (catalog.Movie, error)
	Home(ctx context.Context) (listing.Home, error)
}

// Proxy is the upstream gateway.
type Proxy interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
	Classify(target string) proxy.Policy
}

// Revalidator purges cache tags.
type Revalidator interface {
	Revalidate(ctx context.Context, tags []string) (revalidate.Result, error)
}

type Server struct {
	Router      *chi.Mux
	Catalog     Lister
	Proxy       Proxy
	Revalidator Revalidator
	Site        config.SiteConfig
	TTLs        cache.TTLs
	Limits      config.PaginationConfig
}

type ServerOptions struct {
	Catalog     Lister
	Proxy       Proxy
	Revalidator Revalidator
	Cfg         config.Config
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.RequestLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:      r,
		Catalog:     opts.Catalog,
		Proxy:       opts.Proxy,
		Revalidator: opts.Revalidator,
		Site:        opts.Cfg.Site,
		TTLs:        opts.Cfg.TTLs(),
		Limits:      opts.Cfg.Page,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/site", s.handleSite)
		api.With(appmw.RateLimit(appmw.NewIPRateLimiter(opts.Cfg.ProxyRatePerMin))).Get("/proxy", s.handleProxy)
		api.Post("/revalidate", s.handleRevalidate)

		api.Get("/home", s.handleHome)
		api.Get("/menu/{menu}", s.handleMenu)
		api.Get("/movie/{slug}", s.handleMovie)

		api.Get("/movies/new", s.handleListing(listing.KindNew))
		api.Get("/movies/search", s.handleListing(listing.KindSearch))
		api.Get("/movies/category/{slug}", s.handleListing(listing.KindCategory))
		api.Get("/movies/country/{slug}", s.handleListing(listing.KindCountry))
		api.Get("/movies/genre/{slug}", s.handleListing(listing.KindGenre))
		api.Get("/movies/year/{slug}", s.handleListing(listing.KindYear))
	})

	return s
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, r, http.StatusOK, map[string]string{
		"domain":      s.Site.Domain,
		"name":        s.Site.Name,
		"description": s.Site.Description,
	})
}
