package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/phimhub/phimhub/catalog"
)

func newSiteAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		switch {
		case r.URL.Path == "/api/movies/category/phim-le":
			_ = json.NewEncoder(w).Encode(catalog.Page{
				Data:       []catalog.Movie{{Slug: "phim-" + strconv.Itoa(page), Name: "Phim " + strconv.Itoa(page), Year: 2024}},
				Pagination: catalog.NewPagination(30, 15, page),
			})
		case r.URL.Path == "/api/movies/new":
			_ = json.NewEncoder(w).Encode(catalog.EmptyPage(page, 15))
		case strings.HasPrefix(r.URL.Path, "/api/movie/"):
			_ = json.NewEncoder(w).Encode(catalog.Movie{
				Name: "Ngôi Trường Xác Sống", OriginalName: "All of Us Are Dead", Year: 2022, Type: catalog.TypeSeries,
				Genres:   []catalog.Ref{{Name: "Kinh Dị", Slug: "kinh-di"}},
				Synopsis: "Zombie outbreak.",
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PHIMHUB_API", srv.URL)
	t.Setenv("PREFETCH_DELAY", "10ms")
	t.Setenv("LOG_LEVEL", "error")
	return srv
}

func TestRunCLIHelpAndVersion(t *testing.T) {
	var out bytes.Buffer
	if err := runCLI([]string{"--help"}, &out); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: phimhub") {
		t.Errorf("unexpected help output: %s", out.String())
	}

	out.Reset()
	if err := runCLI([]string{"version"}, &out); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "phimhub v") {
		t.Errorf("unexpected version output: %s", out.String())
	}
}

func TestRunCLIErrors(t *testing.T) {
	newSiteAPI(t)
	for _, args := range [][]string{
		{"bogus"},
		{"list", "studio", "ghibli"},
		{"list", "category"},
		{"list", "category", "phim-le", "zero"},
		{"search"},
		{"movie"},
		{"list", "genre", "hanh-dong"},
	} {
		if err := runCLI(args, &bytes.Buffer{}); err == nil {
			t.Errorf("runCLI(%v) should fail", args)
		}
	}
}

func TestRunCLIListWalksPages(t *testing.T) {
	newSiteAPI(t)
	t.Setenv("PHIMHUB_PAGES", "3")

	var out bytes.Buffer
	if err := runCLI([]string{"list", "category", "phim-le"}, &out); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Page 1/2 (30 titles)") || !strings.Contains(got, "Page 2/2") {
		t.Errorf("expected both pages, got:\n%s", got)
	}
	if strings.Contains(got, "Page 3/") {
		t.Errorf("should stop at the last page, got:\n%s", got)
	}
	if !strings.Contains(got, "phim-2") {
		t.Errorf("expected second page titles, got:\n%s", got)
	}
}

func TestRunCLINewEmpty(t *testing.T) {
	newSiteAPI(t)

	var out bytes.Buffer
	if err := runCLI(nil, &out); err != nil {
		t.Fatalf("default command failed: %v", err)
	}
	if !strings.Contains(out.String(), "No results found.") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestRunCLIMovie(t *testing.T) {
	newSiteAPI(t)

	var out bytes.Buffer
	if err := runCLI([]string{"movie", "ngoi-truong-xac-song"}, &out); err != nil {
		t.Fatalf("movie failed: %v", err)
	}
	for _, want := range []string{"Ngôi Trường Xác Sống (All of Us Are Dead)", "Type: series", "Genres: Kinh Dị", "Zombie outbreak."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in:\n%s", want, out.String())
		}
	}
}
