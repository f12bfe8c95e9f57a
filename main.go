package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/internal/config"
	"github.com/phimhub/phimhub/internal/logging"
	"github.com/phimhub/phimhub/listing"
	"github.com/phimhub/phimhub/pkg/phimhub"
)

const defaultAPI = "http://localhost:8080"

// cliEnv holds the settings only the CLI reads.
type cliEnv struct {
	API   string `env:"PHIMHUB_API" envDefault:"http://localhost:8080"`
	Pages int    `env:"PHIMHUB_PAGES" envDefault:"1"`
}

func loadCLIEnv() cliEnv {
	e, err := env.ParseAs[cliEnv]()
	if err != nil || e.Pages < 1 {
		e.Pages = 1
	}
	if e.API == "" {
		e.API = defaultAPI
	}
	return e
}

func main() {
	if err := runCLI(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runCLI(args []string, out io.Writer) error {
	if len(args) == 0 {
		return browse(out, listing.KindNew, "", 1, false)
	}
	switch args[0] {
	case "help", "--help", "-h":
		fmt.Fprintln(out, "Usage: phimhub [command]")
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  new [page]                     Newly updated titles")
		fmt.Fprintln(out, "  list <kind> <slug> [page]      kind is category, country, genre or year")
		fmt.Fprintln(out, "  search <keyword> [page]        Search titles")
		fmt.Fprintln(out, "  movie <slug>                   Show one title")
		fmt.Fprintln(out, "  --help, -h                     Show this help message")
		fmt.Fprintln(out, "  PHIMHUB_API                    Site API base url (default "+defaultAPI+")")
		fmt.Fprintln(out, "  PHIMHUB_PAGES                  Pages to walk, prefetching ahead (default 1)")
		return nil
	case "version", "--version", "-v":
		fmt.Fprintln(out, "phimhub v0.1.0")
		return nil
	case "new":
		page, err := pageArg(args, 1)
		if err != nil {
			return err
		}
		return browse(out, listing.KindNew, "", page, walkPages() > 1)
	case "search":
		if len(args) < 2 {
			return fmt.Errorf("usage: phimhub search <keyword> [page]")
		}
		page, err := pageArg(args, 2)
		if err != nil {
			return err
		}
		return browse(out, listing.KindSearch, args[1], page, walkPages() > 1)
	case "list":
		if len(args) < 3 {
			return fmt.Errorf("usage: phimhub list <kind> <slug> [page]")
		}
		kind := listing.Kind(args[1])
		switch kind {
		case listing.KindCategory, listing.KindCountry, listing.KindGenre, listing.KindYear:
		default:
			return fmt.Errorf("unknown listing kind: %s", args[1])
		}
		page, err := pageArg(args, 3)
		if err != nil {
			return err
		}
		return browse(out, kind, args[2], page, walkPages() > 1)
	case "movie":
		if len(args) < 2 {
			return fmt.Errorf("usage: phimhub movie <slug>")
		}
		return showMovie(out, args[1])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func pageArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 1, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page %q", args[i])
	}
	return n, nil
}

func walkPages() int {
	return loadCLIEnv().Pages
}

// newClient builds the SDK client. Prefetch delay and log level come from the
// shared configuration; logs go to stderr so they never mix with results.
func newClient() (*phimhub.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, _ := logging.New(logging.Options{Level: cfg.LogLevel, Console: true, Out: os.Stderr})
	return phimhub.New(loadCLIEnv().API,
		phimhub.WithPrefetchDelay(cfg.PrefetchDelay),
		phimhub.WithLogger(logger),
	)
}

// browse prints up to PHIMHUB_PAGES pages starting at page. With more than
// one page the next one is prefetched while the current one is printed.
func browse(out io.Writer, kind listing.Kind, slug string, page int, prefetchNext bool) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	pager := client.NewPager(kind, slug, prefetchNext)
	defer pager.Close()

	ctx := context.Background()
	for i := 0; i < walkPages(); i++ {
		p, err := pager.Page(ctx, page+i)
		if err != nil {
			return fmt.Errorf("failed to load %s: %v", kind, err)
		}
		printPage(out, p)
		if !p.Pagination.HasNext() {
			break
		}
		pager.Wait()
	}
	return nil
}

func printPage(out io.Writer, p catalog.Page) {
	pg := p.Pagination
	fmt.Fprintf(out, "Page %d/%d (%d titles)\n", pg.CurrentPage, pg.TotalPages, pg.TotalItems)
	if len(p.Data) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	for _, m := range p.Data {
		fmt.Fprintf(out, "  %-40s %4s  %s\n", m.Slug, yearString(m.Year), m.Name)
	}
}

func yearString(y int) string {
	if y == 0 {
		return "-"
	}
	return strconv.Itoa(y)
}

func showMovie(out io.Writer, slug string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	m, err := client.Movie(context.Background(), slug)
	if err != nil {
		return fmt.Errorf("failed to load movie %s: %v", slug, err)
	}
	fmt.Fprintf(out, "%s (%s)\n", m.Name, m.OriginalName)
	fmt.Fprintf(out, "Year: %s  Type: %s  Quality: %s  Language: %s\n", yearString(m.Year), m.Type, m.Quality, m.Language)
	if len(m.Genres) > 0 {
		names := make([]string, 0, len(m.Genres))
		for _, g := range m.Genres {
			names = append(names, g.Name)
		}
		fmt.Fprintf(out, "Genres: %s\n", strings.Join(names, ", "))
	}
	if m.Synopsis != "" {
		fmt.Fprintf(out, "\n%s\n", m.Synopsis)
	}
	return nil
}
