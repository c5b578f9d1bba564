package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const samplePage = `<html><body><ul class="list">
<li class="post"><a class="title" href="/posts/1">  First   post </a><p class="sum">Short summary</p><time datetime="2025-03-04T10:30:00Z">x</time></li>
<li class="post"><a class="title" href="https://other.example/2">Second post</a></li>
<li class="post"><a class="title" href="/posts/1">Duplicate link</a></li>
<li class="post"><span class="title">No link</span></li>
<li class="post"><a class="title" href="/posts/3">Third post</a></li>
</ul></body></html>`

func TestScraperCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	cfg := Config{Limit: 2, Params: Params{
		PageURL:         srv.URL + "/board",
		ItemSelector:    "li.post",
		TitleSelector:   ".title",
		LinkSelector:    "a.title",
		SummarySelector: ".sum",
	}}
	sc, err := NewScraper("board_scraper", cfg, Deps{})
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}
	got, err := sc.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var pairs [][2]string
	for _, r := range got {
		pairs = append(pairs, [2]string{r.Title, r.SourceURL})
	}
	want := [][2]string{
		{"First post", srv.URL + "/posts/1"},
		{"Second post", "https://other.example/2"},
	}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if got[0].Content == nil || *got[0].Content != "Short summary" {
		t.Fatalf("content = %v", got[0].Content)
	}
	if got[0].PublishedAt == nil {
		t.Fatal("published_at should be read from <time datetime>")
	}
}

func TestScraperSkipsDuplicatesAndLinkless(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	sc, err := NewScraper("scraper", Config{Params: Params{PageURL: srv.URL, ItemSelector: "li.post a.title"}}, Deps{})
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}
	got, err := sc.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
}

func TestNewScraperValidation(t *testing.T) {
	if _, err := NewScraper("scraper", Config{Params: Params{ItemSelector: "li"}}, Deps{}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing page_url err = %v", err)
	}
	if _, err := NewScraper("scraper", Config{Params: Params{PageURL: "https://example.com"}}, Deps{}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing item_selector err = %v", err)
	}
}
