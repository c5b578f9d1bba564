package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// boardSite describes one community board layout. Empty selectors mean the
// site does not expose that field on its list page.
type boardSite struct {
	baseURL       string
	defaultBoards []string
	listPath      func(board, galleryType string) string

	item     string
	fallback string
	title    string
	link     string
	score    string
	views    string
	comments string
	author   string
	date     string
}

var boardSites = map[string]boardSite{
	"dcinside": {
		baseURL:       "https://gall.dcinside.com",
		defaultBoards: []string{"hit"},
		listPath: func(board, galleryType string) string {
			q := "?" + url.Values{"id": {board}}.Encode()
			switch galleryType {
			case "minor":
				return "/mgallery/board/lists/" + q
			case "mini":
				return "/mini/board/lists/" + q
			default:
				return "/board/lists/" + q
			}
		},
		item:     "tr.ub-content",
		title:    ".gall_tit a:first-child",
		score:    ".gall_recommend",
		views:    ".gall_count",
		comments: ".gall_tit .reply_num",
		author:   ".gall_writer .nickname, .gall_writer em",
		date:     ".gall_date",
	},
	"clien": {
		baseURL:       "https://www.clien.net",
		defaultBoards: []string{"park"},
		listPath:      func(board, _ string) string { return "/service/board/" + board },
		item:          "div.list_item",
		title:         ".list_subject, .subject_fixed",
		link:          "a.list_subject",
		views:         ".view_count, .hit",
		comments:      ".rSymph05, .comment_count",
		author:        ".nickname, .author",
		date:          ".timestamp, .time",
	},
	"ruliweb": {
		baseURL:       "https://bbs.ruliweb.com",
		defaultBoards: []string{"best/humor"},
		listPath:      func(board, _ string) string { return "/" + board },
		item:          "tr.table_body",
		title:         "a.subject_link, a.deco",
		score:         "td.recomd",
		views:         "td.hit",
		comments:      "span.num_reply, a.num_reply",
		author:        "td.writer, span.writer",
		date:          "td.time",
	},
	"fmkorea": {
		baseURL:       "https://www.fmkorea.com",
		defaultBoards: []string{"best"},
		listPath:      func(board, _ string) string { return "/" + board },
		item:          "li.li",
		fallback:      "table.bd_tb tbody tr:not(.notice)",
		title:         "h3.title a, .title a",
		score:         ".pc_voted_count .count, td.m_no_voted",
		comments:      ".comment_count",
		author:        ".author",
		date:          ".regdate, td.time",
	},
}

// kst is fixed so parsing does not depend on tzdata being installed.
var kst = time.FixedZone("KST", 9*60*60)

// Board scrapes the list pages of a Korean community site.
type Board struct {
	name     string
	site     boardSite
	base     *url.URL
	boards   []string
	gallery  string
	limit    int
	minScore int
	http     *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
	now      func() time.Time
}

func newBoardSource(name string, cfg Config, deps Deps) (Source, error) {
	src, err := NewBoard(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func NewBoard(name string, cfg Config, deps Deps) (*Board, error) {
	site, ok := boardSites[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	switch cfg.Params.GalleryType {
	case "", "major", "minor", "mini":
	default:
		return nil, fmt.Errorf("%w: params.gallery_type %q", ErrInvalidParam, cfg.Params.GalleryType)
	}
	base, err := url.Parse(deps.baseURLOr(site.baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidParam, err)
	}
	boards := make([]string, 0, len(cfg.Params.Boards))
	for _, b := range cfg.Params.Boards {
		if b = strings.Trim(strings.TrimSpace(b), "/"); b != "" {
			boards = append(boards, b)
		}
	}
	if len(boards) == 0 {
		boards = site.defaultBoards
	}
	return &Board{
		name:     name,
		site:     site,
		base:     base,
		boards:   boards,
		gallery:  cfg.Params.GalleryType,
		limit:    cfg.limitOr(10),
		minScore: cfg.minScoreOr(0),
		http:     deps.client(15 * time.Second),
		limiter:  deps.limiter(name, 2*time.Second, 1),
		log:      deps.Logger.With().Str("source", name).Logger(),
		now:      time.Now,
	}, nil
}

func (b *Board) Name() string { return b.name }

// Collect reads every configured board. A failing board is skipped; the
// call fails only when every board failed.
func (b *Board) Collect(ctx context.Context) ([]model.RawTopic, error) {
	var (
		out     []model.RawTopic
		lastErr error
		failed  int
	)
	for _, board := range b.boards {
		posts, err := b.collectBoard(ctx, board)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.log.Warn().Err(err).Str("board", board).Msg("board fetch failed")
			lastErr = err
			failed++
			continue
		}
		out = append(out, posts...)
	}
	if failed == len(b.boards) {
		return nil, fmt.Errorf("%s: all boards failed: %w", b.name, lastErr)
	}
	b.log.Info().Int("count", len(out)).Msg("board collected")
	return out, nil
}

func (b *Board) collectBoard(ctx context.Context, board string) ([]model.RawTopic, error) {
	ref, err := url.Parse(b.site.listPath(board, b.gallery))
	if err != nil {
		return nil, fmt.Errorf("list url: %w", err)
	}
	pageURL := b.base.ResolveReference(ref)
	body, err := fetch(ctx, b.http, b.limiter, pageURL.String())
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	rows := doc.Find(b.site.item)
	if rows.Length() == 0 && b.site.fallback != "" {
		rows = doc.Find(b.site.fallback)
	}
	seen := map[string]bool{}
	out := make([]model.RawTopic, 0, b.limit)
	rows.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(out) >= b.limit {
			return false
		}
		raw, ok := b.toRaw(sel, pageURL, board)
		if !ok || seen[raw.SourceURL] {
			return true
		}
		if raw.Metrics["score"] < float64(b.minScore) {
			return true
		}
		seen[raw.SourceURL] = true
		out = append(out, raw)
		return true
	})
	return out, nil
}

func (b *Board) toRaw(sel *goquery.Selection, page *url.URL, board string) (model.RawTopic, bool) {
	titleSel := sel.Find(b.site.title).First()
	title := cleanText(titleSel.Clone().ChildrenFiltered(".reply_num, .num_reply, .comment_count").Remove().End().Text())
	if title == "" {
		return model.RawTopic{}, false
	}

	linkSel := titleSel
	if b.site.link != "" {
		if l := sel.Find(b.site.link).First(); l.Length() > 0 {
			linkSel = l
		}
	}
	if goquery.NodeName(linkSel) != "a" {
		linkSel = linkSel.Find("a").First()
	}
	href, ok := linkSel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(href, "javascript:") {
		return model.RawTopic{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return model.RawTopic{}, false
	}
	link := page.ResolveReference(ref).String()

	author := b.field(sel, b.site.author)
	content := fmt.Sprintf("작성자: %s | 게시판: %s", author, board)
	raw := model.RawTopic{
		SourceName: b.name,
		SourceID:   link,
		SourceURL:  link,
		Title:      title,
		Content:    &content,
		Metrics: map[string]float64{
			"score":    parseBoardNumber(b.field(sel, b.site.score)),
			"views":    parseBoardNumber(b.field(sel, b.site.views)),
			"comments": parseBoardNumber(b.field(sel, b.site.comments)),
		},
		Metadata: map[string]string{"board": board, "author": author},
	}
	if d := b.dateText(sel); d != "" {
		if t, ok := parseBoardTime(d, b.now()); ok {
			raw.PublishedAt = &t
		}
	}
	return raw, true
}

func (b *Board) field(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return cleanText(sel.Find(selector).First().Text())
}

// dateText prefers the title attribute, which dcinside fills with the full
// timestamp while the cell shows a short form.
func (b *Board) dateText(sel *goquery.Selection) string {
	if b.site.date == "" {
		return ""
	}
	d := sel.Find(b.site.date).First()
	if t, ok := d.Attr("title"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return cleanText(d.Text())
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var numberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([kK만천]?)`)

// parseBoardNumber reads counters such as "1,234", "[12]", "1.2k" and
// "3.4만". Unparseable input is zero.
func parseBoardNumber(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k", "K", "천":
		n *= 1_000
	case "만":
		n *= 10_000
	}
	return n
}

var relativeRe = regexp.MustCompile(`(\d+)\s*(초|분|시간|일)\s*전`)

var boardLayouts = []struct {
	layout   string
	noYear   bool
	timeOnly bool
}{
	{layout: "2006-01-02 15:04:05"},
	{layout: "2006-01-02 15:04"},
	{layout: "2006.01.02 15:04:05"},
	{layout: "2006.01.02 15:04"},
	{layout: "2006-01-02"},
	{layout: "2006.01.02"},
	{layout: "06.01.02"},
	{layout: "01-02 15:04", noYear: true},
	{layout: "01.02 15:04", noYear: true},
	{layout: "01-02", noYear: true},
	{layout: "01.02", noYear: true},
	{layout: "01/02", noYear: true},
	{layout: "15:04:05", timeOnly: true},
	{layout: "15:04", timeOnly: true},
}

// parseBoardTime understands the relative Korean forms boards print for
// recent posts plus the usual absolute layouts, interpreted in KST.
func parseBoardTime(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	now = now.In(kst)
	switch {
	case strings.Contains(s, "방금"):
		return now.UTC(), true
	case strings.Contains(s, "그저께"), strings.Contains(s, "그제"):
		return now.AddDate(0, 0, -2).UTC(), true
	case strings.Contains(s, "어제"):
		return now.AddDate(0, 0, -1).UTC(), true
	}
	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Duration
		switch m[2] {
		case "초":
			d = time.Duration(n) * time.Second
		case "분":
			d = time.Duration(n) * time.Minute
		case "시간":
			d = time.Duration(n) * time.Hour
		case "일":
			d = time.Duration(n) * 24 * time.Hour
		}
		return now.Add(-d).UTC(), true
	}
	for _, l := range boardLayouts {
		t, err := time.ParseInLocation(l.layout, s, kst)
		if err != nil {
			continue
		}
		switch {
		case l.timeOnly:
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, kst)
		case l.noYear:
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, kst)
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}
