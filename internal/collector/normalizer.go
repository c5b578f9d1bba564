package collector

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
)

type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, title string, content *string) (*model.Classification, error)
}

var ErrEmptyTitle = errors.New("empty title")

var (
	reURL      = regexp.MustCompile(`https?://\S+`)
	reSpace    = regexp.MustCompile(`\s+`)
	reHNPrefix = regexp.MustCompile(`(?i)^(show hn|ask hn|tell hn):\s*`)
	reWord     = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}+#.\-]*`)
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "that": true,
	"this": true, "into": true, "your": true, "you": true, "are": true, "was": true,
	"how": true, "why": true, "what": true, "when": true, "who": true, "its": true,
	"about": true, "over": true, "after": true, "new": true, "not": true, "has": true,
	"have": true, "will": true, "can": true, "our": true, "out": true, "all": true,
}

const (
	summaryRunes    = 200
	maxLocalTerms   = 8
	classifyMaxBody = 1000
)

// Normalizer turns raw source records into canonical topics. Translator
// and Classifier are optional; without them titles are left untranslated
// and terms come from the title itself.
type Normalizer struct {
	translator Translator
	classifier Classifier
	log        zerolog.Logger
}

func NewNormalizer(t Translator, c Classifier, log zerolog.Logger) *Normalizer {
	return &Normalizer{translator: t, classifier: c, log: log}
}

func (n *Normalizer) Normalize(ctx context.Context, raw model.RawTopic, targetLanguage string) (model.NormalizedTopic, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return model.NormalizedTopic{}, ErrEmptyTitle
	}
	if targetLanguage == "" {
		targetLanguage = DefaultTargetLanguage
	}
	lang := DetectLanguage(title)

	var translated *string
	if lang != targetLanguage && n.translator != nil {
		t, err := n.translator.Translate(ctx, title, lang, targetLanguage)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return model.NormalizedTopic{}, ctx.Err()
			}
			n.log.Warn().Err(err).Str("source", raw.SourceName).Str("lang", lang).Msg("translate failed, keeping original title")
		case strings.TrimSpace(t) != "":
			t = strings.TrimSpace(t)
			translated = &t
		}
	}

	normalized := CleanTitle(title)
	if normalized == "" {
		normalized = strings.ToLower(title)
	}

	cls := n.classify(ctx, title, raw.Content)
	return model.NormalizedTopic{
		SourceName:      raw.SourceName,
		SourceURL:       raw.SourceURL,
		TitleOriginal:   title,
		TitleTranslated: translated,
		TitleNormalized: normalized,
		Summary:         cls.Summary,
		Categories:      cls.Categories,
		Keywords:        cls.Keywords,
		Entities:        cls.Entities,
		Language:        lang,
		PublishedAt:     raw.PublishedAt,
		Metrics:         raw.Metrics,
	}, nil
}

func (n *Normalizer) classify(ctx context.Context, title string, content *string) model.Classification {
	if n.classifier != nil {
		var body *string
		if content != nil && len(*content) < classifyMaxBody {
			body = content
		}
		cls, err := n.classifier.Classify(ctx, title, body)
		if err == nil && cls != nil {
			out := model.Classification{
				Categories: lowerAll(cls.Categories),
				Keywords:   lowerAll(cls.Keywords),
				Entities:   cls.Entities,
				Summary:    strings.TrimSpace(cls.Summary),
			}
			if len(out.Categories) == 0 {
				out.Categories = []string{"general"}
			}
			if out.Summary == "" {
				out.Summary = fallbackSummary(title, content)
			}
			if out.Entities == nil {
				out.Entities = map[string][]string{}
			}
			return out
		}
		if err != nil {
			n.log.Warn().Err(err).Msg("classify failed, using local terms")
		}
	}
	return model.Classification{
		Categories: []string{"general"},
		Keywords:   ExtractKeywords(title),
		Entities:   map[string][]string{},
		Summary:    fallbackSummary(title, content),
	}
}

// CleanTitle strips URLs and HN post prefixes, collapses whitespace and
// lowercases.
func CleanTitle(title string) string {
	title = reURL.ReplaceAllString(title, "")
	title = strings.TrimSpace(reSpace.ReplaceAllString(title, " "))
	title = reHNPrefix.ReplaceAllString(title, "")
	return strings.ToLower(strings.TrimSpace(title))
}

// DetectLanguage is a script heuristic: Hangul, Kana and Han map to ko, ja
// and zh; everything else is en.
func DetectLanguage(text string) string {
	var han bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			return "ko"
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			return "ja"
		case unicode.Is(unicode.Han, r):
			han = true
		}
	}
	if han {
		return "zh"
	}
	return "en"
}

// ExtractKeywords picks distinct non-stopword tokens of a title in order.
func ExtractKeywords(title string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range reWord.FindAllString(CleanTitle(title), -1) {
		w = strings.Trim(w, ".-")
		if len([]rune(w)) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxLocalTerms {
			break
		}
	}
	return out
}

func fallbackSummary(title string, content *string) string {
	src := title
	if content != nil && strings.TrimSpace(*content) != "" {
		src = strings.TrimSpace(*content)
	}
	r := []rune(src)
	if len(r) > summaryRunes {
		r = r[:summaryRunes]
	}
	return string(r)
}
