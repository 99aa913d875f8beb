package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/colligo/internal/models"
)

var statusIDPattern = regexp.MustCompile(`status/(\d+)`)

// Recommendation sections appended below a discussion; everything after
// one of these markers is unrelated content and must not be extracted.
var boundaryMarkers = []string{"Discover more", "You might like"}

// Platform media host; anything else under an image element is an emoji
// or an icon, not post media.
const mediaURLPrefix = "https://pbs.twimg.com/media/"

// Parser extracts posts from a rendered DOM snapshot.
type Parser struct {
	baseURL   string
	converter *md.Converter
}

// NewParser creates a parser. Post bodies are normalized to plain text
// through a markdown converter whose rules flatten anchors to their text
// and images to their alt text, so platform markup never leaks into the
// stored body.
func NewParser(baseURL string) *Parser {
	converter := md.NewConverter("", true, nil)
	converter.AddRules(
		md.Rule{
			Filter: []string{"img"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				return md.String(selec.AttrOr("alt", ""))
			},
		},
		md.Rule{
			Filter: []string{"a"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				return md.String(content)
			},
		},
	)
	return &Parser{
		baseURL:   baseURL,
		converter: converter,
	}
}

// ParsePosts extracts every post from the snapshot in visual order,
// stopping at a recommendations boundary and skipping spam-flagged
// entries. Posts missing an identifier, author or body are dropped.
func (p *Parser) ParsePosts(html string) ([]models.ExtractedPost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	var posts []models.ExtractedPost
	position := 1

	collect := func(article *goquery.Selection) {
		if post, ok := p.parseArticle(article); ok {
			post.Position = position
			position++
			posts = append(posts, post)
		}
	}

	cells := doc.Find(`[data-testid="cellInnerDiv"]`)
	if cells.Length() > 0 {
		cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			article := cell.Find(`article[data-testid="tweet"]`).First()
			if article.Length() == 0 {
				if hitBoundary(cell.Text()) {
					return false
				}
				return true
			}
			if strings.Contains(article.Text(), "probable spam") {
				return true
			}
			collect(article)
			return true
		})
		return posts, nil
	}

	// No cell wrappers on this page variant; take articles directly.
	doc.Find(`article[data-testid="tweet"]`).Each(func(_ int, article *goquery.Selection) {
		if strings.Contains(article.Text(), "probable spam") {
			return
		}
		collect(article)
	})
	return posts, nil
}

func hitBoundary(text string) bool {
	for _, marker := range boundaryMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func (p *Parser) parseArticle(article *goquery.Selection) (models.ExtractedPost, bool) {
	var post models.ExtractedPost

	timeEl := article.Find("time").First()
	if timeEl.Length() == 0 {
		return post, false
	}

	href := timeEl.Closest("a").AttrOr("href", "")
	match := statusIDPattern.FindStringSubmatch(href)
	if match == nil {
		return post, false
	}
	post.ID = match[1]

	if dt := timeEl.AttrOr("datetime", ""); dt != "" {
		if ts, err := time.Parse(time.RFC3339, dt); err == nil {
			post.CreatedAt = &ts
		}
	}

	// First profile link names the author.
	article.Find(`a[role="link"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h := a.AttrOr("href", "")
		if !strings.HasPrefix(h, "/") {
			return true
		}
		post.Author = strings.SplitN(strings.TrimPrefix(h, "/"), "/", 2)[0]
		return false
	})
	if post.Author == "" {
		return post, false
	}

	textBox := article.Find(`div[data-testid="tweetText"]`).First()
	if textBox.Length() == 0 {
		return post, false
	}
	post.Text = p.normalizeBody(textBox)

	post.Link = fmt.Sprintf("%s/%s/status/%s", p.baseURL, post.Author, post.ID)
	post.HasImage = article.Find(`[data-testid="tweetPhoto"]`).Length() > 0
	post.HasVideo = article.Find(`[data-testid="videoComponent"]`).Length() > 0

	article.Find(`[data-testid="tweetPhoto"] img`).Each(func(_ int, img *goquery.Selection) {
		if src := img.AttrOr("src", ""); strings.HasPrefix(src, mediaURLPrefix) {
			post.ImageRefs = append(post.ImageRefs, src)
		}
	})

	return post, true
}

// normalizeBody resolves the post body markup to plain text. The
// converter's rules reduce anchors to their visible text and emoji
// images to their alt text.
func (p *Parser) normalizeBody(textBox *goquery.Selection) string {
	text := p.converter.Convert(textBox)
	return strings.TrimSpace(text)
}
