package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/helixml/memeindex/domain/post"
)

// Old-reddit listing selectors.
const (
	postSelector     = "div.thing"
	titleSelector    = "p.title a.title"
	scoreSelector    = "div.score.unvoted"
	commentsSelector = "a.comments"
	nextSelector     = "span.next-button a"
)

// Listing is the result of extracting one page.
type Listing struct {
	Candidates []post.Candidate
	// Next is the absolute URL of the next page, or empty on the last page.
	Next string
}

// RedditExtractor reads post blocks from old.reddit.com listing markup.
// Fields that are missing or unparseable fall back to defaults; extraction
// of one post never fails the page.
type RedditExtractor struct{}

// NewRedditExtractor creates a RedditExtractor.
func NewRedditExtractor() RedditExtractor { return RedditExtractor{} }

// Extract parses the page. Only malformed HTML input is an error.
func (RedditExtractor) Extract(page Page) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return Listing{}, fmt.Errorf("parse html: %w", err)
	}

	var listing Listing
	doc.Find(postSelector).Each(func(_ int, s *goquery.Selection) {
		listing.Candidates = append(listing.Candidates, extractPost(s, page.URL))
	})

	if href, ok := doc.Find(nextSelector).First().Attr("href"); ok {
		listing.Next = resolve(page.URL, href)
	}
	return listing, nil
}

func extractPost(s *goquery.Selection, base *url.URL) post.Candidate {
	title := strings.TrimSpace(s.Find(titleSelector).First().Text())
	imageURL, _ := s.Attr("data-url")

	score := 0
	if raw, ok := s.Find(scoreSelector).First().Attr("title"); ok {
		score = parseCount(raw)
	}

	comments := s.Find(commentsSelector).First()
	numComments := parseComments(comments.Text())

	postURL := ""
	if href, ok := comments.Attr("href"); ok {
		postURL = resolve(base, href)
	}

	return post.NewCandidate(title, resolve(base, imageURL), postURL, score, numComments)
}

// parseComments reads the leading count of a label such as "1,234 comments".
// Labels without a number ("comment") mean zero.
func parseComments(label string) int {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0
	}
	return parseCount(fields[0])
}

func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
