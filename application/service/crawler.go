package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixml/memeindex/domain/queue"
	"github.com/helixml/memeindex/infrastructure/crawler"
)

// PageFetcher downloads a listing page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (crawler.Page, error)
}

// PageExtractor turns a listing page into candidates and a next link.
type PageExtractor interface {
	Extract(page crawler.Page) (crawler.Listing, error)
}

// CrawlStats counts what a crawl did.
type CrawlStats struct {
	Pages        int
	Found        int
	Sent         int
	SendFailures int
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithMaxPages stops the crawl after n pages. Zero or less means no limit.
func WithMaxPages(n int) CrawlerOption {
	return func(c *Crawler) { c.maxPages = n }
}

// WithCrawlerLogger sets the logger.
func WithCrawlerLogger(l *slog.Logger) CrawlerOption {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// Crawler walks a paginated listing and publishes every post it finds.
type Crawler struct {
	fetcher   PageFetcher
	extractor PageExtractor
	sender    queue.Sender
	maxPages  int
	logger    *slog.Logger
}

// NewCrawler creates a crawler publishing to sender.
func NewCrawler(fetcher PageFetcher, extractor PageExtractor, sender queue.Sender, opts ...CrawlerOption) (*Crawler, error) {
	if fetcher == nil || extractor == nil {
		return nil, fmt.Errorf("NewCrawler: fetcher and extractor are required")
	}
	if sender == nil {
		return nil, fmt.Errorf("NewCrawler: nil sender")
	}
	c := &Crawler{
		fetcher:   fetcher,
		extractor: extractor,
		sender:    sender,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Crawl follows next links from startURL until the last page, the page
// limit, or a link already visited. A failed send is logged and the post
// dropped; a failed fetch ends the crawl with an error.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (CrawlStats, error) {
	var stats CrawlStats
	visited := make(map[string]struct{})

	c.logger.Info("crawl started", slog.String("url", startURL), slog.Int("max_pages", c.maxPages))

	for next := startURL; next != ""; {
		if c.maxPages > 0 && stats.Pages >= c.maxPages {
			c.logger.Info("page limit reached", slog.Int("pages", stats.Pages))
			break
		}
		if _, seen := visited[next]; seen {
			c.logger.Warn("pagination revisits a page, stopping", slog.String("url", next))
			break
		}
		visited[next] = struct{}{}

		page, err := c.fetcher.Fetch(ctx, next)
		if err != nil {
			return stats, fmt.Errorf("fetch page %d: %w", stats.Pages+1, err)
		}
		if page.URL != nil {
			visited[page.URL.String()] = struct{}{}
		}
		listing, err := c.extractor.Extract(page)
		if err != nil {
			return stats, fmt.Errorf("extract page %d: %w", stats.Pages+1, err)
		}
		stats.Pages++

		for _, candidate := range listing.Candidates {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Found++
			body, err := candidate.Encode()
			if err != nil {
				stats.SendFailures++
				c.logger.Error("encode candidate", slog.String("title", candidate.Title()), slog.String("error", err.Error()))
				continue
			}
			if err := c.sender.Send(ctx, body); err != nil {
				stats.SendFailures++
				c.logger.Error("send candidate, post dropped",
					slog.String("title", candidate.Title()),
					slog.String("error", err.Error()),
				)
				continue
			}
			stats.Sent++
		}

		c.logger.Info("page crawled",
			slog.String("url", next),
			slog.Int("posts", len(listing.Candidates)),
		)
		next = listing.Next
	}

	c.logger.Info("crawl finished",
		slog.Int("pages", stats.Pages),
		slog.Int("found", stats.Found),
		slog.Int("sent", stats.Sent),
		slog.Int("send_failures", stats.SendFailures),
	)
	return stats, nil
}
