package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Crawls runs one crawl of a listing.
type Crawls interface {
	Crawl(ctx context.Context, startURL string) (CrawlStats, error)
}

// PeriodicCrawl re-crawls the start URL on a timer so the queue keeps
// receiving new posts while the server runs.
type PeriodicCrawl struct {
	crawler  Crawls
	startURL string
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPeriodicCrawl creates a PeriodicCrawl. An interval of zero or less
// disables it.
func NewPeriodicCrawl(crawler Crawls, startURL string, interval time.Duration, logger *slog.Logger) *PeriodicCrawl {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicCrawl{
		crawler:  crawler,
		startURL: startURL,
		interval: interval,
		logger:   logger,
	}
}

// Enabled reports whether Start does anything.
func (p *PeriodicCrawl) Enabled() bool { return p.interval > 0 }

// Start crawls immediately and then once per interval in a background
// goroutine. If disabled, this is a no-op.
func (p *PeriodicCrawl) Start(ctx context.Context) {
	if !p.Enabled() {
		p.logger.Info("periodic crawl disabled")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	p.logger.Info("periodic crawl started",
		slog.String("start_url", p.startURL),
		slog.Duration("interval", p.interval),
	)
}

// Stop cancels the background goroutine and waits for the current crawl.
func (p *PeriodicCrawl) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("periodic crawl stopped")
}

func (p *PeriodicCrawl) run(ctx context.Context) {
	p.crawl(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.crawl(ctx)
		}
	}
}

func (p *PeriodicCrawl) crawl(ctx context.Context) {
	stats, err := p.crawler.Crawl(ctx, p.startURL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("periodic crawl failed",
			slog.String("start_url", p.startURL),
			slog.Int("pages", stats.Pages),
			slog.Int("sent", stats.Sent),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("periodic crawl finished", slog.Int("sent", stats.Sent))
}
