package job

import (
	"context"
	"errors"
	"time"

	"autotrader-core/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	feedItemsPerFetch  = 40
	redditPostsPerPull = 50
)

var ErrAllSourcesFailed = errors.New("all ingestion sources failed")

type NewsFetcher interface {
	FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]domain.NewsItem, error)
}

type SocialFetcher interface {
	FetchHot(ctx context.Context, subreddit string, limit int) ([]domain.SocialMediaPost, error)
}

// SentimentSink receives fetched items. The signal service implements it and
// records accepted counts per channel.
type SentimentSink interface {
	IngestNews(items []domain.NewsItem) int
	IngestSocial(posts []domain.SocialMediaPost) int
}

// IngestionResult summarises one ingestion cycle.
type IngestionResult struct {
	NewsFetched   int
	NewsAccepted  int
	PostsFetched  int
	PostsAccepted int
	FailedSources int
}

// IngestionJob pulls RSS feeds and subreddits into the sentiment analyzer.
type IngestionJob struct {
	tracer     trace.Tracer
	log        zerolog.Logger
	news       NewsFetcher
	social     SocialFetcher
	sink       SentimentSink
	feeds      []string
	subreddits []string
	interval   time.Duration
}

func NewIngestionJob(
	tracer trace.Tracer,
	log zerolog.Logger,
	news NewsFetcher,
	social SocialFetcher,
	sink SentimentSink,
	feeds, subreddits []string,
	intervalSecs int,
) *IngestionJob {
	interval := time.Duration(intervalSecs) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &IngestionJob{
		tracer:     tracer,
		log:        log,
		news:       news,
		social:     social,
		sink:       sink,
		feeds:      feeds,
		subreddits: subreddits,
		interval:   interval,
	}
}

// Start blocks until ctx is cancelled.
func (j *IngestionJob) Start(ctx context.Context) {
	if len(j.feeds) == 0 && len(j.subreddits) == 0 {
		j.log.Info().Msg("ingestion job disabled: no feeds or subreddits configured")
		<-ctx.Done()
		return
	}
	j.log.Info().Int("feeds", len(j.feeds)).Int("subreddits", len(j.subreddits)).Dur("interval", j.interval).Msg("ingestion job starting")
	pollLoop(ctx, j.log, "ingestion", j.interval, func(ctx context.Context) error {
		_, err := j.RunOnce(ctx)
		return err
	})
	j.log.Info().Msg("ingestion job stopped")
}

// RunOnce fetches every source once. A failing source is logged and skipped;
// ErrAllSourcesFailed is returned only when none succeeded.
func (j *IngestionJob) RunOnce(ctx context.Context) (IngestionResult, error) {
	ctx, span := j.tracer.Start(ctx, "ingestion-job.run-once")
	defer span.End()

	var res IngestionResult
	attempted := 0
	if j.news != nil {
		for _, feed := range j.feeds {
			attempted++
			items, err := j.news.FetchFeed(ctx, feed, feedItemsPerFetch)
			if err != nil {
				j.log.Warn().Str("feed", feed).Err(err).Msg("feed fetch failed")
				res.FailedSources++
				continue
			}
			res.NewsFetched += len(items)
			res.NewsAccepted += j.sink.IngestNews(items)
		}
	}
	if j.social != nil {
		for _, sub := range j.subreddits {
			attempted++
			posts, err := j.social.FetchHot(ctx, sub, redditPostsPerPull)
			if err != nil {
				j.log.Warn().Str("subreddit", sub).Err(err).Msg("subreddit fetch failed")
				res.FailedSources++
				continue
			}
			res.PostsFetched += len(posts)
			res.PostsAccepted += j.sink.IngestSocial(posts)
		}
	}

	span.SetAttributes(
		attribute.Int("news_accepted", res.NewsAccepted),
		attribute.Int("posts_accepted", res.PostsAccepted),
		attribute.Int("failed_sources", res.FailedSources),
	)
	if res.NewsAccepted > 0 || res.PostsAccepted > 0 {
		j.log.Info().
			Int("news_fetched", res.NewsFetched).
			Int("news_accepted", res.NewsAccepted).
			Int("posts_fetched", res.PostsFetched).
			Int("posts_accepted", res.PostsAccepted).
			Msg("ingestion cycle complete")
	}
	if attempted > 0 && res.FailedSources == attempted {
		return res, ErrAllSourcesFailed
	}
	return res, nil
}
