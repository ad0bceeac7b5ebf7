package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"newscrunch/internal/core"
)

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	db         *sql.DB
	providers  ProviderRepository
	articles   ArticleRepository
	embeddings EmbeddingRepository
	stories    StoryRepository
	keywords   KeywordRepository
	digests    DigestRepository
	rundowns   RundownRepository
	timelines  TimelineRepository
	images     ImageRepository
}

// NewPostgresStore opens a connection pool and verifies it.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	s.providers = &pgProviderRepo{db: db}
	s.articles = &pgArticleRepo{db: db}
	s.embeddings = &pgEmbeddingRepo{db: db}
	s.stories = &pgStoryRepo{db: db}
	s.keywords = &pgKeywordRepo{db: db}
	s.digests = &pgDigestRepo{db: db}
	s.rundowns = &pgRundownRepo{db: db}
	s.timelines = &pgTimelineRepo{db: db}
	s.images = &pgImageRepo{db: db}
	return s, nil
}

func (s *PostgresStore) Providers() ProviderRepository  { return s.providers }
func (s *PostgresStore) Articles() ArticleRepository    { return s.articles }
func (s *PostgresStore) Embeddings() EmbeddingRepository { return s.embeddings }
func (s *PostgresStore) Stories() StoryRepository       { return s.stories }
func (s *PostgresStore) Keywords() KeywordRepository    { return s.keywords }
func (s *PostgresStore) Digests() DigestRepository      { return s.digests }
func (s *PostgresStore) Rundowns() RundownRepository    { return s.rundowns }
func (s *PostgresStore) Timelines() TimelineRepository  { return s.timelines }
func (s *PostgresStore) Images() ImageRepository        { return s.images }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresStore) Close() error                   { return s.db.Close() }

// DB exposes the raw handle for the migration manager.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// storeErr wraps a driver error into a StoreError, classifying constraint
// violations by their SQLSTATE class.
func storeErr(table string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindTransport
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		kind = KindConstraint
	}
	if errors.Is(err, sql.ErrNoRows) {
		kind = KindNotFound
	}
	return &StoreError{Kind: kind, Table: table, Cause: err}
}

func marshalVector(v []float64) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalVector(s string) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

type pgProviderRepo struct{ db *sql.DB }

func (r *pgProviderRepo) List(ctx context.Context) ([]core.Provider, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, url, favicon_url, country, timezone
		FROM providers
		ORDER BY id`)
	if err != nil {
		return nil, storeErr("providers", err)
	}
	defer rows.Close()

	var providers []core.Provider
	for rows.Next() {
		var p core.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.URL, &p.FaviconURL, &p.Country, &p.Timezone); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "providers", Cause: err}
		}
		providers = append(providers, p)
	}
	return providers, storeErr("providers", rows.Err())
}

type pgArticleRepo struct{ db *sql.DB }

func (r *pgArticleRepo) Create(ctx context.Context, article *core.Article) (bool, error) {
	imageURLs, err := json.Marshal(article.ImageURLs)
	if err != nil {
		return false, &StoreError{Kind: KindScan, Table: "articles", Cause: err}
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO articles (provider_id, ts, date, title, subtitle, url, body, image_url, image_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`,
		article.ProviderID, article.TS, article.Date, article.Title, article.Subtitle,
		article.URL, article.Body, article.ImageURL, imageURLs,
	).Scan(&article.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: the URL is already stored.
		return false, nil
	}
	if err != nil {
		return false, storeErr("articles", err)
	}
	return true, nil
}

func (r *pgArticleRepo) URLSet(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT url FROM articles`)
	if err != nil {
		return nil, storeErr("articles", err)
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "articles", Cause: err}
		}
		urls[u] = struct{}{}
	}
	return urls, storeErr("articles", rows.Err())
}

func (r *pgArticleRepo) ListUnembedded(ctx context.Context) ([]core.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.provider_id, a.ts, a.date, a.title, a.subtitle, a.url, a.body, a.image_url, a.image_urls
		FROM articles a
		LEFT JOIN article_embeddings e ON a.id = e.article_id
		WHERE e.article_id IS NULL
		ORDER BY a.id`)
	if err != nil {
		return nil, storeErr("articles", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, storeErr("articles", rows.Err())
}

type rowScanner interface{ Scan(dest ...any) error }

func scanArticle(row rowScanner) (core.Article, error) {
	var a core.Article
	var imageURLs []byte
	if err := row.Scan(&a.ID, &a.ProviderID, &a.TS, &a.Date, &a.Title, &a.Subtitle,
		&a.URL, &a.Body, &a.ImageURL, &imageURLs); err != nil {
		return core.Article{}, &StoreError{Kind: KindScan, Table: "articles", Cause: err}
	}
	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &a.ImageURLs); err != nil {
			return core.Article{}, &StoreError{Kind: KindScan, Table: "articles", Cause: err}
		}
	}
	return a, nil
}

type pgEmbeddingRepo struct{ db *sql.DB }

func (r *pgEmbeddingRepo) CreateArticleEmbedding(ctx context.Context, e core.ArticleEmbedding) error {
	vec, err := marshalVector(e.Embedding)
	if err != nil {
		return &StoreError{Kind: KindScan, Table: "article_embeddings", Cause: err}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO article_embeddings (article_id, embedding) VALUES ($1, $2)`,
		e.ArticleID, vec)
	return storeErr("article_embeddings", err)
}

func (r *pgEmbeddingRepo) CreateStoryEmbedding(ctx context.Context, e core.StoryEmbedding) error {
	vec, err := marshalVector(e.Embedding)
	if err != nil {
		return &StoreError{Kind: KindScan, Table: "story_embeddings", Cause: err}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO story_embeddings (story_id, embedding) VALUES ($1, $2)`,
		e.StoryID, vec)
	return storeErr("story_embeddings", err)
}

func (r *pgEmbeddingRepo) ArticleVectors(ctx context.Context, since time.Time) ([]ArticleVector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.ts, a.title, a.body, p.name, p.country, e.embedding
		FROM article_embeddings e
		JOIN articles a ON a.id = e.article_id
		JOIN providers p ON p.id = a.provider_id
		WHERE a.ts > $1
		ORDER BY a.id`, since)
	if err != nil {
		return nil, storeErr("article_embeddings", err)
	}
	defer rows.Close()

	var vectors []ArticleVector
	for rows.Next() {
		var v ArticleVector
		var vec string
		if err := rows.Scan(&v.ArticleID, &v.TS, &v.Title, &v.Body, &v.Provider, &v.Country, &vec); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "article_embeddings", Cause: err}
		}
		if v.Embedding, err = unmarshalVector(vec); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "article_embeddings", Cause: err}
		}
		vectors = append(vectors, v)
	}
	return vectors, storeErr("article_embeddings", rows.Err())
}

func (r *pgEmbeddingRepo) StoryVectors(ctx context.Context, since time.Time) ([]StoryVector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.ts, s.title, s.summary, s.digest_id, e.embedding
		FROM story_embeddings e
		JOIN stories s ON s.id = e.story_id
		WHERE s.ts > $1
		ORDER BY s.id`, since)
	if err != nil {
		return nil, storeErr("story_embeddings", err)
	}
	defer rows.Close()

	var vectors []StoryVector
	for rows.Next() {
		var v StoryVector
		var vec string
		if err := rows.Scan(&v.StoryID, &v.TS, &v.Title, &v.Summary, &v.DigestID, &vec); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "story_embeddings", Cause: err}
		}
		if v.Embedding, err = unmarshalVector(vec); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "story_embeddings", Cause: err}
		}
		vectors = append(vectors, v)
	}
	return vectors, storeErr("story_embeddings", rows.Err())
}

type pgStoryRepo struct{ db *sql.DB }

func (r *pgStoryRepo) Create(ctx context.Context, story *core.Story) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO stories (ts, digest_id, digest_label, title, summary, coverage)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		story.TS, story.DigestID, story.DigestLabel, story.Title, story.Summary, story.Coverage,
	).Scan(&story.ID)
	return storeErr("stories", err)
}

func (r *pgStoryRepo) AddArticle(ctx context.Context, storyID, articleID int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO story_articles (story_id, article_id) VALUES ($1, $2)`,
		storyID, articleID)
	return storeErr("story_articles", err)
}

func (r *pgStoryRepo) MaxDigestID(ctx context.Context) (int, bool, error) {
	var id sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT max(digest_id) FROM stories`).Scan(&id)
	if err != nil {
		return 0, false, storeErr("stories", err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return int(id.Int64), true, nil
}

func (r *pgStoryRepo) ListByDigest(ctx context.Context, digestID int) ([]core.Story, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, digest_id, digest_label, title, summary, coverage
		FROM stories WHERE digest_id = $1 ORDER BY id`, digestID)
	if err != nil {
		return nil, storeErr("stories", err)
	}
	defer rows.Close()
	return scanStories(rows)
}

func (r *pgStoryRepo) ListUnembedded(ctx context.Context) ([]core.Story, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.ts, s.digest_id, s.digest_label, s.title, s.summary, s.coverage
		FROM stories s
		LEFT JOIN story_embeddings e ON s.id = e.story_id
		WHERE e.story_id IS NULL
		ORDER BY s.id`)
	if err != nil {
		return nil, storeErr("stories", err)
	}
	defer rows.Close()
	return scanStories(rows)
}

func scanStories(rows *sql.Rows) ([]core.Story, error) {
	var stories []core.Story
	for rows.Next() {
		var s core.Story
		if err := rows.Scan(&s.ID, &s.TS, &s.DigestID, &s.DigestLabel, &s.Title, &s.Summary, &s.Coverage); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "stories", Cause: err}
		}
		stories = append(stories, s)
	}
	return stories, storeErr("stories", rows.Err())
}

func (r *pgStoryRepo) WithArticles(ctx context.Context, digestID int) ([]StoryWithArticles, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.ts, s.digest_id, s.digest_label, s.title, s.summary, s.coverage,
		       a.id, a.provider_id, a.ts, a.date, a.title, a.subtitle, a.url, a.body, a.image_url, a.image_urls,
		       p.id, p.name, p.url, p.favicon_url, p.country, p.timezone
		FROM story_articles sa
		JOIN stories s ON s.id = sa.story_id
		JOIN articles a ON a.id = sa.article_id
		JOIN providers p ON p.id = a.provider_id
		WHERE s.digest_id = $1
		ORDER BY s.id, a.id`, digestID)
	if err != nil {
		return nil, storeErr("story_articles", err)
	}
	defer rows.Close()

	var out []StoryWithArticles
	index := make(map[int]int)
	for rows.Next() {
		var s core.Story
		var a core.Article
		var p core.Provider
		var imageURLs []byte
		if err := rows.Scan(
			&s.ID, &s.TS, &s.DigestID, &s.DigestLabel, &s.Title, &s.Summary, &s.Coverage,
			&a.ID, &a.ProviderID, &a.TS, &a.Date, &a.Title, &a.Subtitle, &a.URL, &a.Body, &a.ImageURL, &imageURLs,
			&p.ID, &p.Name, &p.URL, &p.FaviconURL, &p.Country, &p.Timezone,
		); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "story_articles", Cause: err}
		}
		if len(imageURLs) > 0 {
			if err := json.Unmarshal(imageURLs, &a.ImageURLs); err != nil {
				return nil, &StoreError{Kind: KindScan, Table: "story_articles", Cause: err}
			}
		}
		i, ok := index[s.ID]
		if !ok {
			i = len(out)
			index[s.ID] = i
			out = append(out, StoryWithArticles{Story: s})
		}
		out[i].Articles = append(out[i].Articles, ArticleWithProvider{Article: a, Provider: p})
	}
	return out, storeErr("story_articles", rows.Err())
}

type pgKeywordRepo struct{ db *sql.DB }

func (r *pgKeywordRepo) Upsert(ctx context.Context, text string, kind core.KeywordType) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO keywords (keyword, type) VALUES ($1, $2)
		ON CONFLICT (keyword, type) DO UPDATE SET keyword = EXCLUDED.keyword
		RETURNING id`,
		text, string(kind)).Scan(&id)
	return id, storeErr("keywords", err)
}

func (r *pgKeywordRepo) LinkStory(ctx context.Context, storyID, keywordID int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO story_keywords (story_id, keyword_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		storyID, keywordID)
	return storeErr("story_keywords", err)
}

func (r *pgKeywordRepo) LinkTimeline(ctx context.Context, timelineID, keywordID int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_keywords (timeline_id, keyword_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		timelineID, keywordID)
	return storeErr("timeline_keywords", err)
}

type pgDigestRepo struct{ db *sql.DB }

func (r *pgDigestRepo) Create(ctx context.Context, digest core.Digest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO digests (id, ts, state) VALUES ($1, $2, $3)`,
		digest.ID, digest.TS, string(digest.State))
	return storeErr("digests", err)
}

func (r *pgDigestRepo) MaxID(ctx context.Context) (int, bool, error) {
	var id sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT max(id) FROM digests`).Scan(&id)
	if err != nil {
		return 0, false, storeErr("digests", err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return int(id.Int64), true, nil
}

func (r *pgDigestRepo) LatestIncomplete(ctx context.Context) (core.Digest, error) {
	return r.scanOne(ctx, `
		SELECT id, ts, state FROM digests
		WHERE state != $1 ORDER BY ts DESC LIMIT 1`, string(core.StateReady))
}

func (r *pgDigestRepo) LatestReady(ctx context.Context) (core.Digest, error) {
	return r.scanOne(ctx, `
		SELECT id, ts, state FROM digests
		WHERE state = $1 ORDER BY id DESC LIMIT 1`, string(core.StateReady))
}

func (r *pgDigestRepo) scanOne(ctx context.Context, query string, args ...any) (core.Digest, error) {
	var d core.Digest
	var state string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&d.ID, &d.TS, &state)
	if err != nil {
		return core.Digest{}, storeErr("digests", err)
	}
	d.State = core.DigestState(state)
	return d, nil
}

func (r *pgDigestRepo) AdvanceState(ctx context.Context, id int, expected, final core.DigestState, ts time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE digests SET state = $1, ts = $2 WHERE id = $3 AND state = $4`,
		string(final), ts, id, string(expected))
	if err != nil {
		return false, storeErr("digests", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("digests", err)
	}
	return n == 1, nil
}

type pgRundownRepo struct{ db *sql.DB }

func (r *pgRundownRepo) Create(ctx context.Context, rundown core.DigestRundown) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO digest_rundowns (digest_id, rundown_type, rundown) VALUES ($1, $2, $3)`,
		rundown.DigestID, string(rundown.Type), rundown.Text)
	return storeErr("digest_rundowns", err)
}

func (r *pgRundownRepo) ListByDigest(ctx context.Context, digestID int) ([]core.DigestRundown, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT digest_id, rundown_type, rundown FROM digest_rundowns
		WHERE digest_id = $1 ORDER BY rundown_type`, digestID)
	if err != nil {
		return nil, storeErr("digest_rundowns", err)
	}
	defer rows.Close()

	var rundowns []core.DigestRundown
	for rows.Next() {
		var d core.DigestRundown
		var kind string
		if err := rows.Scan(&d.DigestID, &kind, &d.Text); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "digest_rundowns", Cause: err}
		}
		d.Type = core.RundownType(kind)
		rundowns = append(rundowns, d)
	}
	return rundowns, storeErr("digest_rundowns", rows.Err())
}

type pgTimelineRepo struct{ db *sql.DB }

func (r *pgTimelineRepo) Create(ctx context.Context, timeline *core.Timeline) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO timelines (ts, digest_id, subject, headline, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		timeline.TS, timeline.DigestID, timeline.Subject, timeline.Headline, timeline.Summary,
	).Scan(&timeline.ID)
	return storeErr("timelines", err)
}

func (r *pgTimelineRepo) AddEvent(ctx context.Context, event core.TimelineEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (timeline_id, story_id, description, date, date_precision)
		VALUES ($1, $2, $3, $4, $5)`,
		event.TimelineID, event.StoryID, event.Description, event.Date, string(event.Precision))
	return storeErr("timeline_events", err)
}

func (r *pgTimelineRepo) AddStory(ctx context.Context, timelineID, storyID int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_stories (timeline_id, story_id) VALUES ($1, $2)`,
		timelineID, storyID)
	return storeErr("timeline_stories", err)
}

func (r *pgTimelineRepo) ListByDigest(ctx context.Context, digestID int) ([]core.Timeline, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, digest_id, subject, headline, summary
		FROM timelines WHERE digest_id = $1 ORDER BY id`, digestID)
	if err != nil {
		return nil, storeErr("timelines", err)
	}
	defer rows.Close()

	var timelines []core.Timeline
	for rows.Next() {
		var t core.Timeline
		if err := rows.Scan(&t.ID, &t.TS, &t.DigestID, &t.Subject, &t.Headline, &t.Summary); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "timelines", Cause: err}
		}
		timelines = append(timelines, t)
	}
	return timelines, storeErr("timelines", rows.Err())
}

type pgImageRepo struct{ db *sql.DB }

func (r *pgImageRepo) Create(ctx context.Context, image core.StoryImage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO images (story_id, title, url, source_page, height, width, format)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		image.StoryID, image.Title, image.URL, image.SourcePage, image.Height, image.Width, image.Format)
	return storeErr("images", err)
}

func (r *pgImageRepo) StoriesWithout(ctx context.Context, digestID int) ([]core.Story, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.ts, s.digest_id, s.digest_label, s.title, s.summary, s.coverage
		FROM stories s
		WHERE s.digest_id = $1
		AND s.id NOT IN (SELECT story_id FROM images)
		ORDER BY s.id`, digestID)
	if err != nil {
		return nil, storeErr("images", err)
	}
	defer rows.Close()
	return scanStories(rows)
}

func (r *pgImageRepo) ListByStory(ctx context.Context, storyID int) ([]core.StoryImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT story_id, title, url, source_page, height, width, format
		FROM images WHERE story_id = $1 ORDER BY id`, storyID)
	if err != nil {
		return nil, storeErr("images", err)
	}
	defer rows.Close()

	var images []core.StoryImage
	for rows.Next() {
		var img core.StoryImage
		if err := rows.Scan(&img.StoryID, &img.Title, &img.URL, &img.SourcePage, &img.Height, &img.Width, &img.Format); err != nil {
			return nil, &StoreError{Kind: KindScan, Table: "images", Cause: err}
		}
		images = append(images, img)
	}
	return images, storeErr("images", rows.Err())
}

var _ Store = (*PostgresStore)(nil)
