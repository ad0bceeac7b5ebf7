package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"newscrunch/internal/core"
)

// MemoryStore is an in-memory Store used by tests and dry runs. It enforces
// the same uniqueness rules as the postgres schema.
type MemoryStore struct {
	mu sync.Mutex

	providers []core.Provider

	articles      map[int]core.Article
	articleByURL  map[string]int
	nextArticleID int

	articleEmbeddings map[int][]float64
	storyEmbeddings   map[int][]float64

	stories       map[int]core.Story
	storyArticles map[int][]int
	nextStoryID   int

	keywords         map[string]int // "text\x00type" -> id
	keywordRows      map[int]core.Keyword
	nextKeywordID    int
	storyKeywords    map[int][]int
	timelineKeywords map[int][]int

	digests map[int]core.Digest

	rundowns map[int][]core.DigestRundown

	timelines      map[int]core.Timeline
	timelineEvents map[int][]core.TimelineEvent
	timelineStories map[int][]int
	nextTimelineID int

	images map[int][]core.StoryImage
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:          make(map[int]core.Article),
		articleByURL:      make(map[string]int),
		nextArticleID:     1,
		articleEmbeddings: make(map[int][]float64),
		storyEmbeddings:   make(map[int][]float64),
		stories:           make(map[int]core.Story),
		storyArticles:     make(map[int][]int),
		nextStoryID:       1,
		keywords:          make(map[string]int),
		keywordRows:       make(map[int]core.Keyword),
		nextKeywordID:     1,
		storyKeywords:     make(map[int][]int),
		timelineKeywords:  make(map[int][]int),
		digests:           make(map[int]core.Digest),
		rundowns:          make(map[int][]core.DigestRundown),
		timelines:         make(map[int]core.Timeline),
		timelineEvents:    make(map[int][]core.TimelineEvent),
		timelineStories:   make(map[int][]int),
		images:            make(map[int][]core.StoryImage),
	}
}

// SeedProviders replaces the provider table.
func (m *MemoryStore) SeedProviders(providers []core.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append([]core.Provider(nil), providers...)
}

func (m *MemoryStore) Providers() ProviderRepository   { return (*memProviderRepo)(m) }
func (m *MemoryStore) Articles() ArticleRepository     { return (*memArticleRepo)(m) }
func (m *MemoryStore) Embeddings() EmbeddingRepository { return (*memEmbeddingRepo)(m) }
func (m *MemoryStore) Stories() StoryRepository        { return (*memStoryRepo)(m) }
func (m *MemoryStore) Keywords() KeywordRepository     { return (*memKeywordRepo)(m) }
func (m *MemoryStore) Digests() DigestRepository       { return (*memDigestRepo)(m) }
func (m *MemoryStore) Rundowns() RundownRepository     { return (*memRundownRepo)(m) }
func (m *MemoryStore) Timelines() TimelineRepository   { return (*memTimelineRepo)(m) }
func (m *MemoryStore) Images() ImageRepository         { return (*memImageRepo)(m) }

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }

type memProviderRepo MemoryStore

func (r *memProviderRepo) List(ctx context.Context) ([]core.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Provider(nil), r.providers...), nil
}

type memArticleRepo MemoryStore

func (r *memArticleRepo) Create(ctx context.Context, article *core.Article) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.articleByURL[article.URL]; exists {
		return false, nil
	}
	article.ID = r.nextArticleID
	r.nextArticleID++
	r.articles[article.ID] = *article
	r.articleByURL[article.URL] = article.ID
	return true, nil
}

func (r *memArticleRepo) URLSet(ctx context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make(map[string]struct{}, len(r.articleByURL))
	for u := range r.articleByURL {
		urls[u] = struct{}{}
	}
	return urls, nil
}

func (r *memArticleRepo) ListUnembedded(ctx context.Context) ([]core.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Article
	for id, a := range r.articles {
		if _, ok := r.articleEmbeddings[id]; !ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memEmbeddingRepo MemoryStore

func (r *memEmbeddingRepo) CreateArticleEmbedding(ctx context.Context, e core.ArticleEmbedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.articleEmbeddings[e.ArticleID]; exists {
		return &StoreError{Kind: KindConstraint, Table: "article_embeddings",
			Cause: fmt.Errorf("duplicate embedding for article %d", e.ArticleID)}
	}
	r.articleEmbeddings[e.ArticleID] = append([]float64(nil), e.Embedding...)
	return nil
}

func (r *memEmbeddingRepo) CreateStoryEmbedding(ctx context.Context, e core.StoryEmbedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storyEmbeddings[e.StoryID]; exists {
		return &StoreError{Kind: KindConstraint, Table: "story_embeddings",
			Cause: fmt.Errorf("duplicate embedding for story %d", e.StoryID)}
	}
	r.storyEmbeddings[e.StoryID] = append([]float64(nil), e.Embedding...)
	return nil
}

func (r *memEmbeddingRepo) ArticleVectors(ctx context.Context, since time.Time) ([]ArticleVector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ArticleVector
	for id, vec := range r.articleEmbeddings {
		a, ok := r.articles[id]
		if !ok || !a.TS.After(since) {
			continue
		}
		v := ArticleVector{ArticleID: id, TS: a.TS, Title: a.Title, Body: a.Body, Embedding: vec}
		for _, p := range r.providers {
			if p.ID == a.ProviderID {
				v.Provider = p.Name
				v.Country = p.Country
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out, nil
}

func (r *memEmbeddingRepo) StoryVectors(ctx context.Context, since time.Time) ([]StoryVector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StoryVector
	for id, vec := range r.storyEmbeddings {
		s, ok := r.stories[id]
		if !ok || !s.TS.After(since) {
			continue
		}
		out = append(out, StoryVector{
			StoryID: id, TS: s.TS, Title: s.Title, Summary: s.Summary,
			DigestID: s.DigestID, Embedding: vec,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoryID < out[j].StoryID })
	return out, nil
}

type memStoryRepo MemoryStore

func (r *memStoryRepo) Create(ctx context.Context, story *core.Story) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	story.ID = r.nextStoryID
	r.nextStoryID++
	r.stories[story.ID] = *story
	return nil
}

func (r *memStoryRepo) AddArticle(ctx context.Context, storyID, articleID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storyArticles[storyID] = append(r.storyArticles[storyID], articleID)
	return nil
}

func (r *memStoryRepo) MaxDigestID(ctx context.Context) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxID, found := 0, false
	for _, s := range r.stories {
		if !found || s.DigestID > maxID {
			maxID, found = s.DigestID, true
		}
	}
	return maxID, found, nil
}

func (r *memStoryRepo) ListByDigest(ctx context.Context, digestID int) ([]core.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Story
	for _, s := range r.stories {
		if s.DigestID == digestID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStoryRepo) ListUnembedded(ctx context.Context) ([]core.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Story
	for id, s := range r.stories {
		if _, ok := r.storyEmbeddings[id]; !ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStoryRepo) WithArticles(ctx context.Context, digestID int) ([]StoryWithArticles, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StoryWithArticles
	var storyIDs []int
	for id, s := range r.stories {
		if s.DigestID == digestID {
			storyIDs = append(storyIDs, id)
		}
	}
	sort.Ints(storyIDs)
	for _, id := range storyIDs {
		swa := StoryWithArticles{Story: r.stories[id]}
		for _, articleID := range r.storyArticles[id] {
			a, ok := r.articles[articleID]
			if !ok {
				continue
			}
			awp := ArticleWithProvider{Article: a}
			for _, p := range r.providers {
				if p.ID == a.ProviderID {
					awp.Provider = p
				}
			}
			swa.Articles = append(swa.Articles, awp)
		}
		out = append(out, swa)
	}
	return out, nil
}

type memKeywordRepo MemoryStore

func (r *memKeywordRepo) Upsert(ctx context.Context, text string, kind core.KeywordType) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := text + "\x00" + string(kind)
	if id, ok := r.keywords[key]; ok {
		return id, nil
	}
	id := r.nextKeywordID
	r.nextKeywordID++
	r.keywords[key] = id
	r.keywordRows[id] = core.Keyword{ID: id, Text: text, Type: kind}
	return id, nil
}

func (r *memKeywordRepo) LinkStory(ctx context.Context, storyID, keywordID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storyKeywords[storyID] = append(r.storyKeywords[storyID], keywordID)
	return nil
}

func (r *memKeywordRepo) LinkTimeline(ctx context.Context, timelineID, keywordID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timelineKeywords[timelineID] = append(r.timelineKeywords[timelineID], keywordID)
	return nil
}

type memDigestRepo MemoryStore

func (r *memDigestRepo) Create(ctx context.Context, digest core.Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.digests[digest.ID]; exists {
		return &StoreError{Kind: KindConstraint, Table: "digests",
			Cause: fmt.Errorf("digest %d already exists", digest.ID)}
	}
	r.digests[digest.ID] = digest
	return nil
}

func (r *memDigestRepo) MaxID(ctx context.Context) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxID, found := 0, false
	for id := range r.digests {
		if !found || id > maxID {
			maxID, found = id, true
		}
	}
	return maxID, found, nil
}

func (r *memDigestRepo) LatestIncomplete(ctx context.Context) (core.Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest core.Digest
	found := false
	for _, d := range r.digests {
		if d.State == core.StateReady {
			continue
		}
		if !found || d.TS.After(latest.TS) {
			latest, found = d, true
		}
	}
	if !found {
		return core.Digest{}, &StoreError{Kind: KindNotFound, Table: "digests", Cause: sql.ErrNoRows}
	}
	return latest, nil
}

func (r *memDigestRepo) LatestReady(ctx context.Context) (core.Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest core.Digest
	found := false
	for _, d := range r.digests {
		if d.State != core.StateReady {
			continue
		}
		if !found || d.ID > latest.ID {
			latest, found = d, true
		}
	}
	if !found {
		return core.Digest{}, &StoreError{Kind: KindNotFound, Table: "digests", Cause: sql.ErrNoRows}
	}
	return latest, nil
}

func (r *memDigestRepo) AdvanceState(ctx context.Context, id int, expected, final core.DigestState, ts time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.digests[id]
	if !ok || d.State != expected {
		return false, nil
	}
	d.State = final
	d.TS = ts
	r.digests[id] = d
	return true, nil
}

type memRundownRepo MemoryStore

func (r *memRundownRepo) Create(ctx context.Context, rundown core.DigestRundown) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rundowns[rundown.DigestID] {
		if existing.Type == rundown.Type {
			return &StoreError{Kind: KindConstraint, Table: "digest_rundowns",
				Cause: fmt.Errorf("duplicate rundown %s for digest %d", rundown.Type, rundown.DigestID)}
		}
	}
	r.rundowns[rundown.DigestID] = append(r.rundowns[rundown.DigestID], rundown)
	return nil
}

func (r *memRundownRepo) ListByDigest(ctx context.Context, digestID int) ([]core.DigestRundown, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.DigestRundown(nil), r.rundowns[digestID]...), nil
}

type memTimelineRepo MemoryStore

func (r *memTimelineRepo) Create(ctx context.Context, timeline *core.Timeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.timelines {
		if t.DigestID == timeline.DigestID && t.Subject == timeline.Subject {
			return &StoreError{Kind: KindConstraint, Table: "timelines",
				Cause: fmt.Errorf("duplicate subject %q in digest %d", timeline.Subject, timeline.DigestID)}
		}
	}
	timeline.ID = r.nextTimelineID
	r.nextTimelineID++
	r.timelines[timeline.ID] = *timeline
	return nil
}

func (r *memTimelineRepo) AddEvent(ctx context.Context, event core.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.timelineEvents[event.TimelineID] {
		if e.Description == event.Description {
			return &StoreError{Kind: KindConstraint, Table: "timeline_events",
				Cause: fmt.Errorf("duplicate event description %q", event.Description)}
		}
	}
	r.timelineEvents[event.TimelineID] = append(r.timelineEvents[event.TimelineID], event)
	return nil
}

func (r *memTimelineRepo) AddStory(ctx context.Context, timelineID, storyID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timelineStories[timelineID] = append(r.timelineStories[timelineID], storyID)
	return nil
}

func (r *memTimelineRepo) ListByDigest(ctx context.Context, digestID int) ([]core.Timeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Timeline
	for _, t := range r.timelines {
		if t.DigestID == digestID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// EventsByTimeline returns the stored events for assertions in tests.
func (m *MemoryStore) EventsByTimeline(timelineID int) []core.TimelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.TimelineEvent(nil), m.timelineEvents[timelineID]...)
}

// ArticlesByStory returns the article ids mapped to a story for assertions.
func (m *MemoryStore) ArticlesByStory(storyID int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.storyArticles[storyID]...)
}

// KeywordCount returns the number of distinct (text, type) keywords stored.
func (m *MemoryStore) KeywordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keywords)
}

type memImageRepo MemoryStore

func (r *memImageRepo) Create(ctx context.Context, image core.StoryImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[image.StoryID] = append(r.images[image.StoryID], image)
	return nil
}

func (r *memImageRepo) StoriesWithout(ctx context.Context, digestID int) ([]core.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Story
	for id, s := range r.stories {
		if s.DigestID != digestID {
			continue
		}
		if len(r.images[id]) == 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memImageRepo) ListByStory(ctx context.Context, storyID int) ([]core.StoryImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.StoryImage(nil), r.images[storyID]...), nil
}

var _ Store = (*MemoryStore)(nil)
