// Package embed runs the embedding stage: every article or story without an
// embedding row gets one vector from the embedding model.
package embed

import (
	"context"
	"fmt"

	"newscrunch/internal/core"
	"newscrunch/internal/llm"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
)

// Mode selects which entity the stage embeds.
type Mode string

const (
	ModeArticles Mode = "articles"
	ModeStories  Mode = "stories"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeArticles, ModeStories:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown embed mode %q (want articles or stories)", s)
}

// articleBodyWords caps how much of the body feeds the embedding input.
const articleBodyWords = 800

// Stage embeds pending rows and stores the vectors.
type Stage struct {
	store persistence.Store
	model llm.Embedder
}

// New builds an embedding stage.
func New(store persistence.Store, model llm.Embedder) *Stage {
	return &Stage{store: store, model: model}
}

// Run embeds every pending row of the selected mode and returns how many
// vectors were written. Any model failure aborts the stage so the digest
// state machine does not advance past missing vectors.
func (s *Stage) Run(ctx context.Context, mode Mode) (int, error) {
	switch mode {
	case ModeArticles:
		return s.runArticles(ctx)
	case ModeStories:
		return s.runStories(ctx)
	}
	return 0, fmt.Errorf("unknown embed mode %q", mode)
}

func (s *Stage) runArticles(ctx context.Context) (int, error) {
	log := logger.Get()
	articles, err := s.store.Articles().ListUnembedded(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unembedded articles: %w", err)
	}
	log.Info("Embedding articles", "pending", len(articles))

	written := 0
	for _, article := range articles {
		vector, err := s.embed(ctx, ArticleInput(article))
		if err != nil {
			return written, fmt.Errorf("failed to embed article %d: %w", article.ID, err)
		}
		if err := s.store.Embeddings().CreateArticleEmbedding(ctx, core.ArticleEmbedding{
			ArticleID: article.ID,
			Embedding: vector,
		}); err != nil {
			return written, fmt.Errorf("failed to store embedding for article %d: %w", article.ID, err)
		}
		written++
	}
	log.Info("Article embeddings written", "written", written)
	return written, nil
}

func (s *Stage) runStories(ctx context.Context) (int, error) {
	log := logger.Get()
	stories, err := s.store.Stories().ListUnembedded(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unembedded stories: %w", err)
	}
	log.Info("Embedding stories", "pending", len(stories))

	written := 0
	for _, story := range stories {
		vector, err := s.embed(ctx, StoryInput(story))
		if err != nil {
			return written, fmt.Errorf("failed to embed story %d: %w", story.ID, err)
		}
		if err := s.store.Embeddings().CreateStoryEmbedding(ctx, core.StoryEmbedding{
			StoryID:   story.ID,
			Embedding: vector,
		}); err != nil {
			return written, fmt.Errorf("failed to store embedding for story %d: %w", story.ID, err)
		}
		written++
	}
	log.Info("Story embeddings written", "written", written)
	return written, nil
}

// embed calls the model, retrying once on failure.
func (s *Stage) embed(ctx context.Context, input string) ([]float64, error) {
	vector, err := s.model.Embed(ctx, input)
	if err == nil {
		return vector, nil
	}
	return s.model.Embed(ctx, input)
}

// ArticleInput is the embedding input for an article: title, subtitle and
// the leading words of the body.
func ArticleInput(a core.Article) string {
	return a.Title + "\n" + a.Subtitle + "\n" + core.FirstWords(a.Body, articleBodyWords)
}

// StoryInput is the embedding input for a story: ISO date, title and summary.
func StoryInput(s core.Story) string {
	return s.TS.UTC().Format("2006-01-02") + "\t" + s.Title + "\n" + s.Summary
}
