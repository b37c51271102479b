// Package enrich turns a (title, url) pair into a summary and a short tag list.
// A generative model is tried first; any failure falls back to a deterministic
// keyword tagger, so callers always get a usable result.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Temperature is the sampling temperature sent to every provider.
const Temperature = 0.3

// Source tells where a Result came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Result is the enrichment output. Summary is never empty and Tags holds
// between 1 and domain.MaxTags entries.
type Result struct {
	Summary string
	Tags    []string
	Source  Source
}

// Completer sends one prompt to a text-generation endpoint and returns the raw text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service runs the primary path and the fallback.
type Service struct {
	completer Completer
	tagger    *Tagger
	timeout   time.Duration
	log       logger.Logger
}

// NewService builds the enrichment stage. A nil completer means fallback only.
// A nil tagger uses the built-in rules.
func NewService(c Completer, tagger *Tagger, timeout time.Duration, log logger.Logger) *Service {
	if tagger == nil {
		tagger = DefaultTagger()
	}
	return &Service{completer: c, tagger: tagger, timeout: timeout, log: log}
}

// Enrich never fails: provider errors, empty answers and malformed JSON all
// yield the fallback result.
func (s *Service) Enrich(ctx context.Context, title, url string) (res Result) {
	if s.completer == nil {
		return s.tagger.Fallback(title, url)
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("enrichment panicked, using fallback",
				logger.String("url", url),
				logger.Any("panic", r))
			res = s.tagger.Fallback(title, url)
		}
	}()

	start := time.Now()
	res, err := s.fromModel(ctx, title, url)
	if err != nil {
		s.log.Warn("ai enrichment failed, using fallback",
			logger.String("url", url),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return s.tagger.Fallback(title, url)
	}

	s.log.Debug("ai enrichment succeeded",
		logger.String("url", url),
		logger.Int("tags", len(res.Tags)),
		logger.Duration("elapsed", time.Since(start)))
	return res
}

func (s *Service) fromModel(ctx context.Context, title, url string) (Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.completer.Complete(ctx, BuildPrompt(title, url))
	if err != nil {
		return Result{}, fmt.Errorf("complete: %w", err)
	}

	res, err := ParseResult(text)
	if err != nil {
		return Result{}, err
	}
	if len(res.Tags) == 0 {
		// A summary without tags is still useful; borrow the keyword tags.
		res.Tags = s.tagger.Tags(title, url)
	}
	return res, nil
}

// clampTags keeps the domain cap in one place.
func clampTags(tags []string) []string {
	return domain.NormalizeTags(tags, domain.MaxTags)
}
