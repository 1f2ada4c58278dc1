package answer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starcoach/starcoach/internal/cache"
	"github.com/starcoach/starcoach/internal/providers/llm"
	"github.com/starcoach/starcoach/internal/star"
	"github.com/starcoach/starcoach/internal/utils"
)

const cacheTTL = 24 * time.Hour

// Service generates STAR answers through the configured LLM provider, with
// an optional read-through cache and a bounded per-call timeout.
type Service struct {
	provider llm.Provider
	cache    cache.Cache
	timeout  time.Duration
	log      *logrus.Entry
}

func NewService(provider llm.Provider, c cache.Cache, timeout time.Duration, log *logrus.Entry) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{provider: provider, cache: c, timeout: timeout, log: log}
}

func (s *Service) Provider() string { return s.provider.Name() }

// GenerateSTAR produces a structured answer for an explicit get_answer
// request. Returns the answer and the generation time in milliseconds.
func (s *Service) GenerateSTAR(ctx context.Context, question, transcript, format string) (*star.Answer, int64, error) {
	const op = "Answer.GenerateSTAR"

	if question == "" || transcript == "" {
		return nil, 0, utils.E(utils.CodeInvalidArgument, op, "question and transcript required", nil)
	}
	if format != star.FormatFull {
		format = star.FormatBullets
	}

	key := cache.AnswerKey(s.provider.Name(), format, question, transcript)
	var cached star.Answer
	if s.cache != nil {
		if hit, _ := s.cache.GetJSON(ctx, key, &cached); hit && cached.Valid() {
			return &cached, 0, nil
		}
	}

	system, prompt := star.BuildPrompt(question, transcript, format)
	ans, ms, err := s.complete(ctx, op, system, prompt)
	if err != nil {
		return nil, ms, err
	}

	if s.cache != nil {
		if cerr := s.cache.SetJSON(ctx, key, ans, cacheTTL); cerr != nil {
			s.log.WithError(cerr).Warn("answer cache write failed")
		}
	}
	return ans, ms, nil
}

// Quick produces the low-latency live-mode answer as display-ready text.
func (s *Service) Quick(ctx context.Context, question, transcript string) (string, int64, error) {
	const op = "Answer.Quick"

	system, prompt := star.BuildQuickPrompt(question, transcript)
	ans, ms, err := s.complete(ctx, op, system, prompt)
	if err != nil {
		return "", ms, err
	}
	return ans.Format(star.FormatBullets), ms, nil
}

func (s *Service) complete(ctx context.Context, op, system, prompt string) (*star.Answer, int64, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Complete(cctx, system, prompt)
	ms := time.Since(start).Milliseconds()
	if err != nil {
		code := utils.CodeUnavailable
		if cctx.Err() == context.DeadlineExceeded {
			code = utils.CodeTimeout
		}
		return nil, ms, utils.E(code, op, "answer generation failed", err)
	}

	ans := star.Parse(raw)
	if !ans.Valid() {
		return nil, ms, utils.E(utils.CodeUnavailable, op, "provider returned an empty answer", nil)
	}
	return ans, ms, nil
}
