// Package assist runs whole-transcript analyses: meeting summaries, Q&A
// extraction, and interview preparation notes. These are offline helpers used
// by the CLI; the live pipeline never calls them.
package assist

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starcoach/starcoach/internal/providers/llm"
	"github.com/starcoach/starcoach/internal/utils"
)

const (
	summarySystem = "You are an expert at summarizing meetings and extracting key information."

	summaryPrompt = `Please provide a comprehensive summary of this meeting transcript.
Include:
1. Main topics discussed
2. Key decisions made
3. Action items (if any)
4. Important points or takeaways

Meeting Transcript:
`

	qaSystem = `You are an expert communicator who excels at formulating
clear, professional answers to questions. Provide thoughtful, complete responses.`

	qaPrompt = `Analyze this meeting/interview transcript and:

1. Identify all questions that were asked
2. For each question, provide a well-structured, professional answer
3. If answers were already given in the transcript, improve them
4. If questions weren't fully answered, provide complete answers

Format the output as:
Q1: [Question]
A1: [Detailed Answer]

Q2: [Question]
A2: [Detailed Answer]

Transcript:
`

	prepSystem = `You are an expert career coach and interview preparation specialist.
Provide actionable, specific advice.`

	prepPrompt = `Based on this interview/meeting transcript, please generate:

1. Key questions that were asked
2. Recommended answers or talking points for each question
3. Areas that might need more preparation
4. Overall assessment and tips

Interview/Meeting Transcript:
`
)

type Assistant struct {
	provider llm.Provider
	timeout  time.Duration
	log      *logrus.Entry
}

func New(provider llm.Provider, timeout time.Duration, log *logrus.Entry) *Assistant {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Assistant{provider: provider, timeout: timeout, log: log}
}

func (a *Assistant) Summary(ctx context.Context, transcript string) (string, error) {
	return a.run(ctx, "Assist.Summary", summarySystem, summaryPrompt, transcript)
}

func (a *Assistant) ExtractQA(ctx context.Context, transcript string) (string, error) {
	return a.run(ctx, "Assist.ExtractQA", qaSystem, qaPrompt, transcript)
}

func (a *Assistant) InterviewPrep(ctx context.Context, transcript string) (string, error) {
	return a.run(ctx, "Assist.InterviewPrep", prepSystem, prepPrompt, transcript)
}

func (a *Assistant) run(ctx context.Context, op, system, prompt, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "transcript required", nil)
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	out, err := a.provider.Complete(cctx, system, prompt+transcript)
	if err != nil {
		code := utils.CodeUnavailable
		if cctx.Err() == context.DeadlineExceeded {
			code = utils.CodeTimeout
		}
		return "", utils.E(code, op, "analysis failed", err)
	}
	a.log.WithFields(logrus.Fields{"op": op, "time_ms": time.Since(start).Milliseconds()}).Debug("analysis complete")
	return strings.TrimSpace(out), nil
}
