package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

// FallbackAnswer replaces any failed or empty generation.
const FallbackAnswer = "Sorry, I encountered an error processing your request."

// Policy decides how the model treats context that does not fully answer the
// question.
type Policy string

const (
	// PolicyStrict refuses unless the context contains the answer.
	PolicyStrict Policy = "strict"
	// PolicyPartial summarizes whatever part of the context is relevant and
	// refuses only when none of it is.
	PolicyPartial Policy = "partial"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyPartial:
		return PolicyPartial, nil
	default:
		return "", fmt.Errorf("%w: unknown refusal policy %q", model.ErrInvalidInput, s)
	}
}

const answerFormat = `FORMATTING RULES:
1. Answer: <concise, grounded response>
2. Sources:
   - File: <filename> | Page/Row: <reference>`

const strictPrompt = `You are DocMind, a helpful assistant.
Answer the user's question based ONLY on the provided context.

Context:
%s

Question: %s

` + answerFormat + `

If the answer is not in the context, explicitly refuse. Do not make up information.
`

const partialPrompt = `You are DocMind, a helpful assistant.
Answer the user's question using ONLY the provided context.

Context:
%s

Question: %s

` + answerFormat + `

If the context only partly answers the question, summarize the relevant parts and say what is missing.
Refuse only when the context is entirely unrelated to the question. Do not make up information.
`

const (
	strictRefusal  = "Answer: I could not find the answer to your question in your uploaded documents.\nSources:\n   - None"
	partialRefusal = "Answer: None of your uploaded documents contain information related to this question.\nSources:\n   - None"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer turns retrieved chunks and a question into a grounded answer.
type Synthesizer struct {
	gen    Generator
	policy Policy
	logger *slog.Logger
}

func NewSynthesizer(gen Generator, policy Policy, logger *slog.Logger) *Synthesizer {
	if policy == "" {
		policy = PolicyStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{gen: gen, policy: policy, logger: logger}
}

func (s *Synthesizer) Policy() Policy { return s.policy }

// Prompt builds the generation request for question over results.
func (s *Synthesizer) Prompt(question string, results []model.ScoredChunk) string {
	tmpl := strictPrompt
	if s.policy == PolicyPartial {
		tmpl = partialPrompt
	}
	return fmt.Sprintf(tmpl, FormatContext(results), question)
}

// Refusal is the answer given when nothing was retrieved.
func (s *Synthesizer) Refusal() string {
	if s.policy == PolicyPartial {
		return partialRefusal
	}
	return strictRefusal
}

// Answer never returns an error: an empty retrieval yields the policy's
// refusal and a generation failure yields FallbackAnswer. An answer without
// a Sources section is uncited and is replaced by the refusal.
func (s *Synthesizer) Answer(ctx context.Context, question string, results []model.ScoredChunk) string {
	if len(results) == 0 {
		return s.Refusal()
	}

	answer, err := s.gen.Generate(ctx, s.Prompt(question, results))
	if err != nil {
		s.logger.Error("answer generation failed",
			"error", fmt.Errorf("%w: %w", model.ErrGeneration, err),
			"chunks", len(results),
		)
		return FallbackAnswer
	}
	if strings.TrimSpace(answer) == "" {
		s.logger.Warn("answer generation returned empty text", "chunks", len(results))
		return FallbackAnswer
	}
	if !hasSources(answer) {
		s.logger.Warn("answer has no sources section", "chunks", len(results))
		return s.Refusal()
	}
	return answer
}

// hasSources reports whether some line of answer opens the Sources section.
func hasSources(answer string) bool {
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "*#0123456789. ")
		if len(line) >= len("sources:") && strings.EqualFold(line[:len("sources:")], "sources:") {
			return true
		}
	}
	return false
}
