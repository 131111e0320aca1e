package importer

import (
	"context"
	"fmt"
	"strings"

	"feedloft/app/llm"
)

// minSummarizeLength is the content size below which summarization is
// skipped; short items read faster than their summary would.
const minSummarizeLength = 1200

// HierarchicalSummarizer condenses long content in three strictly
// sequential passes. Each pass consumes the previous pass's output, so
// the stages cannot run concurrently.
type HierarchicalSummarizer struct {
	generator llm.Generator
}

func NewHierarchicalSummarizer(generator llm.Generator) *HierarchicalSummarizer {
	return &HierarchicalSummarizer{generator: generator}
}

// Run produces the final bullet summary, or "" when the content is too
// short to bother.
func (s *HierarchicalSummarizer) Run(ctx context.Context, content string) (string, error) {
	if len(content) < minSummarizeLength {
		return "", nil
	}

	full, err := s.generator.Generate(ctx, fmt.Sprintf(
		"Summarize the following article in a few paragraphs, keeping every substantive point:\n\n%s", content))
	if err != nil {
		return "", fmt.Errorf("full summary pass failed: %w", err)
	}

	distilled, err := s.generator.Generate(ctx, fmt.Sprintf(
		"Condense this summary to a single short paragraph:\n\n%s", full))
	if err != nil {
		return "", fmt.Errorf("distilled summary pass failed: %w", err)
	}

	bullets, err := s.generator.Generate(ctx, fmt.Sprintf(
		"Rewrite this paragraph as at most five plain bullet points:\n\n%s", distilled))
	if err != nil {
		return "", fmt.Errorf("bullet summary pass failed: %w", err)
	}

	return strings.TrimSpace(bullets), nil
}
