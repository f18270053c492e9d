package ai

import (
	"fmt"

	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/models"
)

const factCheckPrompt = `Fact-check the following passage. Verify any historical facts, figures, or claims it makes, and supply relevant background.

Selected text:
%s

Surrounding context:
%s

Please provide:
1. An accuracy assessment of the main factual claims
2. Relevant historical background or supplementary information
3. Any errors or disputed points, with an explanation`

const discussionPrompt = `Analyze and discuss the following passage in depth.

Selected text:
%s

Surrounding context:
%s

Please provide:
1. The core argument or viewpoint of the passage
2. Alternative ways to read it
3. Questions worth further thought
4. Connections to related ideas or theories`

// buildPrompt renders the prompt template for an analysis type.
func buildPrompt(typ models.AnalysisType, text, contextText string) (string, error) {
	switch typ {
	case models.AnalyzeFactCheck:
		return fmt.Sprintf(factCheckPrompt, text, contextText), nil
	case models.AnalyzeDiscussion:
		return fmt.Sprintf(discussionPrompt, text, contextText), nil
	}
	return "", fmt.Errorf("%w: unknown analysis type %q", apperr.ErrInvalid, typ)
}
