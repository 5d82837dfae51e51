package ollama

import (
	"fmt"
	"strings"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.RetrievedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] document=%s score=%.3f\n%s\n\n",
			idx+1,
			chunk.DocumentID,
			chunk.Score,
			chunk.Text,
		))
	}

	return fmt.Sprintf(`Answer user question only from context below.
If context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
