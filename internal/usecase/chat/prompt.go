package chat

import (
	"fmt"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/usecase/retrieval"
)

const ragTemplate = `Here is some optional CONTEXT you could use when answering. ONLY If the context is relevant to the question, prioritize those details and cite the source filenames in parentheses. If the context is not relevant, you should answer from your general knowledge.

=== CONTEXT ===
%s
=== END CONTEXT ===

Question: %s`

// augmentQuestion wraps the question with the formatted hits.
func augmentQuestion(question string, hits []domain.Hit) string {
	return fmt.Sprintf(ragTemplate, retrieval.FormatContext(hits), question)
}
