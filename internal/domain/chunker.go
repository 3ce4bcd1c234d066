package domain

import "strings"

// Default chunking policy, measured in whitespace-delimited tokens.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// SplitTokens cuts text into overlapping windows of whitespace-delimited tokens.
//
// Text with at most size tokens yields a single chunk. Longer text yields windows
// of size tokens advanced by max(1, size-overlap), stopping once a window reaches
// the last token. Tokens inside a chunk are joined with single spaces, so original
// whitespace is not preserved.
func SplitTokens(text string, size, overlap int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	size = max(1, size)
	overlap = max(0, overlap)

	if len(tokens) <= size {
		return []string{strings.Join(tokens, " ")}
	}

	step := max(1, size-overlap)
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
