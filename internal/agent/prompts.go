package agent

import (
	"fmt"
	"strings"
)

func classifyPrompt(query string) string {
	return fmt.Sprintf(`Analyze this query: "%s"

Does this query require searching documents, or can it be answered with general knowledge?

Respond with only: SEARCH or GENERAL`, query)
}

// answerContext tags each chunk with its 1-based source number and score.
func answerContext(chunks []RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Source %d] (Score: %.3f):\n%s", i+1, c.Score, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

func answerPrompt(query string, chunks []RetrievedChunk) string {
	return fmt.Sprintf(`You are a financial document analyst. Answer the question using ONLY the provided sources.

Context:
%s

Question: %s

Instructions:
- Answer based ONLY on the context
- Cite source numbers [Source X]
- If information is not in context, say "I cannot find this information"
- Be specific with numbers and facts

Answer:`, answerContext(chunks), query)
}

func verifyPrompt(answer string, chunks []RetrievedChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return fmt.Sprintf(`Compare the answer to the source documents. Check if the answer contains information NOT present in the sources.

Sources:
%s

Answer:
%s

Does the answer contain hallucinated information (facts not in sources)?
Respond with: YES or NO, followed by brief explanation.`, strings.Join(texts, "\n"), answer)
}

// FallbackAnswer is the response returned when the agent cannot answer reliably.
func FallbackAnswer(query string, retrievalScore, confidence float64) string {
	return fmt.Sprintf(`I couldn't find reliable information to answer: "%s"

This could be because:
- The information isn't in the indexed documents
- The query needs rephrasing
- More context is needed

Retrieval score: %.3f
Confidence: %.3f

Suggestions:
- Try rephrasing your question
- Check if this information is in the document
- Provide more specific details`, query, retrievalScore, confidence)
}

// firstN returns at most n leading chunks; n <= 0 means all.
func firstN(chunks []RetrievedChunk, n int) []RetrievedChunk {
	if n > 0 && len(chunks) > n {
		return chunks[:n]
	}
	return chunks
}
