// Package tokencount provides token estimation for usage recording when the
// daemon response carries no usage block (streaming replies, some providers).
// Uses a character-based heuristic (~4 chars per token for English) which is
// sufficient for quota accounting. Can be replaced with tiktoken for exact
// counts if needed.
package tokencount

import (
	"github.com/tidwall/gjson"
)

// perMessageOverhead covers role and formatting tokens per chat message.
const perMessageOverhead = 4

// replyPrimer is the fixed cost of priming the assistant reply.
const replyPrimer = 3

// EstimateRequest estimates prompt tokens for an OpenAI-style request body.
// Handles chat messages, plain-prompt completions, and embeddings input.
func EstimateRequest(body []byte) int64 {
	if msgs := gjson.GetBytes(body, "messages"); msgs.IsArray() {
		total := int64(replyPrimer)
		msgs.ForEach(func(_, m gjson.Result) bool {
			total += perMessageOverhead
			total += estimateTokens(m.Get("role").String())
			total += estimateValue(m.Get("content"))
			if name := m.Get("name"); name.Exists() {
				total += estimateTokens(name.String()) + 1
			}
			return true
		})
		return max(total, 1)
	}
	if prompt := gjson.GetBytes(body, "prompt"); prompt.Exists() {
		return max(estimateValue(prompt), 1)
	}
	if input := gjson.GetBytes(body, "input"); input.Exists() {
		return max(estimateValue(input), 1)
	}
	return 0
}

// EstimateResponse estimates completion tokens from a non-streaming
// completion response body.
func EstimateResponse(body []byte) int64 {
	var total int64
	gjson.GetBytes(body, "choices").ForEach(func(_, c gjson.Result) bool {
		if content := c.Get("message.content"); content.Exists() {
			total += estimateValue(content)
		} else if text := c.Get("text"); text.Exists() {
			total += estimateTokens(text.String())
		}
		return true
	})
	return total
}

// estimateValue handles both plain strings and structured content arrays
// (multi-part messages, batched embedding inputs).
func estimateValue(v gjson.Result) int64 {
	if v.IsArray() {
		var total int64
		v.ForEach(func(_, part gjson.Result) bool {
			if text := part.Get("text"); text.Exists() {
				total += estimateTokens(text.String())
			} else {
				total += estimateTokens(part.String())
			}
			return true
		})
		return total
	}
	return estimateTokens(v.String())
}

// estimateTokens uses ~4 characters per token heuristic.
// This is a reasonable approximation for English text with GPT-family tokenizers.
func estimateTokens(s string) int64 {
	if len(s) == 0 {
		return 0
	}
	// ~4 bytes per token for English; ceil division.
	return int64(len(s)+3) / 4
}
