package service

import (
	"strings"
	"testing"

	"ai-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("report.pdf", 1024)
	b := Fingerprint("report.pdf", 1024)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestFingerprintVariesByNameAndSize(t *testing.T) {
	base := Fingerprint("report.pdf", 1024)
	assert.NotEqual(t, base, Fingerprint("report.pdf", 1025))
	assert.NotEqual(t, base, Fingerprint("other.pdf", 1024))
}

func TestSplitTextRespectsChunkSize(t *testing.T) {
	text := strings.Repeat("слово ", 200)
	chunks := splitText(text, 100, 20)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitTextOverlapsChunks(t *testing.T) {
	// 无边界符的连续文本，窗口应按 size-overlap 步进
	text := strings.Repeat("a", 250)
	chunks := splitText(text, 100, 20)

	require.GreaterOrEqual(t, len(chunks), 3)
	// 相邻分块共享结尾/开头的重叠段
	first := []rune(chunks[0])
	second := []rune(chunks[1])
	assert.Equal(t, string(first[len(first)-20:]), string(second[:20]))
}

func TestSplitTextPrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("x", 80)
	text := para + "\n\n" + strings.Repeat("y", 200)
	chunks := splitText(text, 100, 0)

	require.NotEmpty(t, chunks)
	assert.Equal(t, para, chunks[0])
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, splitText("", 100, 20))
}

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	chunks := splitText("short text", 100, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, tokenOverlap("tariff plan", "the tariff plan costs 10"))
	assert.Equal(t, 0.5, tokenOverlap("tariff roaming", "tariff details here"))
	assert.Equal(t, 0.0, tokenOverlap("tariff", "unrelated text"))
	assert.Equal(t, 0.0, tokenOverlap("", "anything"))
}

func TestRerankHybridReordersByCombinedScore(t *testing.T) {
	results := []model.SearchResult{
		{DocID: "a", Text: "completely unrelated content", Score: 0.80},
		{DocID: "b", Text: "tariff plan details for tariff plan", Score: 0.75},
	}

	reranked := rerankHybrid("tariff plan", results)
	// b: 0.7*0.75 + 0.3*1.0 = 0.825 > a: 0.7*0.80 = 0.56
	assert.Equal(t, "b", reranked[0].DocID)
	assert.Equal(t, "a", reranked[1].DocID)
}

func TestDedupeByDocIDKeepsFirstHit(t *testing.T) {
	results := []model.SearchResult{
		{DocID: "a", ChunkIndex: 0, Score: 0.9},
		{DocID: "a", ChunkIndex: 3, Score: 0.8},
		{DocID: "b", ChunkIndex: 1, Score: 0.7},
	}

	deduped := dedupeByDocID(results)
	require.Len(t, deduped, 2)
	assert.Equal(t, "a", deduped[0].DocID)
	assert.Equal(t, 0, deduped[0].ChunkIndex)
	assert.Equal(t, "b", deduped[1].DocID)
}

func TestFormatOwner(t *testing.T) {
	assert.Equal(t, "42", formatOwner(42))
	assert.Equal(t, "0", formatOwner(0))
}
