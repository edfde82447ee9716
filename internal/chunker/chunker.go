// Package chunker splits raw document text into bounded, overlapping chunks.
package chunker

import (
	"fmt"
	"strings"

	"github.com/gdemerges/bot-ai/internal/config"
	"github.com/gdemerges/bot-ai/internal/models"
)

// Strategy selects the chunk-boundary policy.
type Strategy string

const (
	StrategyRecursive Strategy = "recursive"
	StrategySentence  Strategy = "sentence"
	StrategyParagraph Strategy = "paragraph"
	StrategyFixed     Strategy = "fixed"
)

// separators for recursive chunking, from coarsest to finest. The empty
// string terminates the ladder with raw character slicing.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " ", ""}

// Chunker splits text into chunks of at most chunkSize characters, carrying
// chunkOverlap characters between consecutive chunks where the strategy
// supports overlap.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	strategy     Strategy
}

// New creates a chunker. chunkOverlap must be smaller than chunkSize;
// otherwise the sliding window would not advance.
func New(chunkSize, chunkOverlap int, strategy Strategy) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", config.ErrConfiguration)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be in [0, chunk size %d)",
			config.ErrConfiguration, chunkOverlap, chunkSize)
	}
	switch strategy {
	case StrategyRecursive, StrategySentence, StrategyParagraph, StrategyFixed:
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", config.ErrConfiguration, strategy)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap, strategy: strategy}, nil
}

// Chunk splits text into chunks according to the configured strategy.
// Empty or whitespace-only text yields no chunks. The metadata map is copied
// into every chunk so later mutation of one chunk's metadata cannot leak.
func (c *Chunker) Chunk(text string, metadata map[string]interface{}) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	switch c.strategy {
	case StrategySentence:
		return c.sentenceChunk(text, metadata)
	case StrategyParagraph:
		return c.paragraphChunk(text, metadata)
	case StrategyFixed:
		return c.fixedChunk(text, metadata)
	default:
		return c.recursiveChunk(text, metadata, separators)
	}
}

// recursiveChunk tries separators in priority order, greedily packing split
// units into chunks. A unit that alone exceeds the chunk size is re-split
// with the next finer separator; when no separator is left, it is sliced by
// raw characters. The last chunkOverlap characters of a closed chunk are
// carried into the next one.
func (c *Chunker) recursiveChunk(text string, metadata map[string]interface{}, seps []string) []models.Chunk {
	separator := ""
	for _, sep := range seps {
		if sep != "" && strings.Contains(text, sep) {
			separator = sep
			break
		}
	}

	var splits []string
	if separator != "" {
		splits = strings.Split(text, separator)
	} else {
		splits = []string{text}
	}

	var chunks []models.Chunk
	currentChunk := ""
	currentStart := 0

	for _, split := range splits {
		potential := currentChunk
		if potential != "" {
			potential += separator
		}
		potential += split

		if len(potential) <= c.chunkSize {
			currentChunk = potential
			continue
		}

		if currentChunk != "" {
			chunks = append(chunks, newChunk(currentChunk, metadata, len(chunks), currentStart))
			overlapStart := len(currentChunk) - c.chunkOverlap
			if overlapStart < 0 {
				overlapStart = 0
			}
			overlap := currentChunk[overlapStart:]
			currentStart += len(currentChunk) - len(overlap)
			currentChunk = overlap + separator + split
			continue
		}

		// The unit itself is too large: recurse into finer separators, or
		// fall through to raw character slicing at the end of the ladder.
		if len(seps) > 1 {
			for _, sub := range c.recursiveChunk(split, metadata, seps[1:]) {
				sub.ChunkIndex = len(chunks)
				chunks = append(chunks, sub)
			}
		} else {
			chunks = append(chunks, c.sliceChars(split, metadata, len(chunks))...)
		}
		currentChunk = ""
	}

	if strings.TrimSpace(currentChunk) != "" {
		chunks = append(chunks, newChunk(currentChunk, metadata, len(chunks), currentStart))
	}
	return chunks
}

// sentenceChunk splits on sentence-ending punctuation followed by whitespace
// and greedily packs sentences, with no overlap between chunks.
func (c *Chunker) sentenceChunk(text string, metadata map[string]interface{}) []models.Chunk {
	sentences := SplitSentences(text)

	var chunks []models.Chunk
	currentChunk := ""
	currentStart := 0

	for _, sentence := range sentences {
		if currentChunk != "" && len(currentChunk)+1+len(sentence) > c.chunkSize {
			chunks = append(chunks, newChunk(currentChunk, metadata, len(chunks), currentStart))
			currentStart += len(currentChunk)
			currentChunk = sentence
			continue
		}
		if currentChunk != "" {
			currentChunk += " "
		}
		currentChunk += sentence
	}

	if strings.TrimSpace(currentChunk) != "" {
		chunks = append(chunks, newChunk(currentChunk, metadata, len(chunks), currentStart))
	}
	return chunks
}

// paragraphChunk splits on blank lines; paragraphs exceeding the chunk size
// are handed to the sentence strategy.
func (c *Chunker) paragraphChunk(text string, metadata map[string]interface{}) []models.Chunk {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []models.Chunk
	currentStart := 0

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.chunkSize {
			chunks = append(chunks, newChunk(para, metadata, len(chunks), currentStart))
		} else {
			for _, sub := range c.sentenceChunk(para, metadata) {
				sub.StartChar += currentStart
				sub.EndChar += currentStart
				sub.ChunkIndex = len(chunks)
				chunks = append(chunks, sub)
			}
		}
		currentStart += len(para) + 2 // +2 for the blank line
	}
	return chunks
}

// fixedChunk is a pure sliding window over raw characters.
func (c *Chunker) fixedChunk(text string, metadata map[string]interface{}) []models.Chunk {
	return c.sliceChars(text, metadata, 0)
}

// sliceChars windows text by chunkSize with stride chunkSize-chunkOverlap.
func (c *Chunker) sliceChars(text string, metadata map[string]interface{}, indexBase int) []models.Chunk {
	var chunks []models.Chunk
	stride := c.chunkSize - c.chunkOverlap
	for i := 0; i < len(text); i += stride {
		end := i + c.chunkSize
		if end > len(text) {
			end = len(text)
		}
		piece := text[i:end]
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, newChunk(piece, metadata, indexBase+len(chunks), i))
		if end >= len(text) {
			break
		}
	}
	return chunks
}

func newChunk(content string, metadata map[string]interface{}, index, start int) models.Chunk {
	return models.Chunk{
		Content:    strings.TrimSpace(content),
		Metadata:   copyMetadata(metadata),
		ChunkIndex: index,
		StartChar:  start,
		EndChar:    start + len(content),
	}
}

func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
// The trailing punctuation stays on the sentence; surrounding whitespace is
// dropped.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && isSpace(runes[i+1]) {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
