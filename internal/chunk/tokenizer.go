package chunk

import (
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens in a text. The chunker only needs counts, never
// token boundaries, so implementations are free to approximate.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter approximates token counts without a BPE vocabulary:
// one token per CJK rune, one per four other characters. Deterministic and
// dependency-free, used as the default and in tests.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(text string) int {
	cjk := 0
	other := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		} else if !unicode.IsSpace(r) {
			other++
		}
	}
	n := cjk + (other+3)/4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// TiktokenCounter counts tokens with a real BPE encoding. Slower and requires
// the encoding data, but matches what embedding providers bill and truncate on.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding name
// (e.g., "cl100k_base").
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements TokenCounter.
func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
