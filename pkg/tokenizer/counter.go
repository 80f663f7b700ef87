package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates the token cost of a text block for prompt budget
// enforcement.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts with the gpt-4 BPE vocabulary (cl100k_base).
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the gpt-4 encoding, falling back to
// cl100k_base directly when the model lookup fails.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel("gpt-4")
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// HeuristicCounter approximates tokens as ceil(len/4), the usual BPE
// rule of thumb. Used when the tiktoken vocabulary cannot be loaded
// (offline startup) and in tests that need deterministic counts.
type HeuristicCounter struct{}

func NewHeuristicCounter() *HeuristicCounter {
	return &HeuristicCounter{}
}

func (c *HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// NewCounter returns the tiktoken counter when its vocabulary is
// available, the heuristic one otherwise. Counting never fails at
// request time either way.
func NewCounter() Counter {
	if c, err := NewTiktokenCounter(); err == nil {
		return c
	}
	return NewHeuristicCounter()
}
