// Package embeddingtest provides a deterministic embedding provider for
// tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// Keyword embeds text as a bag of vocabulary words: dimension i counts
// occurrences of Vocabulary[i]. Text without any vocabulary word is hashed to
// one of the remaining dimensions so that the vector is never zero. Texts
// sharing no vocabulary word therefore have similarity 0 in practice.
type Keyword struct {
	Vocabulary []string

	// Err, when set, is returned by every call.
	Err error
	// Override returns a fixed vector for the given text when present.
	Override map[string][]float32

	mu    sync.Mutex
	calls map[string]int
}

func NewKeyword(vocabulary ...string) *Keyword {
	return &Keyword{Vocabulary: vocabulary}
}

func (k *Keyword) Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error) {
	k.mu.Lock()
	if k.calls == nil {
		k.calls = make(map[string]int)
	}
	k.calls[text]++
	k.mu.Unlock()

	if k.Err != nil {
		return nil, k.Err
	}
	if v, ok := k.Override[text]; ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, dimensionality)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	matched := false
	for _, w := range words {
		for i, v := range k.Vocabulary {
			if i < dimensionality && w == strings.ToLower(v) {
				vec[i]++
				matched = true
			}
		}
	}

	if !matched && dimensionality > len(k.Vocabulary) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		free := dimensionality - len(k.Vocabulary)
		vec[len(k.Vocabulary)+int(h.Sum32()%uint32(free))] = 1
	}
	return vec, nil
}

// Calls returns how many times text was embedded.
func (k *Keyword) Calls(text string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls[text]
}

// TotalCalls returns the number of provider calls.
func (k *Keyword) TotalCalls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	var n int
	for _, c := range k.calls {
		n += c
	}
	return n
}
