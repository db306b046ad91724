// Package tokenizer implements the naive longest-prefix-match tokenizer
// described as a supporting, non-core collaborator: good enough to drive
// the streaming pipeline deterministically, not a production BPE.
package tokenizer

import "strings"

// spaceMarker is the three-byte sentencepiece-style whitespace marker
// (U+2581, LOWER ONE EIGHTH BLOCK) whitespace is normalized to before
// matching.
const spaceMarker = "▁"

// Tokenizer holds a fixed vocabulary and does greedy longest-match
// encoding over it.
type Tokenizer struct {
	vocab  []string
	ids    map[string]uint32
	maxLen int

	bos    uint32
	hasBOS bool
}

// New builds a tokenizer over vocab. If hasBOS is true, bos is prepended
// to every Encode call's output.
func New(vocab []string, bos uint32, hasBOS bool) *Tokenizer {
	ids := make(map[string]uint32, len(vocab))
	maxLen := 0
	for i, s := range vocab {
		ids[s] = uint32(i)
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	return &Tokenizer{vocab: vocab, ids: ids, maxLen: maxLen, bos: bos, hasBOS: hasBOS}
}

// Encode normalizes whitespace (space, tab, newline, carriage return) to
// spaceMarker and greedily matches the longest vocabulary entry at each
// byte position. A byte that matches no vocabulary entry, even at length
// 1, emits token id 0.
func (t *Tokenizer) Encode(text string) []uint32 {
	var norm strings.Builder
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			norm.WriteString(spaceMarker)
		default:
			norm.WriteByte(text[i])
		}
	}
	b := []byte(norm.String())

	var out []uint32
	if t.hasBOS {
		out = append(out, t.bos)
	}

	for i := 0; i < len(b); {
		top := t.maxLen
		if i+top > len(b) {
			top = len(b) - i
		}

		matched := false
		for l := top; l >= 1; l-- {
			if id, ok := t.ids[string(b[i:i+l])]; ok {
				out = append(out, id)
				i += l
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, 0)
			i++
		}
	}
	return out
}

// Decode concatenates each id's vocabulary string and restores literal
// spaces from the whitespace marker. Ids outside the vocabulary are
// silently dropped.
func (t *Tokenizer) Decode(ids []uint32) string {
	var sb strings.Builder
	for _, id := range ids {
		if int(id) < len(t.vocab) {
			sb.WriteString(t.vocab[id])
		}
	}
	return strings.ReplaceAll(sb.String(), spaceMarker, " ")
}
