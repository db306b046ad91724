package tokenizer

import (
	"reflect"
	"testing"
)

func TestEncodeLongestMatch(t *testing.T) {
	vocab := []string{"<unk>", "▁the", "▁th", "e", "▁", "t", "h"}
	tk := New(vocab, 1, false)

	got := tk.Encode(" the")
	want := []uint32{1} // "▁the" matches the whole normalized input
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode(\" the\") = %v, want %v", got, want)
	}

	got = tk.Encode("the")
	want = []uint32{5, 6, 3} // no leading marker, so single-byte tokens
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode(\"the\") = %v, want %v", got, want)
	}
}

func TestEncodeUnresolvedByteFallsBackToZero(t *testing.T) {
	vocab := []string{"▁"}
	tk := New(vocab, 1, false)

	got := tk.Encode(" x")
	// "▁x": "▁" matches id 0, "x" resolves to nothing -> token 0.
	want := []uint32{0, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode(\" x\") = %v, want %v", got, want)
	}
}

func TestEncodePrependsBOS(t *testing.T) {
	vocab := []string{"▁a", "a"}
	tk := New(vocab, 7, true)

	got := tk.Encode("a")
	if len(got) == 0 || got[0] != 7 {
		t.Errorf("Encode with BOS = %v, want leading token 7", got)
	}
}

func TestDecodeRestoresSpaces(t *testing.T) {
	vocab := []string{"▁hello", "▁world"}
	tk := New(vocab, 0, false)

	got := tk.Decode([]uint32{0, 1})
	want := " hello world"
	if got != want {
		t.Errorf("Decode = %q, want %q", got, want)
	}
}
