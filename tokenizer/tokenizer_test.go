package tokenizer

import (
	"testing"
)

func nonWhitespace(t *testing.T, line string) []Token {
	t.Helper()
	tokens, err := TokenizeLine(line)
	if err != nil {
		t.Fatalf("TokenizeLine(%q): %v", line, err)
	}
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind != KindWhitespace {
			out = append(out, tok)
		}
	}
	return out
}

func TestTokenizeLine_Classification(t *testing.T) {
	tokens := nonWhitespace(t, "let x = 1")

	want := []struct {
		value string
		kind  Kind
	}{
		{"let", KindKeyword},
		{"x", KindIdentifier},
		{"=", KindOperator},
		{"1", KindNumber},
	}

	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(want))
	}
	for i, w := range want {
		if tokens[i].Value != w.value || tokens[i].Kind != w.kind {
			t.Errorf("token %d = (%q, %s), want (%q, %s)", i, tokens[i].Value, tokens[i].Kind, w.value, w.kind)
		}
	}
}

func TestTokenizeLine_Positions(t *testing.T) {
	tokens, err := TokenizeLine("let x = 1")
	if err != nil {
		t.Fatal(err)
	}

	offset := 0
	for _, tok := range tokens {
		if tok.Start != offset {
			t.Errorf("token %q starts at %d, want %d", tok.Value, tok.Start, offset)
		}
		if tok.End <= tok.Start {
			t.Errorf("token %q has empty span [%d,%d)", tok.Value, tok.Start, tok.End)
		}
		offset = tok.End
	}
	if offset != len("let x = 1") {
		t.Errorf("tokens cover %d runes, want %d", offset, len("let x = 1"))
	}
}

func TestTokenizeLine_Comment(t *testing.T) {
	tokens := nonWhitespace(t, "// List.map here")
	if len(tokens) != 1 {
		t.Fatalf("got %d tokens %v, want 1", len(tokens), tokens)
	}
	if tokens[0].Kind != KindComment {
		t.Errorf("kind = %s, want comment", tokens[0].Kind)
	}
	if tokens[0].Value != "// List.map here" {
		t.Errorf("value = %q", tokens[0].Value)
	}
}

func TestTokenizeLine_String(t *testing.T) {
	tokens := nonWhitespace(t, `"hello world"`)
	if len(tokens) != 1 {
		t.Fatalf("got %d tokens %v, want 1", len(tokens), tokens)
	}
	if tokens[0].Kind != KindString {
		t.Errorf("kind = %s, want string", tokens[0].Kind)
	}
	if tokens[0].Start != 0 || tokens[0].End != 13 {
		t.Errorf("span = [%d,%d), want [0,13)", tokens[0].Start, tokens[0].End)
	}
}

func TestTokenizeLine_Empty(t *testing.T) {
	tokens, err := TokenizeLine("")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 0 {
		t.Fatalf("got %d tokens %v, want none", len(tokens), tokens)
	}
}

func TestAt(t *testing.T) {
	tokens, err := TokenizeLine("let x")
	if err != nil {
		t.Fatal(err)
	}

	tok, ok := At(tokens, 1)
	if !ok || tok.Value != "let" {
		t.Errorf("At(1) = (%q, %v), want let", tok.Value, ok)
	}

	tok, ok = At(tokens, 4)
	if !ok || tok.Value != "x" {
		t.Errorf("At(4) = (%q, %v), want x", tok.Value, ok)
	}

	if _, ok := At(tokens, 99); ok {
		t.Error("At(99) should miss")
	}
}

func TestIslandAt_DottedChain(t *testing.T) {
	for _, pos := range []int{0, 1, 4, 6} {
		island, err := IslandAt("List.map xs", pos)
		if err != nil {
			t.Fatal(err)
		}
		if island == nil {
			t.Fatalf("IslandAt(%d) = nil", pos)
		}
		if len(island.Names) != 2 || island.Names[0] != "List" || island.Names[1] != "map" {
			t.Errorf("IslandAt(%d).Names = %v", pos, island.Names)
		}
		if island.Start != 0 || island.End != 8 {
			t.Errorf("IslandAt(%d) span = [%d,%d), want [0,8)", pos, island.Start, island.End)
		}
	}

	island, err := IslandAt("List.map xs", 9)
	if err != nil {
		t.Fatal(err)
	}
	if island == nil || len(island.Names) != 1 || island.Names[0] != "xs" {
		t.Errorf("IslandAt(9) = %+v, want [xs]", island)
	}
}

func TestIslandAt_LongChain(t *testing.T) {
	island, err := IslandAt("System.Math.PI", 8)
	if err != nil {
		t.Fatal(err)
	}
	if island == nil {
		t.Fatal("IslandAt(8) = nil")
	}
	want := []string{"System", "Math", "PI"}
	if len(island.Names) != len(want) {
		t.Fatalf("Names = %v, want %v", island.Names, want)
	}
	for i := range want {
		if island.Names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", island.Names, want)
		}
	}
	if island.Start != 0 || island.End != 14 {
		t.Errorf("span = [%d,%d), want [0,14)", island.Start, island.End)
	}
}

func TestIslandAt_LowercaseReceiver(t *testing.T) {
	island, err := IslandAt("xs.Length", 0)
	if err != nil {
		t.Fatal(err)
	}
	if island == nil || len(island.Names) != 2 || island.Names[0] != "xs" || island.Names[1] != "Length" {
		t.Errorf("island = %+v, want [xs Length]", island)
	}
}

func TestIslandAt_Operator(t *testing.T) {
	island, err := IslandAt("a |> b", 2)
	if err != nil {
		t.Fatal(err)
	}
	if island == nil || len(island.Names) != 1 || island.Names[0] != "|>" {
		t.Fatalf("island = %+v, want [|>]", island)
	}
	if island.Start != 2 || island.End != 4 {
		t.Errorf("span = [%d,%d), want [2,4)", island.Start, island.End)
	}
}

func TestIslandAt_NoIsland(t *testing.T) {
	cases := []struct {
		name string
		line string
		pos  int
	}{
		{"comment", "// List.map", 5},
		{"string literal", `let s = "List.map"`, 12},
		{"whitespace", "let x", 3},
		{"keyword", "let x", 1},
		{"past end of line", "let x", 40},
		{"float literal dot", "3.14", 1},
		{"empty line", "", 0},
	}

	for _, tc := range cases {
		island, err := IslandAt(tc.line, tc.pos)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if island != nil {
			t.Errorf("%s: IslandAt(%q, %d) = %+v, want nil", tc.name, tc.line, tc.pos, island)
		}
	}
}
