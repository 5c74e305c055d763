// Package tokenizer answers "what is under this cursor position" for hover
// lookups. It wraps a real F# lexer (chroma) rather than guessing with
// string scans, so strings, comments, and operators are classified the way
// the language defines them.
//
// All offsets count runes, matching the host protocol's character positions.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Kind classifies a scanned token.
type Kind int

const (
	KindOther Kind = iota
	KindWhitespace
	KindIdentifier
	KindKeyword
	KindOperator
	KindPunctuation
	KindString
	KindNumber
	KindComment
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindWhitespace:
		return "whitespace"
	case KindIdentifier:
		return "identifier"
	case KindKeyword:
		return "keyword"
	case KindOperator:
		return "operator"
	case KindPunctuation:
		return "punctuation"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindComment:
		return "comment"
	default:
		return "other"
	}
}

// Token is one positioned token on a line. Start/End are rune offsets,
// half-open.
type Token struct {
	Value string
	Kind  Kind
	Start int
	End   int
}

// Island is the dotted identifier chain covering a position, e.g. the
// island of either half of "List.map" is ["List", "map"]. Operators form
// single-name islands.
type Island struct {
	Names []string
	Start int
	End   int
}

var (
	lexerOnce sync.Once
	fsLexer   chroma.Lexer
)

func fsharp() (chroma.Lexer, error) {
	lexerOnce.Do(func() {
		if l := lexers.Get("fsharp"); l != nil {
			fsLexer = chroma.Coalesce(l)
		}
	})
	if fsLexer == nil {
		return nil, fmt.Errorf("fsharp lexer not registered")
	}
	return fsLexer, nil
}

// TokenizeLine splits one line of F# source into positioned tokens. The
// input must be a single line; trailing line endings are ignored.
func TokenizeLine(line string) ([]Token, error) {
	lex, err := fsharp()
	if err != nil {
		return nil, err
	}

	source := strings.TrimRight(line, "\r\n")

	// A trailing newline keeps end-anchored rules (single-line comments)
	// matching; its token is trimmed back out below.
	it, err := lex.Tokenise(nil, source+"\n")
	if err != nil {
		return nil, fmt.Errorf("tokenize line: %w", err)
	}

	var tokens []Token
	offset := 0
	for tok := it(); tok != chroma.EOF; tok = it() {
		value := strings.TrimRight(tok.Value, "\n")
		if value == "" {
			continue
		}
		width := utf8.RuneCountInString(value)
		tokens = append(tokens, Token{
			Value: value,
			Kind:  classify(tok.Type, value),
			Start: offset,
			End:   offset + width,
		})
		offset += width
	}
	return tokens, nil
}

// At returns the token covering the 0-based rune offset pos.
func At(tokens []Token, pos int) (Token, bool) {
	for _, tok := range tokens {
		if tok.Start <= pos && pos < tok.End {
			return tok, true
		}
	}
	return Token{}, false
}

// IslandAt reports the dotted identifier island covering pos, or nil when
// the position is on whitespace, a comment, a string, a keyword, or past
// the end of the line.
func IslandAt(line string, pos int) (*Island, error) {
	tokens, err := TokenizeLine(line)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, tok := range tokens {
		if tok.Start <= pos && pos < tok.End {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	switch tokens[idx].Kind {
	case KindIdentifier:
		return mergeIsland(tokens, idx), nil
	case KindOperator, KindPunctuation:
		// A dot between identifiers belongs to their island. A dot that
		// joins nothing (the decimal point in 3.14) names nothing.
		if isDot(tokens[idx]) {
			if idx > 0 && tokens[idx-1].Kind == KindIdentifier {
				return mergeIsland(tokens, idx-1), nil
			}
			return nil, nil
		}
		if tokens[idx].Kind == KindOperator {
			hit := tokens[idx]
			return &Island{Names: []string{hit.Value}, Start: hit.Start, End: hit.End}, nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// mergeIsland expands the identifier at idx left and right across
// ident-dot-ident links.
func mergeIsland(tokens []Token, idx int) *Island {
	start, end := idx, idx
	for start >= 2 && isDot(tokens[start-1]) && tokens[start-2].Kind == KindIdentifier {
		start -= 2
	}
	for end+2 < len(tokens) && isDot(tokens[end+1]) && tokens[end+2].Kind == KindIdentifier {
		end += 2
	}

	names := make([]string, 0, (end-start)/2+1)
	for i := start; i <= end; i += 2 {
		names = append(names, tokens[i].Value)
	}
	return &Island{Names: names, Start: tokens[start].Start, End: tokens[end].End}
}

// isDot matches the member-access dot, which the lexer reports as
// punctuation inside dotted paths and as an operator elsewhere.
func isDot(tok Token) bool {
	return tok.Value == "." && (tok.Kind == KindPunctuation || tok.Kind == KindOperator)
}

func classify(t chroma.TokenType, value string) Kind {
	switch {
	case t.InCategory(chroma.Comment):
		return KindComment
	case t.InSubCategory(chroma.LiteralString):
		return KindString
	case t.InSubCategory(chroma.LiteralNumber):
		return KindNumber
	case t.InCategory(chroma.Keyword):
		return KindKeyword
	case t.InCategory(chroma.Operator):
		return KindOperator
	case t.InCategory(chroma.Punctuation):
		return KindPunctuation
	case t.InCategory(chroma.Name):
		return KindIdentifier
	default:
		if strings.TrimSpace(value) == "" {
			return KindWhitespace
		}
		return KindOther
	}
}
