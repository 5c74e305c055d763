package protocol

import "fmt"

// LinePosition is a zero-based line/character location inside a code
// submission. Character counts runes, not bytes.
type LinePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// String renders the position as "(line,character)".
func (p LinePosition) String() string {
	return fmt.Sprintf("(%d,%d)", p.Line, p.Character)
}

// LinePositionSpan is a half-open [Start, End) range of positions.
type LinePositionSpan struct {
	Start LinePosition `json:"start"`
	End   LinePosition `json:"end"`
}

// String renders the span as "(l,c)-(l,c)".
func (s LinePositionSpan) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// NewLinePositionSpan constructs a span from two positions.
func NewLinePositionSpan(start, end LinePosition) LinePositionSpan {
	return LinePositionSpan{Start: start, End: end}
}
