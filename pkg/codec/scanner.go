// Package codec implements the compact, positional, brace-delimited
// textual wire format: a database serializes to
// '{' hex(clock) (';' name '{' rows '}')* '}', each row a key followed by
// '{' '{' values '}' hex(clock) ';' peer (';' '1')? '}'. Parsing happens in
// two passes: a streaming brace/semicolon scan that builds a generic
// nested structure (rawDB/rawTable/rawRow below), then a structural
// interpreter that decodes field values against each table's schema. The
// two-pass shape is what lets a structural error (unclosed brace, a
// malformed clock, an unknown table) fail the whole call before any row
// has been merged, while a row-level problem (bad peer, a value that
// doesn't match the schema) only produces a warning for that row.
package codec

import "fmt"

// scanner walks a codec string one byte at a time. The format has no
// escaping, so every reader here just looks for the next occurrence of a
// structural byte ('{', '}', ';').
type scanner struct {
	s   string
	pos int
}

func newScanner(s string) *scanner {
	return &scanner{s: s}
}

func (sc *scanner) eof() bool {
	return sc.pos >= len(sc.s)
}

func (sc *scanner) peek() (byte, bool) {
	if sc.eof() {
		return 0, false
	}
	return sc.s[sc.pos], true
}

func (sc *scanner) expect(b byte) error {
	c, ok := sc.peek()
	if !ok {
		return fmt.Errorf("codec: unexpected end of input, expected %q", b)
	}
	if c != b {
		return fmt.Errorf("codec: expected %q at position %d, got %q", b, sc.pos, c)
	}
	sc.pos++
	return nil
}

// readUntil consumes and returns every byte up to (not including) the next
// occurrence of any byte in stops, or to the end of input if none is
// found.
func (sc *scanner) readUntil(stops ...byte) string {
	start := sc.pos
	for !sc.eof() {
		c := sc.s[sc.pos]
		for _, stop := range stops {
			if c == stop {
				return sc.s[start:sc.pos]
			}
		}
		sc.pos++
	}
	return sc.s[start:sc.pos]
}
