package codec

import "fmt"

// rawRow is one row as the structural scan found it, before any
// schema-driven decoding.
type rawRow struct {
	key       string
	values    string // raw text between the inner braces, possibly empty
	clockHex  string
	peer      string
	tombstone bool
}

// rawTable is one named table block.
type rawTable struct {
	name string
	rows []rawRow
}

// rawDB is the fully scanned document: a clock and zero or more tables.
// Building this structure is the only job of parse; nothing here has been
// validated against a store's declared tables or schemas yet.
type rawDB struct {
	clockHex string
	tables   []rawTable
}

// parse runs the structural scan described at the top of scanner.go. Every
// error returned here is fatal for the whole deserialize call: an unclosed
// brace, a missing separator, or a clock that isn't even present as text.
func parse(s string) (rawDB, error) {
	sc := newScanner(s)
	var db rawDB

	if err := sc.expect('{'); err != nil {
		return db, err
	}
	db.clockHex = sc.readUntil(';', '}')
	if _, err := decodeHex(db.clockHex); err != nil {
		return db, fmt.Errorf("codec: malformed database clock %q: %w", db.clockHex, err)
	}

	for {
		c, ok := sc.peek()
		if !ok {
			return db, fmt.Errorf("codec: unexpected end of input inside database")
		}
		if c == '}' {
			sc.pos++
			break
		}
		if err := sc.expect(';'); err != nil {
			return db, err
		}
		table, err := parseTable(sc)
		if err != nil {
			return db, err
		}
		db.tables = append(db.tables, table)
	}

	if !sc.eof() {
		return db, fmt.Errorf("codec: trailing input after closing brace")
	}
	return db, nil
}

func parseTable(sc *scanner) (rawTable, error) {
	var t rawTable
	t.name = sc.readUntil('{')
	if t.name == "" {
		return t, fmt.Errorf("codec: table with empty name")
	}
	if err := sc.expect('{'); err != nil {
		return t, err
	}

	for {
		row, err := parseRow(sc)
		if err != nil {
			return t, err
		}
		t.rows = append(t.rows, row)

		c, ok := sc.peek()
		if !ok {
			return t, fmt.Errorf("codec: unexpected end of input inside table %q", t.name)
		}
		if c == '}' {
			sc.pos++
			break
		}
		if err := sc.expect(';'); err != nil {
			return t, err
		}
	}
	return t, nil
}

func parseRow(sc *scanner) (rawRow, error) {
	var r rawRow
	r.key = sc.readUntil('{')
	if err := sc.expect('{'); err != nil {
		return r, err
	}
	if err := sc.expect('{'); err != nil {
		return r, err
	}
	r.values = sc.readUntil('}')
	if err := sc.expect('}'); err != nil {
		return r, err
	}

	r.clockHex = sc.readUntil(';')
	if r.clockHex == "" {
		return r, fmt.Errorf("codec: row %q missing clock", r.key)
	}
	if _, err := decodeHex(r.clockHex); err != nil {
		return r, fmt.Errorf("codec: row %q has malformed clock %q: %w", r.key, r.clockHex, err)
	}
	if err := sc.expect(';'); err != nil {
		return r, err
	}

	rest := sc.readUntil('}')
	if err := sc.expect('}'); err != nil {
		return r, err
	}
	r.peer, r.tombstone = splitPeerTail(rest)
	return r, nil
}

// splitPeerTail separates the optional ";1" tombstone marker from the peer
// text that precedes it.
func splitPeerTail(rest string) (peer string, tombstone bool) {
	for i := 0; i < len(rest); i++ {
		if rest[i] == ';' {
			if rest[i+1:] == "1" {
				return rest[:i], true
			}
			// Not a recognized tail; treat the whole thing as the peer
			// literal, semicolons and all, and let apply-time validation
			// reject it if the store doesn't accept it.
			return rest, false
		}
	}
	return rest, false
}
