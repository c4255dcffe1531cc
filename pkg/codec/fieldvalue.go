package codec

import (
	"fmt"
	"strconv"

	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// absentToken is the lone NUL byte standing in for a schema field whose
// value is absent.
const absentToken = "\x00"

// encodeHex renders n as lowercase hex with no leading zeros and no "0x"
// prefix; zero renders as "0". Negative numbers never reach this codec:
// every numeric quantity it carries (clocks, integer keys, integer field
// values) is non-negative by construction.
func encodeHex(n uint64) string {
	return strconv.FormatUint(n, 16)
}

func decodeHex(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("codec: empty hex number")
	}
	return strconv.ParseUint(s, 16, 64)
}

// encodeKey renders a row's primary key per its table's key type.
func encodeKey(kt store.KeyType, key any) (string, error) {
	switch kt {
	case store.KeyTypeInteger:
		n, ok := key.(int64)
		if !ok || n < 0 {
			return "", fmt.Errorf("codec: integer key %v out of range", key)
		}
		return encodeHex(uint64(n)), nil
	default:
		return store.KeyString(key), nil
	}
}

func decodeKey(kt store.KeyType, raw string) (any, error) {
	switch kt {
	case store.KeyTypeInteger:
		n, err := decodeHex(raw)
		if err != nil {
			return nil, fmt.Errorf("codec: malformed integer key %q: %w", raw, err)
		}
		return int64(n), nil
	default:
		return raw, nil
	}
}

// encodeFieldValue renders one schema field's value: the NUL sentinel for
// absent, "1"/"0" for booleans, hex for integers, and the literal string
// otherwise. The format has no escaping, so string field values cannot
// themselves contain ';', '{', '}', or NUL.
func encodeFieldValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return absentToken, nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	case int64:
		if t < 0 {
			return "", fmt.Errorf("codec: negative integer field value %d", t)
		}
		return encodeHex(uint64(t)), nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("codec: non-primitive field value %#v", v)
	}
}

// decodeFieldValue interprets raw against the set of types field accepts.
// A single NUL byte always decodes to absent, regardless of what other
// types the field accepts, since absent values carry no content to
// disambiguate against. Otherwise the field's single non-absent primitive
// tag drives the decode. A field declared to accept more than one
// non-absent primitive type is accepted by NewTable, but it is not
// positionally decodable (the codec has no way to tell a boolean "1" from
// an integer 1 without a single declared tag): any non-absent value for
// such a field fails here, so such a field never round-trips through this
// codec.
func decodeFieldValue(tags []store.FieldType, raw string) (any, error) {
	if raw == absentToken {
		return nil, nil
	}
	primary, ok := primaryTag(tags)
	if !ok {
		return nil, fmt.Errorf("codec: field has no decodable primitive tag")
	}
	switch primary {
	case store.TypeBoolean:
		switch raw {
		case "1":
			return true, nil
		case "0":
			return false, nil
		default:
			return nil, fmt.Errorf("codec: malformed boolean value %q", raw)
		}
	case store.TypeInteger:
		n, err := decodeHex(raw)
		if err != nil {
			return nil, fmt.Errorf("codec: malformed integer value %q: %w", raw, err)
		}
		return int64(n), nil
	case store.TypeString:
		return raw, nil
	default:
		return nil, fmt.Errorf("codec: field declares only the absent tag")
	}
}

// primaryTag returns the single non-absent tag in tags, if there is
// exactly one.
func primaryTag(tags []store.FieldType) (store.FieldType, bool) {
	found := false
	var tag store.FieldType
	for _, t := range tags {
		if t == store.TypeAbsent {
			continue
		}
		if found {
			return 0, false
		}
		tag, found = t, true
	}
	return tag, found
}
