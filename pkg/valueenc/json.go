package valueenc

import "encoding/json"

// JSONEncoder is the default Encoder: json.Marshal/json.Unmarshal
// against the envelope's tagged Go struct, the same framing technique
// used for fixed inventory message shapes, scaled to the sync engine's
// single tagged envelope.
type JSONEncoder struct{}

// NewJSONEncoder returns the default encoder. It holds no state.
func NewJSONEncoder() JSONEncoder {
	return JSONEncoder{}
}

func (JSONEncoder) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONEncoder) Decode(data []byte, out any) bool {
	return json.Unmarshal(data, out) == nil
}

var _ Encoder = JSONEncoder{}
