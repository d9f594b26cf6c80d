package vectors

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// EncodeEmbedding serializes a vector for the jsonb embedding column.
// float32 values survive the round trip bit-exact: encoding/json emits the
// shortest decimal that parses back to the same float32.
func EncodeEmbedding(vec []float32) (datatypes.JSON, error) {
	if vec == nil {
		vec = []float32{}
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func DecodeEmbedding(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
