package store

import (
	"encoding/json"
	"fmt"
	"math"
)

// Score is a float64 that survives JSON encoding when it is not finite.
// NaN is written as null and the infinities as the strings "+Inf" and
// "-Inf"; finite values are plain numbers.
type Score float64

func (s Score) MarshalJSON() ([]byte, error) {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*s = Score(math.NaN())
		return nil
	case `"+Inf"`:
		*s = Score(math.Inf(1))
		return nil
	case `"-Inf"`:
		*s = Score(math.Inf(-1))
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid score %s: %w", data, err)
	}
	*s = Score(v)
	return nil
}
