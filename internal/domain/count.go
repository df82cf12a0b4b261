package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Count is a non-negative integer metric that tolerates null, float and
// quoted values in upstream payloads. Negative values read as 0 and values
// beyond the int range saturate.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
		if len(b) == 0 {
			*c = 0
			return nil
		}
	}

	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", string(b), err)
	}
	switch {
	case math.IsNaN(f) || f <= 0:
		*c = 0
	case f >= math.MaxInt:
		*c = Count(math.MaxInt)
	default:
		*c = Count(int(f))
	}
	return nil
}

// Int returns the count as an int.
func (c Count) Int() int {
	return int(c)
}
