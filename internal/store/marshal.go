package store

import (
	"fmt"
	"math"

	"github.com/roach88/capsale/internal/ir"
)

func marshalFields(fields ir.Object) (string, error) {
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(data string) (ir.Object, error) {
	var obj ir.Object
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// heightToDB converts a block height to SQLite's signed INTEGER.
func heightToDB(h uint64) (int64, error) {
	if h > math.MaxInt64 {
		return 0, fmt.Errorf("height %d exceeds storable range", h)
	}
	return int64(h), nil
}

func parseAddressColumn(col, s string) (ir.Address, error) {
	a, err := ir.ParseAddress(s)
	if err != nil {
		return ir.ZeroAddress, fmt.Errorf("column %s: %w", col, err)
	}
	return a, nil
}
