package usecase

import (
	"github.com/bytedance/sonic"

	"github.com/fplsage/sage-api/internal/domain/analysis"
)

// encodeResult serializes a Result to the canonical bytes CacheStore
// persists. sonic is used here for the same reason HTTPSurface uses it
// for response bodies: struct field order is stable, so canonical-order
// JSON falls out of the struct definition without extra bookkeeping.
func encodeResult(result analysis.Result) ([]byte, error) {
	return sonic.Marshal(result)
}

func decodeResult(raw []byte) (analysis.Result, error) {
	var result analysis.Result
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return analysis.Result{}, err
	}
	return result, nil
}
