package reactive

import (
	"context"
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the JSON encoding of v.
func Fingerprint(v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// Distinct forwards in, dropping values whose fingerprint equals the
// previously forwarded one. Errors are always forwarded. Values that
// cannot be fingerprinted are forwarded unchanged.
func Distinct[T any](ctx context.Context, in <-chan Event[T]) <-chan Event[T] {
	out := make(chan Event[T])
	go func() {
		defer close(out)
		var last uint64
		seen := false
		for {
			var ev Event[T]
			var ok bool
			select {
			case <-ctx.Done():
				return
			case ev, ok = <-in:
				if !ok {
					return
				}
			}

			if ev.Err == nil {
				sum, err := Fingerprint(ev.Value)
				if err == nil {
					if seen && sum == last {
						continue
					}
					last, seen = sum, true
				}
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Err != nil {
				return
			}
		}
	}()
	return out
}
