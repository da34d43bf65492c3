// Package codec compiles decode and encode functions for Arrow columns.
//
// A codec pair is derived once per field at registration time and reused
// for every batch, so the per-row hot path never inspects type descriptors.
// Decoders turn Arrow columnar values into native Go values, encoders do
// the inverse:
//
//	BOOLEAN            bool
//	TINYINT..BIGINT    int8..int64
//	unsigned widths    uint8..uint64
//	FLOAT, DOUBLE      float32, float64
//	DATE, TIMESTAMP    time.Time
//	VARCHAR            string
//	BINARY             []byte
//	DECIMAL(p, s)      string (scale-formatted)
//	VARIANT            any JSON value
//	ARRAY(T)           []any
//	TUPLE(...)         []any (declared field order)
//	MAP(K, V)          map[string]any for textual keys, map[any]any otherwise
//
// SQL NULL is represented as nil in both directions. A null list decodes to
// nil, never to an empty slice.
package codec

import (
	"errors"
)

// ErrSerialization indicates a variant payload that is not valid JSON.
var ErrSerialization = errors.New("malformed variant payload")
