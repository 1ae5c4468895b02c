package domain

import (
	"crypto/rand"
	"math/big"
)

const traceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TraceIDLength is the length of generated trace ids.
const TraceIDLength = 12

// NewTraceID returns a random uppercase alphanumeric id used when a
// provider returns no message id of its own.
func NewTraceID() string {
	b := make([]byte, TraceIDLength)
	max := big.NewInt(int64(len(traceAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = traceAlphabet[i%len(traceAlphabet)]
			continue
		}
		b[i] = traceAlphabet[n.Int64()]
	}
	return string(b)
}
