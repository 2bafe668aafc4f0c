// Package idgen generates opaque identifiers for external references.
package idgen

import (
	"crypto/rand"
	"fmt"
)

const jobIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generator creates opaque IDs suitable for external references.
type Generator interface {
	NewID() (string, error)
}

// JobIDGenerator produces 8-character lowercase alphanumeric job identifiers.
type JobIDGenerator struct {
	length int
}

func NewJobIDGenerator() *JobIDGenerator {
	return &JobIDGenerator{length: 8}
}

func (g *JobIDGenerator) NewID() (string, error) {
	length := g.length
	if length <= 0 {
		length = 8
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = jobIDAlphabet[int(b)%len(jobIDAlphabet)]
	}

	return string(out), nil
}
