package ids

import (
	"errors"
	"math/rand"
)

// Length of a single identifier.
const Length = 11

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var ErrInvalidCount = errors.New("identifier count must be positive")

// Generate - returns count unique random identifiers drawn from [0-9a-z]
func Generate(count int) ([]string, error) {
	return generate(count, random)
}

func generate(count int, next func() string) ([]string, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	seen := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	for len(out) < count {
		id := next()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out, nil
}

func random() string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
