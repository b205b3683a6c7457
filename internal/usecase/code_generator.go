package usecase

import (
	"context"
	"crypto/rand"
	"io"
	"strings"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/infra/metrics"
)

// CodeAlphabet avoids characters that are ambiguous when read aloud or
// handwritten (0/O, 1/I). Its size divides 256, so byte%len is unbiased.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator draws fixed-length redemption codes from CodeAlphabet.
type CodeGenerator struct {
	length   int
	attempts int
	rand     io.Reader
}

func NewCodeGenerator(length, attempts int) *CodeGenerator {
	if length <= 0 {
		length = 6
	}
	if attempts <= 0 {
		attempts = 10
	}
	return &CodeGenerator{length: length, attempts: attempts, rand: rand.Reader}
}

// Candidate returns one random code without checking uniqueness.
func (g *CodeGenerator) Candidate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = CodeAlphabet[int(buf[i])%len(CodeAlphabet)]
	}
	return string(buf), nil
}

// Generate draws fresh candidates until claim accepts one. claim reports
// false when the candidate collides with an existing code. Running out of
// attempts means the code space is too small for the current volume, so it
// returns domain.ErrCodeSpaceExhausted rather than retrying indefinitely.
func (g *CodeGenerator) Generate(ctx context.Context, claim func(ctx context.Context, candidate string) (bool, error)) (string, error) {
	for i := 0; i < g.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := g.Candidate()
		if err != nil {
			return "", err
		}
		ok, err := claim(ctx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
		metrics.IncCodeCollision()
	}
	return "", domain.ErrCodeSpaceExhausted
}

// NormalizeCode makes lookups case-insensitive.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
