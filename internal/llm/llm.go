// Package llm defines the boundary to the external text generation service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion marks a call that returned no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// Generator turns a prompt into text. Implementations make a single attempt:
// no retries, no built-in timeout beyond what ctx carries.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// BackendError wraps any failure surfaced by a Generator.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Generate calls g and normalises the outcome: every failure, including
// blank output, comes back as a *BackendError.
func Generate(ctx context.Context, g Generator, provider, prompt string, maxTokens int, temperature float64) (string, error) {
	text, err := g.Generate(ctx, prompt, maxTokens, temperature)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			return "", err
		}
		return "", &BackendError{Provider: provider, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &BackendError{Provider: provider, Err: ErrEmptyCompletion}
	}
	return text, nil
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return f(ctx, prompt, maxTokens, temperature)
}
