package engine

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestClassifyGenAI_APIError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, ErrQuotaExceeded},
		{genai.APIError{Code: 503, Status: "UNAVAILABLE"}, ErrOverloaded},
		{fmt.Errorf("generate: %w", genai.APIError{Code: 500, Status: "INTERNAL"}), ErrOverloaded},
	}
	for _, tt := range tests {
		if got := classifyGenAI(tt.err); !errors.Is(got, tt.want) {
			t.Errorf("classifyGenAI(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassifyGenAI_BadRequestUnclassified(t *testing.T) {
	got := classifyGenAI(genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"})
	if errors.Is(got, ErrOverloaded) || errors.Is(got, ErrQuotaExceeded) {
		t.Errorf("400 classified as transient: %v", got)
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Error 429, Message: quota exceeded for metric", ErrQuotaExceeded},
		{"rpc error: RESOURCE_EXHAUSTED", ErrQuotaExceeded},
		{"Error 503: the model is overloaded", ErrOverloaded},
		{"service UNAVAILABLE", ErrOverloaded},
	}
	for _, tt := range tests {
		if got := classifyMessage(errors.New(tt.msg)); !errors.Is(got, tt.want) {
			t.Errorf("classifyMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}

	plain := errors.New("invalid model name")
	if got := classifyMessage(plain); got != plain {
		t.Errorf("classifyMessage changed an unrelated error: %v", got)
	}
}
