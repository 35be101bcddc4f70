// Package util provides shared utility functions.
package util

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Identifier format for goals and tasks.
const (
	// IDAlphabet is alphanumeric only so ids never look like CLI flags and never need quoting.
	IDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// IDLength gives 62^8 (~2.2e14) possible ids.
	IDLength = 8
	// MaxIDAttempts bounds regeneration after a store-reported collision.
	MaxIDAttempts = 5
)

// NewID returns a fresh random identifier from a crypto-strong source.
func NewID() (string, error) {
	id, err := gonanoid.Generate(IDAlphabet, IDLength)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// IsValidID reports whether s has the shape of a generated id.
func IsValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(IDAlphabet, r) {
			return false
		}
	}
	return true
}
