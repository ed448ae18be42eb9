// Package identity names long-lived service instances.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Provider is an interface for types that can provide an ID
type Provider interface {
	ID() string
}

// Random returns a fresh 64-character hex id.
func Random() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Load reads the id persisted at path, creating and persisting a fresh
// one when the file does not exist yet.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read id file %s: %w", path, err)
	}
	id := Random()
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("write id file %s: %w", path, err)
	}
	return id, nil
}
