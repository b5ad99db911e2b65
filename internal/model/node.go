package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateNodeID returns the identifier stored in <dir>/node-id,
// generating one on first use.
func LoadOrCreateNodeID(dir string) (string, error) {
	idPath := filepath.Join(dir, "node-id")

	if data, err := os.ReadFile(idPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate node id: %w", err)
	}
	id := hex.EncodeToString(b)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dir: %w", err)
	}

	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		return "", fmt.Errorf("failed to save node id: %w", err)
	}

	return id, nil
}
