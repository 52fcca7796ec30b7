package plex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Credentials holds the server connection settings persisted between
// runs. The token is stored as the server issued it.
type Credentials struct {
	ServerURL string `json:"serverUrl"`
	Token     string `json:"token"`
	SectionID string `json:"sectionId,omitempty"`
}

// LoadCredentials reads credentials from the given path. A missing file
// is reported via os.IsNotExist on the returned error.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return &creds, nil
}

// SaveCredentials writes credentials to the given path, creating parent
// directories as needed. The file is user-readable only.
func SaveCredentials(path string, creds *Credentials) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
