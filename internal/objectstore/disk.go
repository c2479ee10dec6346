package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Disk writes uploads under a local directory served at baseURL. Production
// deployments point this at the volume behind the static file host.
type Disk struct {
	root    string
	baseURL string
}

func NewDisk(root, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create slip directory: %w", err)
	}
	return &Disk{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (d *Disk) Upload(_ context.Context, data []byte, path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(d.root, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create slip subdirectory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write slip: %w", err)
	}
	return d.PublicURL(clean), nil
}

func (d *Disk) PublicURL(path string) string {
	return d.baseURL + "/" + strings.TrimPrefix(path, "/")
}
