package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// InventoryFileName is the rendered configuration-engine inventory inside
// the state directory.
const InventoryFileName = "inventory.ini"

// InventoryParams are the facts the configuration engine needs to address
// the target.
type InventoryParams struct {
	Group          string
	Host           string
	User           string
	PrivateKeyPath string
}

// WriteInventory renders the inventory artifact consumed by the
// configuration engine. Rendered on every state save that changes the
// target, so the engine always addresses the host the pipeline actually
// provisioned.
func (s *Store) WriteInventory(p InventoryParams) (string, error) {
	if p.Host == "" {
		return "", fmt.Errorf("inventory host is required")
	}
	if p.Group == "" {
		p.Group = "targets"
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}

	content := fmt.Sprintf(
		"[%s]\n%s ansible_user=%s ansible_ssh_private_key_file=%s ansible_ssh_common_args='-o StrictHostKeyChecking=accept-new'\n",
		p.Group, p.Host, p.User, p.PrivateKeyPath,
	)

	path := filepath.Join(s.dir, InventoryFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write inventory: %w", err)
	}

	log.Debug().Str("path", path).Str("host", p.Host).Msg("inventory rendered")
	return path, nil
}

// InventoryPath returns where the rendered inventory lives.
func (s *Store) InventoryPath() string {
	return filepath.Join(s.dir, InventoryFileName)
}
