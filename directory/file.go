package directory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Legacy role files bundled the handle mapping and mute list alongside the
// role membership. Those concerns now live in their own stores, so the
// loader skips the old keys instead of failing on them.
var legacyFileKeys = map[string]bool{
	"username_mapping": true,
	"muted_users":      true,
	"role_masters":     true,
}

// LoadFile reads a role file (role name → list of numeric identities) into
// a fresh directory. Unknown role names are skipped with a warning so an
// edited file cannot take the relay down. A missing file yields an empty
// directory.
func LoadFile(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("role file not found, starting empty", slog.String("path", path))
			return d, nil
		}
		return nil, fmt.Errorf("read role file: %w", err)
	}

	// Legacy keys hold non-list shapes (username_mapping is an object), so
	// decode per key and only parse values that survive the skip.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse role file: %w", err)
	}

	snapshot := make(map[Role][]Identity, len(raw))
	for name, value := range raw {
		if legacyFileKeys[name] {
			continue
		}
		role, err := ParseRole(name)
		if err != nil {
			logger.Warn("skipping unknown role in role file",
				slog.String("role", name),
				slog.String("path", path))
			continue
		}
		var ids []Identity
		if err := json.Unmarshal(value, &ids); err != nil {
			return nil, fmt.Errorf("parse role file: members of %q: %w", name, err)
		}
		snapshot[role] = ids
	}

	if err := d.Replace(snapshot); err != nil {
		return nil, err
	}
	return d, nil
}

// SaveFile writes the directory's membership to path as JSON. The write
// goes through a temp file and rename so a concurrent reader never sees a
// half-written file.
func SaveFile(d *Directory, path string) error {
	snapshot := d.Snapshot()

	out := make(map[string][]Identity, len(snapshot))
	for role, ids := range snapshot {
		out[string(role)] = ids
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal role file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".roles-*")
	if err != nil {
		return fmt.Errorf("create temp role file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write role file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close role file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace role file: %w", err)
	}
	return nil
}
