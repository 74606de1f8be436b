//go:build windows

package system

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

var registryRoots = map[Hive]registry.Key{
	HKLM: registry.LOCAL_MACHINE,
	HKCU: registry.CURRENT_USER,
	HKCR: registry.CLASSES_ROOT,
	HKU:  registry.USERS,
	HKCC: registry.CURRENT_CONFIG,
}

var nativeKeyExists = openKeyExists

// openKeyExists opens key for reading. Only ERROR_FILE_NOT_FOUND means
// the key is absent.
func openKeyExists(key Key) (bool, error) {
	root, ok := registryRoots[key.Hive]
	if !ok {
		return false, fmt.Errorf("unknown registry hive %q", key.Hive)
	}
	k, err := registry.OpenKey(root, key.Path, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", key, err)
	}
	k.Close()
	return true, nil
}
