package system

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// RegTool implements Registry with reg.exe. Key existence is checked
// through the native registry API where there is one.
type RegTool struct {
	runner Runner
	exists func(Key) (bool, error)
}

// NewRegTool creates a RegTool.
func NewRegTool(r Runner) *RegTool {
	return &RegTool{runner: r, exists: nativeKeyExists}
}

// regNotFound is the message reg.exe prints for a missing key on an
// English system. Other output on a failed query is treated as an error.
const regNotFound = "unable to find the specified registry key"

// KeyExists reports whether key exists. Access denied and any other
// failure to look the key up is returned as an error, never as absent.
func (t *RegTool) KeyExists(ctx context.Context, key Key) (bool, error) {
	if t.exists != nil {
		return t.exists(key)
	}
	res, err := t.runner.Run(ctx, "reg", "query", key.String())
	if err != nil {
		return false, err
	}
	if res.ExitCode == 0 {
		return true, nil
	}
	if strings.Contains(strings.ToLower(res.Output()), regNotFound) {
		return false, nil
	}
	return false, toolError("reg", "query "+key.String(), res)
}

// Export writes the key and its subtree to dest in .reg format.
func (t *RegTool) Export(ctx context.Context, key Key, dest string) error {
	exists, err := t.KeyExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	res, err := t.runner.Run(ctx, "reg", "export", key.String(), dest, "/y")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return toolError("reg", "export "+key.String(), res)
	}
	return nil
}

// Import merges a .reg file into the registry.
func (t *RegTool) Import(ctx context.Context, src string) error {
	res, err := t.runner.Run(ctx, "reg", "import", src)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return toolError("reg", "import "+src, res)
	}
	return nil
}

// queryLine matches "    Name    REG_SZ    data" lines of reg query output.
var queryLine = regexp.MustCompile(`^ {4}(.*?) {4}(REG_[A-Z_]+)(?: {4}(.*))?$`)

// Values lists the values directly under key (no subkeys).
func (t *RegTool) Values(ctx context.Context, key Key) ([]Value, error) {
	res, err := t.runner.Run(ctx, "reg", "query", key.String())
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		exists, err := t.KeyExists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		return nil, toolError("reg", "query "+key.String(), res)
	}
	return parseQueryOutput(res.Stdout), nil
}

func parseQueryOutput(out string) []Value {
	var values []Value
	inKey := false
	for _, line := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "HKEY_") {
			// Only the first block belongs to the queried key.
			if inKey {
				break
			}
			inKey = true
			continue
		}
		m := queryLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v := Value{Name: m[1], Type: ValueType(m[2])}
		if v.Name == "(Default)" {
			v.Name = ""
		}
		data := m[3]
		switch v.Type {
		case TypeDWord, TypeQWord:
			fmt.Sscanf(data, "0x%x", &v.Integer)
		case TypeMultiString:
			if data != "" {
				v.Strings = strings.Split(data, `\0`)
			}
		case TypeBinary:
			fmt.Sscanf(data, "%x", &v.Binary)
		default:
			v.String = data
		}
		values = append(values, v)
	}
	return values
}

// SetValue writes a value with "reg add", creating the key if needed.
func (t *RegTool) SetValue(ctx context.Context, key Key, v Value) error {
	args := []string{"add", key.String()}
	if v.Name == "" {
		args = append(args, "/ve")
	} else {
		args = append(args, "/v", v.Name)
	}
	typ := v.Type
	if typ == "" {
		typ = TypeString
	}
	args = append(args, "/t", string(typ), "/d", v.Data(), "/f")

	res, err := t.runner.Run(ctx, "reg", args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return toolError("reg", "add "+key.String(), res)
	}
	return nil
}
