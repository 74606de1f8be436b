package system

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
)

// RegFileHeader is the first line of every version 5 .reg export.
const RegFileHeader = "Windows Registry Editor Version 5.00"

// ValueType is a registry value type name as printed by reg.exe.
type ValueType string

const (
	TypeString       ValueType = "REG_SZ"
	TypeExpandString ValueType = "REG_EXPAND_SZ"
	TypeMultiString  ValueType = "REG_MULTI_SZ"
	TypeDWord        ValueType = "REG_DWORD"
	TypeQWord        ValueType = "REG_QWORD"
	TypeBinary       ValueType = "REG_BINARY"
)

// Value is a single named registry value. Name "" is the key's default value.
type Value struct {
	Name    string
	Type    ValueType
	String  string
	Strings []string
	Integer uint64
	Binary  []byte
}

// Data renders the value the way reg.exe passes it to "reg add /d".
func (v Value) Data() string {
	switch v.Type {
	case TypeDWord, TypeQWord:
		return strconv.FormatUint(v.Integer, 10)
	case TypeMultiString:
		return strings.Join(v.Strings, `\0`)
	case TypeBinary:
		return fmt.Sprintf("%x", v.Binary)
	default:
		return v.String
	}
}

// RegKey is one [key] section of a .reg file.
type RegKey struct {
	Key    Key
	Values []Value
}

// RegFile is a parsed .reg export.
type RegFile struct {
	Keys []RegKey
}

// Find returns the section for key, or nil.
func (f *RegFile) Find(key Key) *RegKey {
	for i := range f.Keys {
		if f.Keys[i].Key.Hive == key.Hive && strings.EqualFold(f.Keys[i].Key.Path, key.Path) {
			return &f.Keys[i]
		}
	}
	return nil
}

// EncodeRegFile writes f in the layout reg.exe produces: UTF-16LE with a
// byte order mark and CRLF line endings.
func EncodeRegFile(w io.Writer, f *RegFile) error {
	var sb strings.Builder
	sb.WriteString(RegFileHeader)
	sb.WriteString("\r\n\r\n")
	for _, k := range f.Keys {
		fmt.Fprintf(&sb, "[%s]\r\n", longKeyName(k.Key))
		for _, v := range k.Values {
			line, err := encodeValue(v)
			if err != nil {
				return err
			}
			sb.WriteString(line)
			sb.WriteString("\r\n")
		}
		sb.WriteString("\r\n")
	}

	units := utf16.Encode([]rune(sb.String()))
	buf := make([]byte, 2, 2+2*len(units))
	buf[0], buf[1] = 0xFF, 0xFE
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}
	_, err := w.Write(buf)
	return err
}

// DecodeRegFile parses a .reg export in UTF-16LE (with BOM) or UTF-8.
func DecodeRegFile(r io.Reader) (*RegFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry export: %w", err)
	}
	text := decodeText(raw)

	lines := joinContinuations(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != RegFileHeader {
		return nil, fmt.Errorf("not a registry export: missing %q header", RegFileHeader)
	}

	f := &RegFile{}
	var current *RegKey
	for n, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := line[1 : len(line)-1]
			if strings.HasPrefix(name, "-") {
				current = nil
				continue
			}
			key, err := ParseKey(name)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n+2, err)
			}
			f.Keys = append(f.Keys, RegKey{Key: key})
			current = &f.Keys[len(f.Keys)-1]
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("line %d: value outside of a key section", n+2)
		}
		v, skip, err := decodeValue(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		if !skip {
			current.Values = append(current.Values, v)
		}
	}
	return f, nil
}

func longKeyName(k Key) string {
	if k.Path == "" {
		return k.Hive.LongName()
	}
	return k.Hive.LongName() + `\` + k.Path
}

func decodeText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		raw = raw[2:]
		units := make([]uint16, len(raw)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(raw[2*i:])
		}
		return string(utf16.Decode(units))
	}
	return string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))
}

func joinContinuations(lines []string) []string {
	var out []string
	var pending strings.Builder
	for _, l := range lines {
		// Only wrapped hex data ends in a backslash; strings end in a quote.
		trimmed := strings.TrimRight(l, " \t")
		if strings.HasSuffix(trimmed, `\`) {
			pending.WriteString(strings.TrimSpace(strings.TrimSuffix(trimmed, `\`)))
			continue
		}
		if pending.Len() > 0 {
			pending.WriteString(strings.TrimSpace(trimmed))
			out = append(out, pending.String())
			pending.Reset()
			continue
		}
		out = append(out, l)
	}
	if pending.Len() > 0 {
		out = append(out, pending.String())
	}
	return out
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// unquote reads a quoted string from the start of s and returns the
// remainder after the closing quote.
func unquote(s string) (string, string, error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", fmt.Errorf("expected quoted string in %q", s)
	}
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				sb.WriteByte(s[i])
			}
		case '"':
			return sb.String(), s[i+1:], nil
		default:
			sb.WriteByte(s[i])
		}
	}
	return "", "", fmt.Errorf("unterminated string in %q", s)
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ",")
}

func utf16Bytes(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func fromUTF16Bytes(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

func encodeValue(v Value) (string, error) {
	name := "@"
	if v.Name != "" {
		name = quote(v.Name)
	}

	var data string
	switch v.Type {
	case TypeString, "":
		data = quote(v.String)
	case TypeDWord:
		data = fmt.Sprintf("dword:%08x", uint32(v.Integer))
	case TypeQWord:
		data = "hex(b):" + hexBytes(binary.LittleEndian.AppendUint64(nil, v.Integer))
	case TypeExpandString:
		data = "hex(2):" + hexBytes(append(utf16Bytes(v.String), 0, 0))
	case TypeMultiString:
		var b []byte
		for _, s := range v.Strings {
			b = append(b, utf16Bytes(s)...)
			b = append(b, 0, 0)
		}
		data = "hex(7):" + hexBytes(append(b, 0, 0))
	case TypeBinary:
		data = "hex:" + hexBytes(v.Binary)
	default:
		return "", fmt.Errorf("unsupported value type %s for %q", v.Type, v.Name)
	}
	return name + "=" + data, nil
}

func decodeValue(line string) (Value, bool, error) {
	var v Value
	var rest string
	if strings.HasPrefix(line, "@") {
		rest = line[1:]
	} else {
		name, r, err := unquote(line)
		if err != nil {
			return v, false, err
		}
		v.Name, rest = name, r
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "=") {
		return v, false, fmt.Errorf("missing '=' in %q", line)
	}
	data := strings.TrimSpace(rest[1:])

	switch {
	case data == "-":
		return v, true, nil
	case strings.HasPrefix(data, `"`):
		s, _, err := unquote(data)
		if err != nil {
			return v, false, err
		}
		v.Type, v.String = TypeString, s
	case strings.HasPrefix(data, "dword:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(data, "dword:"), 16, 32)
		if err != nil {
			return v, false, fmt.Errorf("invalid dword %q: %w", data, err)
		}
		v.Type, v.Integer = TypeDWord, n
	case strings.HasPrefix(data, "hex"):
		kind, payload, ok := strings.Cut(data, ":")
		if !ok {
			return v, false, fmt.Errorf("invalid hex value %q", data)
		}
		b, err := parseHexList(payload)
		if err != nil {
			return v, false, err
		}
		switch kind {
		case "hex(2)":
			v.Type, v.String = TypeExpandString, strings.TrimRight(fromUTF16Bytes(b), "\x00")
		case "hex(7)":
			v.Type = TypeMultiString
			for _, s := range strings.Split(strings.TrimRight(fromUTF16Bytes(b), "\x00"), "\x00") {
				if s != "" {
					v.Strings = append(v.Strings, s)
				}
			}
		case "hex(b)":
			if len(b) != 8 {
				return v, false, fmt.Errorf("qword %q must be 8 bytes", v.Name)
			}
			v.Type, v.Integer = TypeQWord, binary.LittleEndian.Uint64(b)
		default:
			v.Type, v.Binary = TypeBinary, b
		}
	default:
		return v, false, fmt.Errorf("unrecognized value data %q", data)
	}
	return v, false, nil
}

func parseHexList(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", p, err)
		}
		out = append(out, byte(n))
	}
	return out, nil
}
