package system

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegFileRoundTrip(t *testing.T) {
	key := Key{Hive: HKCU, Path: `Software\Example`}
	in := &RegFile{Keys: []RegKey{{
		Key: key,
		Values: []Value{
			{Name: "Flag", Type: TypeDWord, Integer: 1},
			{Name: "", Type: TypeString, String: `C:\Program Files\"quoted"`},
			{Name: "Path", Type: TypeExpandString, String: `%SystemRoot%\system32`},
			{Name: "List", Type: TypeMultiString, Strings: []string{"a", "b"}},
			{Name: "Big", Type: TypeQWord, Integer: 1 << 40},
			{Name: "Blob", Type: TypeBinary, Binary: []byte{0xde, 0xad, 0xbe, 0xef}},
		},
	}}}

	var buf bytes.Buffer
	require.NoError(t, EncodeRegFile(&buf, in))
	assert.Equal(t, []byte{0xFF, 0xFE}, buf.Bytes()[:2], "export should carry a UTF-16LE BOM")

	out, err := DecodeRegFile(&buf)
	require.NoError(t, err)
	require.Len(t, out.Keys, 1)

	got := out.Find(key)
	require.NotNil(t, got)
	assert.Equal(t, in.Keys[0].Values, got.Values)
}

func TestDecodeRegFile_WrappedHexAndDeletions(t *testing.T) {
	src := strings.Join([]string{
		RegFileHeader,
		"",
		`[HKEY_LOCAL_MACHINE\SOFTWARE\Vendor]`,
		`"Bin"=hex:01,02,\`,
		`  03,04`,
		`"Gone"=-`,
		"",
		`[-HKEY_LOCAL_MACHINE\SOFTWARE\Vendor\Old]`,
		"",
	}, "\r\n")

	f, err := DecodeRegFile(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, f.Keys, 1)
	assert.Equal(t, HKLM, f.Keys[0].Key.Hive)
	require.Len(t, f.Keys[0].Values, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Keys[0].Values[0].Binary)
}

func TestDecodeRegFile_RejectsGarbage(t *testing.T) {
	_, err := DecodeRegFile(strings.NewReader("not a registry file"))
	assert.Error(t, err)

	_, err = DecodeRegFile(strings.NewReader(RegFileHeader + "\n\"orphan\"=dword:00000001\n"))
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{in: `HKCU\Software\Example`, want: Key{Hive: HKCU, Path: `Software\Example`}},
		{in: `HKEY_LOCAL_MACHINE\SYSTEM\CurrentControlSet`, want: Key{Hive: HKLM, Path: `SYSTEM\CurrentControlSet`}},
		{in: `hku`, want: Key{Hive: HKU}},
		{in: `HKXX\Nope`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQueryOutput(t *testing.T) {
	out := "\r\nHKEY_CURRENT_USER\\Software\\Microsoft\\Windows\\CurrentVersion\\Run\r\n" +
		"    OneDrive    REG_SZ    \"C:\\Users\\me\\OneDrive.exe\" /background\r\n" +
		"    Counter    REG_DWORD    0x2a\r\n" +
		"    (Default)    REG_SZ    \r\n" +
		"\r\nHKEY_CURRENT_USER\\Software\\Microsoft\\Windows\\CurrentVersion\\Run\\Sub\r\n" +
		"    Ignored    REG_SZ    x\r\n"

	values := parseQueryOutput(out)
	require.Len(t, values, 3)
	assert.Equal(t, "OneDrive", values[0].Name)
	assert.Equal(t, `"C:\Users\me\OneDrive.exe" /background`, values[0].String)
	assert.Equal(t, uint64(42), values[1].Integer)
	assert.Equal(t, "", values[2].Name)
}

func TestParseServiceState(t *testing.T) {
	out := `
SERVICE_NAME: wuauserv
        TYPE               : 20  WIN32_SHARE_PROCESS
        STATE              : 4  RUNNING
                                (STOPPABLE, NOT_PAUSABLE, ACCEPTS_SHUTDOWN)
`
	assert.Equal(t, StateRunning, parseServiceState(out))
	assert.Equal(t, StateStopped, parseServiceState("        STATE              : 1  STOPPED\n"))
	assert.Equal(t, StateUnknown, parseServiceState("garbage"))
}
