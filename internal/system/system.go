// Package system defines the operating system capabilities tweakguard
// depends on (registry, services, power plans, process execution) and
// the command-line tool adapters that implement them on Windows.
//
// Everything here is a thin wrapper around an OS tool. The engine never
// talks to the OS directly; tests substitute the fakes in systemtest.
package system

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a registry key does not exist.
	ErrKeyNotFound = errors.New("registry key not found")
	// ErrServiceNotFound is returned when a service is not installed.
	ErrServiceNotFound = errors.New("service not found")
	// ErrPlanNotFound is returned when a power plan GUID is unknown.
	ErrPlanNotFound = errors.New("power plan not found")
	// ErrUnsupported is returned by capabilities unavailable on this platform.
	ErrUnsupported = errors.New("not supported on this platform")
)

// Hive is a registry root key in its short form (HKLM, HKCU, ...).
type Hive string

const (
	HKLM Hive = "HKLM"
	HKCU Hive = "HKCU"
	HKCR Hive = "HKCR"
	HKU  Hive = "HKU"
	HKCC Hive = "HKCC"
)

var hiveAliases = map[string]Hive{
	"HKLM":                HKLM,
	"HKEY_LOCAL_MACHINE":  HKLM,
	"HKCU":                HKCU,
	"HKEY_CURRENT_USER":   HKCU,
	"HKCR":                HKCR,
	"HKEY_CLASSES_ROOT":   HKCR,
	"HKU":                 HKU,
	"HKEY_USERS":          HKU,
	"HKCC":                HKCC,
	"HKEY_CURRENT_CONFIG": HKCC,
}

var hiveLongNames = map[Hive]string{
	HKLM: "HKEY_LOCAL_MACHINE",
	HKCU: "HKEY_CURRENT_USER",
	HKCR: "HKEY_CLASSES_ROOT",
	HKU:  "HKEY_USERS",
	HKCC: "HKEY_CURRENT_CONFIG",
}

// ParseHive accepts both the short and the long spelling of a hive.
func ParseHive(s string) (Hive, error) {
	h, ok := hiveAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown registry hive %q", s)
	}
	return h, nil
}

// LongName returns the HKEY_* spelling used in .reg files.
func (h Hive) LongName() string {
	return hiveLongNames[h]
}

// Key locates a registry key.
type Key struct {
	Hive Hive
	Path string
}

// ParseKey splits "HKCU\Software\Foo" into hive and path.
func ParseKey(s string) (Key, error) {
	s = strings.Trim(strings.TrimSpace(s), `\`)
	hive, path, _ := strings.Cut(s, `\`)
	h, err := ParseHive(hive)
	if err != nil {
		return Key{}, err
	}
	return Key{Hive: h, Path: path}, nil
}

func (k Key) String() string {
	if k.Path == "" {
		return string(k.Hive)
	}
	return string(k.Hive) + `\` + k.Path
}

// Registry is the registry capability. Export and Import use the OS
// native key-export format so blobs stay importable by hand.
type Registry interface {
	KeyExists(ctx context.Context, key Key) (bool, error)
	Export(ctx context.Context, key Key, dest string) error
	Import(ctx context.Context, src string) error
	Values(ctx context.Context, key Key) ([]Value, error)
	SetValue(ctx context.Context, key Key, v Value) error
}

// ServiceState is the run state of a service.
type ServiceState string

const (
	StateRunning ServiceState = "RUNNING"
	StateStopped ServiceState = "STOPPED"
	StatePaused  ServiceState = "PAUSED"
	StateUnknown ServiceState = "UNKNOWN"
)

// Services is the service control capability.
type Services interface {
	Status(ctx context.Context, name string) (ServiceState, error)
	Config(ctx context.Context, name string) (map[string]string, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// Well-known power plan GUIDs shipped with Windows.
const (
	PlanBalanced            = "381b4222-f694-41f0-9685-ff5bb260df2e"
	PlanHighPerformance     = "8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c"
	PlanPowerSaver          = "a1841308-3541-4fab-bc81-f71556f20b4a"
	PlanUltimatePerformance = "e9a42b02-d5df-448d-aa00-03f14749eb61"
)

// PowerPlan identifies a power scheme.
type PowerPlan struct {
	GUID string
	Name string
}

// PowerPlans is the power configuration capability.
type PowerPlans interface {
	Active(ctx context.Context) (PowerPlan, error)
	SetActive(ctx context.Context, guid string) error
}
