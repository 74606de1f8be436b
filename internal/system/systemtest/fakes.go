// Package systemtest provides in-memory implementations of the system
// capabilities for tests.
package systemtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blackwell-systems/tweakguard/internal/system"
)

// Registry is an in-memory registry whose Export and Import speak the
// real .reg file format.
type Registry struct {
	mu     sync.Mutex
	keys   map[string]*fakeKey
	denied map[string]bool

	ExportErr error
	ImportErr error
	Imports   int
}

type fakeKey struct {
	key    system.Key
	values []system.Value
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]*fakeKey), denied: make(map[string]bool)}
}

// ErrAccessDenied is returned for keys passed to Deny.
var ErrAccessDenied = errors.New("access is denied")

// Deny makes every lookup of key fail with ErrAccessDenied.
func (r *Registry) Deny(key system.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied[canonical(key)] = true
}

func (r *Registry) checkAccess(key system.Key) error {
	if r.denied[canonical(key)] {
		return fmt.Errorf("%s: %w", key, ErrAccessDenied)
	}
	return nil
}

func canonical(k system.Key) string {
	return strings.ToLower(k.String())
}

// Set writes a value, creating the key. It is the test-side mutation helper.
func (r *Registry) Set(key system.Key, v system.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(key, v)
}

func (r *Registry) set(key system.Key, v system.Value) {
	k := r.create(key)
	for i := range k.values {
		if strings.EqualFold(k.values[i].Name, v.Name) {
			k.values[i] = v
			return
		}
	}
	k.values = append(k.values, v)
}

func (r *Registry) create(key system.Key) *fakeKey {
	c := canonical(key)
	k, ok := r.keys[c]
	if !ok {
		k = &fakeKey{key: key}
		r.keys[c] = k
	}
	return k
}

// Get reads a single value.
func (r *Registry) Get(key system.Key, name string) (system.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[canonical(key)]
	if !ok {
		return system.Value{}, false
	}
	for _, v := range k.values {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return system.Value{}, false
}

// DeleteKey removes a key and its subtree.
func (r *Registry) DeleteKey(key system.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := canonical(key)
	for c := range r.keys {
		if c == prefix || strings.HasPrefix(c, prefix+`\`) {
			delete(r.keys, c)
		}
	}
}

// KeyExists implements system.Registry.
func (r *Registry) KeyExists(_ context.Context, key system.Key) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAccess(key); err != nil {
		return false, err
	}
	_, ok := r.keys[canonical(key)]
	return ok, nil
}

// Export implements system.Registry.
func (r *Registry) Export(_ context.Context, key system.Key, dest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ExportErr != nil {
		return r.ExportErr
	}
	if err := r.checkAccess(key); err != nil {
		return err
	}
	prefix := canonical(key)
	if _, ok := r.keys[prefix]; !ok {
		return fmt.Errorf("%s: %w", key, system.ErrKeyNotFound)
	}

	var names []string
	for c := range r.keys {
		if c == prefix || strings.HasPrefix(c, prefix+`\`) {
			names = append(names, c)
		}
	}
	sort.Strings(names)

	f := &system.RegFile{}
	for _, c := range names {
		k := r.keys[c]
		f.Keys = append(f.Keys, system.RegKey{Key: k.key, Values: append([]system.Value(nil), k.values...)})
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := system.EncodeRegFile(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Import implements system.Registry.
func (r *Registry) Import(_ context.Context, src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Imports++
	if r.ImportErr != nil {
		return r.ImportErr
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	f, err := system.DecodeRegFile(in)
	if err != nil {
		return err
	}
	for _, k := range f.Keys {
		r.create(k.Key)
		for _, v := range k.Values {
			r.set(k.Key, v)
		}
	}
	return nil
}

// Values implements system.Registry.
func (r *Registry) Values(_ context.Context, key system.Key) ([]system.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAccess(key); err != nil {
		return nil, err
	}
	k, ok := r.keys[canonical(key)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, system.ErrKeyNotFound)
	}
	return append([]system.Value(nil), k.values...), nil
}

// SetValue implements system.Registry.
func (r *Registry) SetValue(_ context.Context, key system.Key, v system.Value) error {
	r.Set(key, v)
	return nil
}

// Services is an in-memory service controller.
type Services struct {
	mu      sync.Mutex
	states  map[string]system.ServiceState
	configs map[string]map[string]string

	// StartErr and StopErr, keyed by service name, make the call fail.
	StartErr map[string]error
	StopErr  map[string]error
}

// NewServices creates a controller with no installed services.
func NewServices() *Services {
	return &Services{
		states:   make(map[string]system.ServiceState),
		configs:  make(map[string]map[string]string),
		StartErr: make(map[string]error),
		StopErr:  make(map[string]error),
	}
}

// Install registers a service in the given state.
func (s *Services) Install(name string, state system.ServiceState, config map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = state
	s.configs[name] = config
}

// SetState changes a service state directly.
func (s *Services) SetState(name string, state system.ServiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = state
}

// Status implements system.Services.
func (s *Services) Status(_ context.Context, name string) (system.ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return system.StateUnknown, fmt.Errorf("%s: %w", name, system.ErrServiceNotFound)
	}
	return st, nil
}

// Config implements system.Services.
func (s *Services) Config(_ context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[name]; !ok {
		return nil, fmt.Errorf("%s: %w", name, system.ErrServiceNotFound)
	}
	return s.configs[name], nil
}

// Start implements system.Services.
func (s *Services) Start(_ context.Context, name string) error {
	return s.drive(name, system.StateRunning, s.StartErr)
}

// Stop implements system.Services.
func (s *Services) Stop(_ context.Context, name string) error {
	return s.drive(name, system.StateStopped, s.StopErr)
}

func (s *Services) drive(name string, want system.ServiceState, errs map[string]error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[name]; !ok {
		return fmt.Errorf("%s: %w", name, system.ErrServiceNotFound)
	}
	if err := errs[name]; err != nil {
		return err
	}
	s.states[name] = want
	return nil
}

// Power is an in-memory power plan store.
type Power struct {
	mu     sync.Mutex
	plans  map[string]string
	active string
}

// NewPower creates a store with the stock Windows plans, Balanced active.
func NewPower() *Power {
	return &Power{
		plans: map[string]string{
			system.PlanBalanced:        "Balanced",
			system.PlanHighPerformance: "High performance",
			system.PlanPowerSaver:      "Power saver",
		},
		active: system.PlanBalanced,
	}
}

// AddPlan registers a custom plan.
func (p *Power) AddPlan(guid, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[guid] = name
}

// RemovePlan deletes a plan, as "powercfg /delete" would.
func (p *Power) RemovePlan(guid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.plans, guid)
}

// ActiveGUID returns the active plan GUID.
func (p *Power) ActiveGUID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Active implements system.PowerPlans.
func (p *Power) Active(_ context.Context) (system.PowerPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return system.PowerPlan{GUID: p.active, Name: p.plans[p.active]}, nil
}

// SetActive implements system.PowerPlans.
func (p *Power) SetActive(_ context.Context, guid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.plans[guid]; !ok {
		return fmt.Errorf("%s: %w", guid, system.ErrPlanNotFound)
	}
	p.active = guid
	return nil
}

// Runner replays canned results keyed by the full command line.
type Runner struct {
	mu      sync.Mutex
	Results map[string]*system.Result
	Errs    map[string]error
	Calls   []string
}

// NewRunner creates a Runner with no canned results.
func NewRunner() *Runner {
	return &Runner{Results: make(map[string]*system.Result), Errs: make(map[string]error)}
}

// On registers the result for a command line such as "sc query wuauserv".
func (r *Runner) On(cmdline string, exit int, stdout string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results[cmdline] = &system.Result{ExitCode: exit, Stdout: stdout}
}

// Run implements system.Runner. Unknown commands exit 1.
func (r *Runner) Run(_ context.Context, name string, args ...string) (*system.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmdline := strings.Join(append([]string{name}, args...), " ")
	r.Calls = append(r.Calls, cmdline)
	if err := r.Errs[cmdline]; err != nil {
		return &system.Result{ExitCode: -1}, err
	}
	if res, ok := r.Results[cmdline]; ok {
		return res, nil
	}
	return &system.Result{ExitCode: 1, Stderr: "unexpected command"}, nil
}
