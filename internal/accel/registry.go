package accel

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Constructor creates an accelerator from parsed options.
type Constructor func(opts Options) (Accelerator, error)

// Options are the key=value pairs of an accelerator config string.
type Options map[string]string

// Int returns the integer option key, or def when absent.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("accel: option %s=%q must be a positive integer", key, v)
	}
	return n, nil
}

var (
	registryMu   sync.RWMutex
	constructors = make(map[string]Constructor)
)

// ErrUnknown is returned by New for accelerator names nobody registered.
var ErrUnknown = errors.New("accel: unknown accelerator")

// Register makes an accelerator constructor available under name.
// Registering the same name twice replaces the previous constructor.
func Register(name string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	constructors[name] = c
}

// Registered returns the names of all registered accelerators, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseConfig splits a config string of the form "name" or "name:k=v,k2=v2".
func ParseConfig(config string) (string, Options, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(config), ":")
	if name == "" {
		return "", nil, errors.Errorf("accel: empty accelerator name in config %q", config)
	}
	opts := make(Options)
	if rest == "" {
		return name, opts, nil
	}
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return "", nil, errors.Errorf("accel: malformed option %q in config %q", kv, config)
		}
		opts[k] = v
	}
	return name, opts, nil
}

// New creates an accelerator from a config string.
func New(config string) (Accelerator, error) {
	name, opts, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	c, ok := constructors[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknown, "%q (registered: %s)", name, strings.Join(Registered(), ", "))
	}
	a, err := c(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "accel: creating %q", name)
	}
	return a, nil
}
