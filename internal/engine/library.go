package engine

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/progcache"
)

// EnvAccelerator selects the accelerator when no option does.
// Format: "name" or "name:key=value,...". "none" disables acceleration.
const EnvAccelerator = "SPARSE_ACCELERATOR"

// NoAccelerator is the accelerator name that disables acceleration.
const NoAccelerator = "none"

// Config is the library configuration.
type Config struct {
	Accelerator string        // accelerator name, or NoAccelerator
	Options     accel.Options // accelerator options
	Registrars  []func(*Registry) error
}

// DefaultConfig returns the configuration used when neither the environment
// nor options say otherwise: the software accelerator.
func DefaultConfig() Config {
	return Config{Accelerator: "cpu", Options: accel.Options{}}
}

// String returns the accelerator config string, e.g. "cpu:queues=2,wgs=8".
func (c Config) String() string {
	if len(c.Options) == 0 {
		return c.Accelerator
	}
	kv := make([]string, 0, len(c.Options))
	for k, v := range c.Options {
		kv = append(kv, k+"="+v)
	}
	sort.Strings(kv)
	return c.Accelerator + ":" + strings.Join(kv, ",")
}

// Option configures a Library.
type Option func(*Config) error

// WithAccelerator selects an accelerator by config string.
func WithAccelerator(config string) Option {
	return func(c *Config) error {
		name, opts, err := accel.ParseConfig(config)
		if err != nil {
			return err
		}
		c.Accelerator, c.Options = name, opts
		return nil
	}
}

// WithNoAcceleration disables the accelerator. Only cpu executors run.
func WithNoAcceleration() Option {
	return func(c *Config) error {
		c.Accelerator, c.Options = NoAccelerator, accel.Options{}
		return nil
	}
}

// WithWorkgroupSize overrides the accelerator workgroup size.
func WithWorkgroupSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return errors.Errorf("engine: workgroup size %d must be positive", n)
		}
		c.Options["wgs"] = strconv.Itoa(n)
		return nil
	}
}

// WithQueues overrides the number of accelerator queues.
func WithQueues(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return errors.Errorf("engine: queue count %d must be positive", n)
		}
		c.Options["queues"] = strconv.Itoa(n)
		return nil
	}
}

// WithRegistrar adds a function populating the executor registry.
func WithRegistrar(fn func(*Registry) error) Option {
	return func(c *Config) error {
		c.Registrars = append(c.Registrars, fn)
		return nil
	}
}

// Library owns the accelerator, the program cache, the registry and the dispatcher.
type Library struct {
	cfg        Config
	acc        accel.Accelerator
	programs   *progcache.Cache
	registry   *Registry
	dispatcher *Dispatcher
}

// New creates a library. Configuration precedence: options, then the
// SPARSE_ACCELERATOR environment variable, then DefaultConfig.
func New(opts ...Option) (*Library, error) {
	cfg := DefaultConfig()
	if env := os.Getenv(EnvAccelerator); env != "" {
		if err := WithAccelerator(env)(&cfg); err != nil {
			return nil, errors.Wrapf(err, "engine: %s", EnvAccelerator)
		}
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	lib := &Library{cfg: cfg, registry: NewRegistry()}
	for _, fn := range cfg.Registrars {
		if err := fn(lib.registry); err != nil {
			return nil, errors.Wrap(err, "engine: registering executors")
		}
	}

	if cfg.Accelerator != NoAccelerator {
		acc, err := accel.New(cfg.String())
		if err != nil {
			return nil, WithStatus(StatusNoAcceleration, err)
		}
		lib.acc = acc
		lib.programs = progcache.New(acc)
		klog.V(1).Infof("engine: accelerator %s (%s)", acc.Name(), acc.Description())
	} else {
		klog.V(1).Info("engine: acceleration disabled")
	}
	lib.dispatcher = NewDispatcher(lib.registry, lib.acc, lib.programs)
	return lib, nil
}

// Config returns the effective configuration.
func (l *Library) Config() Config { return l.cfg }

// Accelerator returns the accelerator, or nil when acceleration is disabled.
func (l *Library) Accelerator() accel.Accelerator { return l.acc }

// Registry returns the executor registry.
func (l *Library) Registry() *Registry { return l.registry }

// Dispatcher returns the dispatcher.
func (l *Library) Dispatcher() *Dispatcher { return l.dispatcher }

// Programs returns the program cache, or nil when acceleration is disabled.
func (l *Library) Programs() *progcache.Cache { return l.programs }

// Synchronize waits for all enqueued device work.
func (l *Library) Synchronize() error { return l.dispatcher.Synchronize() }

// Release waits for outstanding work and releases the accelerator.
func (l *Library) Release() error {
	err := l.Synchronize()
	if l.programs != nil {
		l.programs.Release()
	}
	if l.acc != nil {
		l.acc.Release()
	}
	return err
}
