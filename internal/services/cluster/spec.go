// Package cluster provisions the worker pool a run executes on and hands out
// futures for submitted tasks
package cluster

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/validate"

	"gopkg.in/yaml.v3"
)

// Kind selects the cluster backend
type Kind string

const (
	// KindLocal runs workers as goroutines in this process
	KindLocal Kind = "local"
	// KindNATS runs workers as processes reached over NATS request-reply
	KindNATS Kind = "nats"
)

// Defaults applied to omitted spec fields
const (
	DefaultSubject        = "rhat.tasks"
	DefaultQueue          = "rhat-workers"
	DefaultStartupTimeout = 30 * time.Second
	DefaultRequestTimeout = 10 * time.Minute
)

// Spec is the declarative worker specification
type Spec struct {
	Kind             Kind              `yaml:"kind" validate:"oneof=local nats"`
	Workers          int               `yaml:"workers" validate:"min=0,max=1024"`
	ThreadsPerWorker int               `yaml:"threads_per_worker" validate:"min=1,max=256"`
	StartupTimeout   time.Duration     `yaml:"startup_timeout"`
	NATS             *NATSSpec         `yaml:"nats" validate:"required_if=Kind nats"`
	Command          []string          `yaml:"command"`
	Env              map[string]string `yaml:"env"`
}

// NATSSpec configures the nats backend
type NATSSpec struct {
	URL            string        `yaml:"url" validate:"required,url"`
	Subject        string        `yaml:"subject" validate:"required"`
	Queue          string        `yaml:"queue" validate:"required"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultSpec is a single in-process worker running one task at a time
func DefaultSpec() Spec {
	return Spec{Kind: KindLocal, Workers: 1, ThreadsPerWorker: 1, StartupTimeout: DefaultStartupTimeout}
}

// LoadSpec reads and validates a worker spec file
func LoadSpec(path string) (Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Spec{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeNotFound, "worker spec %s", path), "cluster")
		}
		return Spec{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "worker spec %s", path)
	}
	return ParseSpec(b)
}

// ParseSpec decodes YAML, fills defaults and validates. Unknown keys are rejected
func ParseSpec(data []byte) (Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Spec{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "worker spec")
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

func (s *Spec) applyDefaults() {
	if s.Kind == "" {
		s.Kind = KindLocal
	}
	if s.ThreadsPerWorker == 0 {
		s.ThreadsPerWorker = 1
	}
	if s.StartupTimeout == 0 {
		s.StartupTimeout = DefaultStartupTimeout
	}
	if s.NATS != nil {
		if s.NATS.Subject == "" {
			s.NATS.Subject = DefaultSubject
		}
		if s.NATS.Queue == "" {
			s.NATS.Queue = DefaultQueue
		}
		if s.NATS.RequestTimeout == 0 {
			s.NATS.RequestTimeout = DefaultRequestTimeout
		}
	}
}

// Validate checks field constraints and backend specific rules
func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.Kind == KindLocal && s.Workers < 1 {
		return perr.WithField(perr.InvalidArgf("workers must be at least 1 for a local cluster"), "workers")
	}
	if s.StartupTimeout < 0 {
		return perr.WithField(perr.InvalidArgf("startup_timeout must not be negative"), "startup_timeout")
	}
	if s.NATS != nil && s.NATS.RequestTimeout < 0 {
		return perr.WithField(perr.InvalidArgf("request_timeout must not be negative"), "nats.request_timeout")
	}
	return nil
}
