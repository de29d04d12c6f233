// Package config loads the queueio project configuration that
// cmd/queueio reads at startup: which Broker implementation to use and
// (documentation-only) which routine packages a deployment expects to
// be registered. Configuration lives in a small `queueio.yaml` at the
// project root, with the QUEUEIO_BROKER environment variable taking
// precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/queueio/pkg/broker"
	"github.com/cuemby/queueio/pkg/result"
)

// EnvBroker is the environment variable that takes precedence over the
// project config file's broker: key.
const EnvBroker = "QUEUEIO_BROKER"

// fileName is the project config file queueio looks for, walking up
// from the working directory toward the filesystem root.
const fileName = "queueio.yaml"

// Config is the decoded project configuration.
type Config struct {
	// Broker is a scheme URI: "memory:" or "bolt:<path>".
	Broker string `yaml:"broker"`
	// Register is documentation-only: the registry is a plain
	// name->callable table populated by each routine package's own
	// init(), not reflectively loaded from this list.
	Register []string `yaml:"register"`
}

// Load resolves the effective Config: EnvBroker overrides the `broker:`
// key of whichever queueio.yaml is found by walking up from the
// current directory; a missing file is not an error, it just leaves
// Broker at its "memory:" default.
func Load() (Config, error) {
	cfg := Config{Broker: "memory:"}

	path, err := findProjectFile()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, result.Errorf(result.KindConfiguration, fmt.Sprintf("config: reading %s", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, result.Errorf(result.KindConfiguration, fmt.Sprintf("config: parsing %s", path), err)
		}
	}

	if env, ok := os.LookupEnv(EnvBroker); ok && env != "" {
		cfg.Broker = env
	}
	return cfg, nil
}

func findProjectFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", result.Errorf(result.KindConfiguration, "config: resolving working directory", err)
	}
	for {
		candidate := filepath.Join(dir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// NewBroker constructs the Broker named by cfg.Broker: "memory:" for an
// in-process broker.Memory, or "bolt:<path>" for a durable broker.Bolt
// rooted at path.
func (cfg Config) NewBroker() (broker.Broker, error) {
	uri := cfg.Broker
	if uri == "" {
		uri = "memory:"
	}
	scheme, rest, _ := strings.Cut(uri, ":")
	switch scheme {
	case "memory", "":
		return broker.NewMemory(), nil
	case "bolt":
		if rest == "" {
			return nil, result.Errorf(result.KindConfiguration, fmt.Sprintf("config: bolt broker requires a path, got %q", uri), nil)
		}
		return broker.NewBolt(rest)
	default:
		return nil, result.Errorf(result.KindConfiguration, fmt.Sprintf("config: unknown broker scheme %q", scheme), nil)
	}
}
