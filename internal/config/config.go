// Package config loads the array-of-tables TOML configuration that
// names which instances a host runs and how its ambient services
// (logging, storage, stats, MQTT, ASD) are configured. This package is
// deliberately thin: the ambient plumbing an instance host needs to
// come up (array-of-tables, `toml` + `override` struct tags), not a
// general-purpose config subsystem.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/rrrd/rrr/internal/tomlutil"
	"github.com/rrrd/rrr/listmap"
	"github.com/rrrd/rrr/services/diagnostic"
	"github.com/rrrd/rrr/services/stats"
	"github.com/rrrd/rrr/services/storage"
)

// InstanceConfig is one [[instance]] table: the TOML shape of the
// module name/type/start-priority contract an instance module exposes.
type InstanceConfig struct {
	Name          string                 `toml:"name" override:"name"`
	Module        string                 `toml:"module" override:"module"`
	Type          string                 `toml:"type" override:"type"`
	StartPriority int                    `toml:"start_priority" override:"start_priority"`
	Topic         string                 `toml:"topic" override:"topic"`
	Senders       []string               `toml:"senders" override:"senders"`
	Options       map[string]interface{} `toml:"options" override:"-"`
}

func (c InstanceConfig) Validate() error {
	if c.Name == "" {
		return errors.New("instance must have a name")
	}
	if c.Module == "" {
		return fmt.Errorf("instance %q must name a module", c.Name)
	}
	switch c.Type {
	case "source", "processor", "network", "deadend", "flexible":
	default:
		return fmt.Errorf("instance %q: unknown type %q", c.Name, c.Type)
	}
	return nil
}

// MQTTConfig is the [mqtt] table: the client-side connection settings
// an mqtt-backed instance inherits unless its own options override them.
type MQTTConfig struct {
	Address            string `toml:"address"`
	ClientID           string `toml:"client-id"`
	UseTLS             bool   `toml:"use-tls"`
	SSLCA              string `toml:"ssl-ca"`
	SSLCert            string `toml:"ssl-cert"`
	SSLKey             string `toml:"ssl-key"`
	InsecureSkipVerify bool   `toml:"insecure-skip-verify"`
}

// ASDConfig is the [asd] table: tuning for the acknowledged-delivery
// layer.
type ASDConfig struct {
	ResendInterval       tomlutil.Duration `toml:"resend-interval"`
	ConnectTimeout       tomlutil.Duration `toml:"connect-timeout"`
	DeliveryGraceCounter int               `toml:"delivery-grace-counter"`
	WindowThreshold      int               `toml:"window-reduction-threshold"`
	WindowReduction      int               `toml:"window-reduction-amount"`
}

// InstanceList accepts either a single [instance] table or an
// [[instance]] array in the TOML document.
type InstanceList []InstanceConfig

// UnmarshalTOML implements toml.Unmarshaler via listmap, which handles
// the single-map-or-list-of-maps shape.
func (l *InstanceList) UnmarshalTOML(src interface{}) error {
	return listmap.DoUnmarshalTOML((*[]InstanceConfig)(l), src)
}

// Config is the top-level document a host loads at startup.
type Config struct {
	Hostname string            `toml:"hostname"`
	DataDir  string            `toml:"data-dir"`
	Logging  diagnostic.Config `toml:"logging"`
	Storage  storage.Config    `toml:"storage"`
	Stats    stats.Config      `toml:"stats"`
	MQTT     MQTTConfig        `toml:"mqtt"`
	ASD      ASDConfig         `toml:"asd"`

	Instance InstanceList `toml:"instance" override:"instance,element-key=name"`
}

// NewConfig returns a Config assembled from every component's own
// defaults.
func NewConfig() *Config {
	return &Config{
		Hostname: "localhost",
		DataDir:  "./data",
		Logging:  diagnostic.NewConfig(),
		Storage:  storage.NewConfig(),
		Stats:    stats.NewConfig(),
	}
}

func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("must configure valid hostname")
	}
	if err := c.Storage.Validate(); err != nil {
		return errors.Wrap(err, "storage")
	}
	names := make(map[string]bool, len(c.Instance))
	for _, inst := range c.Instance {
		if err := inst.Validate(); err != nil {
			return errors.Wrap(err, "instance")
		}
		if names[inst.Name] {
			return fmt.Errorf("duplicate instance name %q", inst.Name)
		}
		names[inst.Name] = true
	}
	return nil
}

// Load decodes the TOML file at path into a new Config. Unrecognised
// keys are reported as an error rather than silently dropped.
func Load(path string) (*Config, error) {
	c := NewConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	md, err := toml.DecodeReader(f, c)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unrecognized config keys: %v", undecoded)
	}
	return c, c.Validate()
}
