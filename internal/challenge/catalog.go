package challenge

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknown is returned when a challenge id is not in the catalog.
var ErrUnknown = errors.New("unknown challenge")

// Config describes one challenge sandbox.
type Config struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Image       string `yaml:"image" json:"image"`
	// ExposedPorts lists the container ports to publish: ssh first, web second.
	ExposedPorts []int             `yaml:"exposed_ports" json:"exposed_ports"`
	Env          map[string]string `yaml:"env" json:"env,omitempty"`
}

// Validate checks that a challenge entry can be provisioned.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("challenge id is required")
	}
	if len(c.ExposedPorts) != 2 {
		return fmt.Errorf("challenge %s: exposed_ports must list exactly 2 ports, got %d", c.ID, len(c.ExposedPorts))
	}
	for _, p := range c.ExposedPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("challenge %s: invalid port %d", c.ID, p)
		}
	}
	return nil
}

// Builtin returns the challenges shipped with the server.
func Builtin() []Config {
	return []Config{
		{
			ID:           "sql-injection",
			Name:         "SQL Injection Challenge",
			Description:  "Learn to exploit SQL injection vulnerabilities",
			ExposedPorts: []int{2222, 8080},
			Env: map[string]string{
				"CHALLENGE_TYPE": "sql_injection",
			},
		},
	}
}

// Catalog is an immutable lookup table of challenges keyed by id.
type Catalog struct {
	entries map[string]Config
}

// NewCatalog builds a catalog from the built-in challenges plus extra.
// Extra entries replace built-ins with the same id. Entries without an
// image get defaultImage.
func NewCatalog(defaultImage string, extra []Config) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Config)}
	for _, cfg := range append(Builtin(), extra...) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if cfg.Image == "" {
			cfg.Image = defaultImage
		}
		c.entries[cfg.ID] = cfg
	}
	return c, nil
}

func (c *Catalog) Lookup(id string) (Config, error) {
	cfg, ok := c.entries[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	return cfg, nil
}

// List returns all challenges sorted by id.
func (c *Catalog) List() []Config {
	out := make([]Config, 0, len(c.entries))
	for _, cfg := range c.entries {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
