// Package config loads and validates the broker's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration is a JSON-friendly time.Duration: it unmarshals from either a
// duration string ("100ms") or a bare number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ListenSpec describes one listener the broker should open.
type ListenSpec struct {
	Type    string `json:"type"` // "websocket" or "tcp"
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	Backlog int    `json:"backlog,omitempty"`
	Key     string `json:"key,omitempty"`
	Cert    string `json:"cert,omitempty"`
	CA      string `json:"ca,omitempty"`
}

// NodeSpec describes one configured node.
type NodeSpec struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// BindingSpec wires a Source to a Destination at startup.
type BindingSpec struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Pattern any    `json:"pattern,omitempty"`
}

// RightsSpec is the per-user rights entry described in §4.5. It unmarshals
// from a bare bool, or an object with publish/subscribe keys.
type RightsSpec struct {
	Allow     *bool         `json:"-"`
	Publish   *PermSpec     `json:"publish,omitempty"`
	Subscribe *PermSpec     `json:"subscribe,omitempty"`
}

// PermSpec is either a bare bool or a mapping from node name to a pattern
// spec (bool/string/[]string).
type PermSpec struct {
	Allow *bool          `json:"-"`
	ByNode map[string]any `json:"-"`
}

func (p *PermSpec) UnmarshalJSON(b []byte) error {
	var asBool bool
	if err := json.Unmarshal(b, &asBool); err == nil {
		p.Allow = &asBool
		return nil
	}
	var asMap map[string]any
	if err := json.Unmarshal(b, &asMap); err != nil {
		return fmt.Errorf("rights: invalid permission spec: %w", err)
	}
	for k, v := range asMap {
		asMap[k] = normalizePatternSpec(v)
	}
	p.ByNode = asMap
	return nil
}

// normalizePatternSpec converts the generic any produced by decoding a JSON
// value (bool, string, or array) into the shapes match.Compile accepts:
// bool, string, or []string.
func normalizePatternSpec(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *RightsSpec) UnmarshalJSON(b []byte) error {
	var asBool bool
	if err := json.Unmarshal(b, &asBool); err == nil {
		r.Allow = &asBool
		return nil
	}
	type alias RightsSpec
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("rights: invalid rights spec: %w", err)
	}
	r.Publish = a.Publish
	r.Subscribe = a.Subscribe
	return nil
}

// StorageConfig selects and configures the persisted-state backend.
type StorageConfig struct {
	Driver   string   `json:"driver,omitempty"` // "file" (default), "sqlite", "postgres"
	Root     string   `json:"root,omitempty"`   // file backend root dir; default "./storage"
	DSN      string   `json:"dsn,omitempty"`    // sqlite/postgres connection string
	Throttle Duration `json:"throttle,omitempty"`
}

// LoggingConfig selects slog's level and output format.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug|info|warn|error
	Format string `json:"format,omitempty"` // json|text
}

// Config is the top-level broker configuration.
type Config struct {
	Listen   []ListenSpec          `json:"listen,omitempty"`
	Port     int                   `json:"port,omitempty"` // alias for a single websocket listener
	Nodes    map[string]NodeSpec   `json:"-"`
	NodesRaw json.RawMessage       `json:"nodes,omitempty"`
	Bindings []BindingSpec         `json:"bindings,omitempty"`
	Users    map[string]string     `json:"-"`
	UsersRaw json.RawMessage       `json:"users,omitempty"`
	Rights   map[string]RightsSpec `json:"rights,omitempty"`
	Storage  StorageConfig         `json:"storage,omitempty"`
	Logging  LoggingConfig         `json:"logging,omitempty"`
}

// Load reads, parses, validates, and defaults a config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses, validates, and defaults config JSON already in memory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.parseNodes(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.parseUsers(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// parseNodes decodes the `nodes` key, which may be either an array of bare
// names (each becomes an Exchange) or an object mapping name to spec.
func (c *Config) parseNodes() error {
	c.Nodes = make(map[string]NodeSpec)
	if len(c.NodesRaw) == 0 {
		return nil
	}
	var asArray []string
	if err := json.Unmarshal(c.NodesRaw, &asArray); err == nil {
		for _, name := range asArray {
			if _, dup := c.Nodes[name]; dup {
				return fmt.Errorf("nodes: duplicate node name %q", name)
			}
			c.Nodes[name] = NodeSpec{Type: "Exchange"}
		}
		return nil
	}
	var asObject map[string]NodeSpec
	if err := json.Unmarshal(c.NodesRaw, &asObject); err != nil {
		return fmt.Errorf("nodes: expected array of names or object of specs: %w", err)
	}
	for name, spec := range asObject {
		if spec.Type == "" {
			spec.Type = "Exchange"
		}
		c.Nodes[name] = canonicalizeNodeType(spec)
	}
	return nil
}

// parseUsers decodes the `users` key, which may be either an inline object
// mapping username to password, or a JSON string naming a file holding that
// same object.
func (c *Config) parseUsers() error {
	if len(c.UsersRaw) == 0 {
		return nil
	}
	c.Users = make(map[string]string)
	var path string
	if err := json.Unmarshal(c.UsersRaw, &path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("users: read %q: %w", path, err)
		}
		if err := json.Unmarshal(data, &c.Users); err != nil {
			return fmt.Errorf("users: parse %q: %w", path, err)
		}
		return nil
	}
	if err := json.Unmarshal(c.UsersRaw, &c.Users); err != nil {
		return fmt.Errorf("users: expected path string or inline object: %w", err)
	}
	return nil
}

// canonicalizeNodeType resolves the backward-compatible TopicQueue/TopicState
// aliases to TopicStore.
func canonicalizeNodeType(spec NodeSpec) NodeSpec {
	switch spec.Type {
	case "TopicQueue", "TopicState":
		spec.Type = "TopicStore"
	}
	return spec
}

func (c *Config) validate() error {
	for name, spec := range c.Nodes {
		switch spec.Type {
		case "Exchange", "Queue", "HeaderStore", "TopicStore", "ConsoleDestination", "PingResponder", "TestSource":
		default:
			return fmt.Errorf("node %q: unknown type %q", name, spec.Type)
		}
	}
	switch c.Storage.Driver {
	case "", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Listen) == 0 {
		port := c.Port
		if port == 0 {
			port = 13900
		}
		c.Listen = []ListenSpec{{Type: "websocket", Port: port}}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "./storage"
	}
	if c.Storage.Throttle.Duration == 0 {
		c.Storage.Throttle.Duration = 100 * time.Millisecond
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
