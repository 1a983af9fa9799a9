package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestParseMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Listen) != 1 || cfg.Listen[0].Type != "websocket" || cfg.Listen[0].Port != 13900 {
		t.Errorf("default listener: got %+v", cfg.Listen)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("default storage driver: got %q, want file", cfg.Storage.Driver)
	}
	if cfg.Storage.Root != "./storage" {
		t.Errorf("default storage root: got %q", cfg.Storage.Root)
	}
	if cfg.Storage.Throttle.Duration.String() != "100ms" {
		t.Errorf("default throttle: got %v", cfg.Storage.Throttle.Duration)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging: got %+v", cfg.Logging)
	}
}

func TestDurationAcceptsStringAndSeconds(t *testing.T) {
	cfg, err := Parse([]byte(`{"storage":{"throttle":"250ms"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Throttle.Duration.String() != "250ms" {
		t.Errorf("got %v", cfg.Storage.Throttle.Duration)
	}

	cfg2, err := Parse([]byte(`{"storage":{"throttle":2}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg2.Storage.Throttle.Duration.Seconds() != 2 {
		t.Errorf("got %v", cfg2.Storage.Throttle.Duration)
	}
}

func TestNodesAsArrayBecomeExchanges(t *testing.T) {
	cfg, err := Parse([]byte(`{"nodes":["default","logs"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Nodes) != 2 || cfg.Nodes["default"].Type != "Exchange" || cfg.Nodes["logs"].Type != "Exchange" {
		t.Errorf("got %+v", cfg.Nodes)
	}
}

func TestNodesAsObjectRespectsType(t *testing.T) {
	cfg, err := Parse([]byte(`{"nodes":{"q":{"type":"Queue","options":{"capacity":5}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	spec, ok := cfg.Nodes["q"]
	if !ok || spec.Type != "Queue" {
		t.Fatalf("got %+v", cfg.Nodes)
	}
	if spec.Options["capacity"].(float64) != 5 {
		t.Errorf("got options %+v", spec.Options)
	}
}

func TestNodeTypeAliasesResolveToTopicStore(t *testing.T) {
	cfg, err := Parse([]byte(`{"nodes":{"t":{"type":"TopicQueue"},"u":{"type":"TopicState"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Nodes["t"].Type != "TopicStore" || cfg.Nodes["u"].Type != "TopicStore" {
		t.Errorf("got %+v", cfg.Nodes)
	}
}

func TestUnknownNodeTypeRejected(t *testing.T) {
	_, err := Parse([]byte(`{"nodes":{"x":{"type":"Bogus"}}}`))
	if err == nil {
		t.Fatal("expected error for unknown node type")
	}
}

func TestRightsSpecAcceptsBareBoolOrObject(t *testing.T) {
	cfg, err := Parse([]byte(`{"rights":{"alice":true,"bob":{"publish":false,"subscribe":{"nodeA":false}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	alice := cfg.Rights["alice"]
	if alice.Allow == nil || !*alice.Allow {
		t.Errorf("expected alice to be bare-allow, got %+v", alice)
	}
	bob := cfg.Rights["bob"]
	if bob.Publish == nil || bob.Publish.Allow == nil || *bob.Publish.Allow {
		t.Errorf("expected bob.publish = false, got %+v", bob.Publish)
	}
	if bob.Subscribe == nil || bob.Subscribe.ByNode == nil {
		t.Errorf("expected bob.subscribe to be a per-node map, got %+v", bob.Subscribe)
	}
}

func TestUnknownStorageDriverRejected(t *testing.T) {
	_, err := Parse([]byte(`{"storage":{"driver":"mongo"}}`))
	if err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestUsersAcceptsInlineObject(t *testing.T) {
	cfg, err := Parse([]byte(`{"users":{"alice":"pw"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Users["alice"] != "pw" {
		t.Errorf("got %+v", cfg.Users)
	}
}

func TestUsersAcceptsPathToJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	data, err := json.Marshal(map[string]string{"bob": "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	pathJSON, err := json.Marshal(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Parse([]byte(`{"users":` + string(pathJSON) + `}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Users["bob"] != "secret" {
		t.Errorf("got %+v", cfg.Users)
	}
}

func TestPortAliasBecomesWebsocketListener(t *testing.T) {
	cfg, err := Parse([]byte(`{"port":9000}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Listen) != 1 || cfg.Listen[0].Port != 9000 {
		t.Errorf("got %+v", cfg.Listen)
	}
}
