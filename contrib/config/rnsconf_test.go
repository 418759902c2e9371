package main

import (
	"testing"

	"github.com/yggdrasil-network/rnsmesh/src/config"
)

func TestApply(t *testing.T) {
	cfg := config.GenerateConfig()
	steps := []struct {
		cmd, arg, value string
	}{
		{"setAdminListen", "tcp://127.0.0.1:9001", ""},
		{"setTransport", "true", ""},
		{"addTCPClient", "10.0.0.1:4242", ""},
		{"addTCPClient", "10.0.0.1:4242", ""},
		{"setInterfaceEnabled", "Default TCP server", "true"},
		{"removeInterface", "Default TCP server", ""},
	}
	for _, s := range steps {
		if err := apply(cfg, s.cmd, s.arg, s.value); err != nil {
			t.Fatalf("%s: %v", s.cmd, err)
		}
	}
	if cfg.AdminListen != "tcp://127.0.0.1:9001" || !cfg.EnableTransport {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Interfaces) != 1 || cfg.Interfaces[0]["TargetHost"] != "10.0.0.1" || cfg.Interfaces[0]["TargetPort"] != 4242 {
		t.Fatalf("unexpected interfaces %v", cfg.Interfaces)
	}

	for _, bad := range []struct{ cmd, arg string }{
		{"setBackend", "tape"},
		{"addTCPClient", "nowhere"},
		{"setInterfaceEnabled", "missing"},
		{"frobnicate", ""},
	} {
		if err := apply(cfg, bad.cmd, bad.arg, ""); err == nil {
			t.Fatalf("%s %s accepted", bad.cmd, bad.arg)
		}
	}
}
