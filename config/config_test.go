package config

import (
	"testing"
	"time"
)

func TestLoadStringInterfaces(t *testing.T) {
	cfg, err := LoadString(`
		[interface.access1]
		role = "access"
		outer_vlan_min = 1
		outer_vlan_max = 4000
		isis_instance = 1

		[interface.network1]
		role = "network"
		`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if len(cfg.Interfaces) != 2 {
		t.Fatalf("len(Interfaces) = %d, want 2", len(cfg.Interfaces))
	}
	byName := map[string]InterfaceConfig{}
	for _, ni := range cfg.Interfaces {
		byName[ni.Name] = ni.Config
	}
	access, ok := byName["access1"]
	if !ok || access.Role != RoleAccess || access.OuterVLANMin != 1 || access.OuterVLANMax != 4000 || access.ISISInstance != 1 {
		t.Fatalf("access1 = %+v", access)
	}
	network, ok := byName["network1"]
	if !ok || network.Role != RoleNetwork {
		t.Fatalf("network1 = %+v", network)
	}
}

func TestLoadStringSessionsDefaults(t *testing.T) {
	cfg, err := LoadString(`[l2tp]
		host_name = "lns1"`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if cfg.Sessions.PPPoEShare != 1.0 {
		t.Fatalf("default PPPoEShare = %v, want 1.0", cfg.Sessions.PPPoEShare)
	}
	if cfg.L2TP.HostName != "lns1" {
		t.Fatalf("HostName = %q, want lns1", cfg.L2TP.HostName)
	}
	if cfg.L2TP.HelloInterval != 60*time.Second {
		t.Fatalf("default HelloInterval = %v, want 60s", cfg.L2TP.HelloInterval)
	}
}

func TestLoadStringSessionsTable(t *testing.T) {
	cfg, err := LoadString(`
		[sessions]
		count = 1000
		pppoe_share = 0.5
		rate_per_second = 50
		username = "test"
		password = "test"
		`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	want := SessionsConfig{Count: 1000, PPPoEShare: 0.5, RatePerSecond: 50, Username: "test", Password: "test"}
	if cfg.Sessions != want {
		t.Fatalf("Sessions = %+v, want %+v", cfg.Sessions, want)
	}
}

func TestLoadStringL2TPTable(t *testing.T) {
	cfg, err := LoadString(`
		[l2tp]
		host_name = "lns1"
		hello_interval = 5000
		retry_interval = 250
		max_retries = 3
		window_size = 8
		`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	want := L2TPConfig{
		HostName:      "lns1",
		HelloInterval: 5 * time.Second,
		RetryInterval: 250 * time.Millisecond,
		MaxRetries:    3,
		WindowSize:    8,
	}
	if cfg.L2TP != want {
		t.Fatalf("L2TP = %+v, want %+v", cfg.L2TP, want)
	}
}

func TestLoadStringISISInstance(t *testing.T) {
	cfg, err := LoadString(`
		[isis.1]
		system_id = [1, 2, 3, 4, 5, 6]
		area = [[0x49, 0x00, 0x01]]
		hostname = "bng-blaster"
		protocol_ipv4 = true
		`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if len(cfg.ISISInstances) != 1 {
		t.Fatalf("len(ISISInstances) = %d, want 1", len(cfg.ISISInstances))
	}
	inst := cfg.ISISInstances[0]
	if inst.ID != 1 {
		t.Fatalf("ID = %d, want 1", inst.ID)
	}
	if inst.Config.Hostname != "bng-blaster" || !inst.Config.ProtocolIPv4 {
		t.Fatalf("Config = %+v", inst.Config)
	}
	if inst.Config.SystemID != [6]byte{1, 2, 3, 4, 5, 6} {
		t.Fatalf("SystemID = %v", inst.Config.SystemID)
	}
}

func TestLoadStringTrafficProfiles(t *testing.T) {
	cfg, err := LoadString(`
		[traffic.v4-up]
		family = "ipv4"
		direction = "up"
		pps = 10
		`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if len(cfg.Traffic) != 1 {
		t.Fatalf("len(Traffic) = %d, want 1", len(cfg.Traffic))
	}
	f := cfg.Traffic[0]
	if f.Name != "v4-up" || f.Family != "ipv4" || f.Direction != "up" || f.PPS != 10 {
		t.Fatalf("flow = %+v", f)
	}
}

func TestLoadStringUnrecognisedParameterErrors(t *testing.T) {
	_, err := LoadString(`
		[sessions]
		bogus = 1
		`)
	if err == nil {
		t.Fatalf("expected error for unrecognised parameter")
	}
}

func TestLoadStringDefaultControlSocket(t *testing.T) {
	cfg, err := LoadString(`[sessions]
		count = 1`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if cfg.ControlSocket != "/var/run/bngblaster.sock" {
		t.Fatalf("ControlSocket = %q", cfg.ControlSocket)
	}
}
