/*
Package config implements a parser for BNG Blaster-Go configuration
represented in the TOML format: https://github.com/toml-lang/toml.

Interfaces, session defaults, L2TP LNS parameters, IS-IS instances and
traffic profiles are each called out in the configuration file using
named TOML tables, parsed by hand into typed config structs the way the
teacher's config package parses tunnel/session tables into
*l2tp.TunnelConfig/*l2tp.SessionConfig: walk the tree's ToMap() output,
dispatch each key to a typed accessor (toString, toUint16, toDuration,
…), and error on anything unrecognised.

	[interface.access1]
	role = "access"
	outer_vlan_min = 1
	outer_vlan_max = 4000
	isis_instance = 1

	[sessions]
	count = 1000
	pppoe_share = 0.5
	rate_per_second = 50

	[l2tp]
	host_name = "lns1"
	hello_interval = 60000   # milliseconds
	retry_interval = 1000    # milliseconds
	max_retries = 7
	window_size = 4

	[isis.1]
	system_id = [1, 2, 3, 4, 5, 6]
	area = [[0x49, 0x00, 0x01]]
	hostname = "bng-blaster"

	[traffic.v4-up]
	family = "ipv4"
	direction = "up"
	pps = 10
*/
package config

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/domthera/bngblaster/internal/isis"
)

// Config is the parsed form of one TOML configuration file.
type Config struct {
	// Map is the entire tree as parsed from the TOML representation,
	// retained so callers can reach into tables this package doesn't
	// itself interpret.
	Map map[string]interface{}

	Interfaces     []NamedInterface
	Sessions       SessionsConfig
	L2TP           L2TPConfig
	ISISInstances  []NamedISISInstance
	Traffic        []NamedFlow
	ControlSocket  string
}

// InterfaceRole distinguishes the three roles an interface can play
// (spec.md §4.2/§OVERVIEW: access towards subscribers, network towards
// the core, a10nsp towards an aggregation node).
type InterfaceRole string

const (
	RoleAccess  InterfaceRole = "access"
	RoleNetwork InterfaceRole = "network"
	RoleA10NSP  InterfaceRole = "a10nsp"
)

// InterfaceConfig is one [interface.<name>] table.
type InterfaceConfig struct {
	Role          InterfaceRole
	OuterVLANMin  uint16
	OuterVLANMax  uint16
	InnerVLANMin  uint16
	InnerVLANMax  uint16
	ISISInstance  uint32 // 0 means "not attached to an IS-IS instance"
}

// NamedInterface pairs an interface's config with its TOML table name,
// used as the interface's name when the port is opened.
type NamedInterface struct {
	Name   string
	Config InterfaceConfig
}

// SessionsConfig is the [sessions] table: how many subscriber sessions
// to bring up, the PPPoE/IPoE mix, and the setup rate (spec.md §3
// "session scaling").
type SessionsConfig struct {
	Count         int
	PPPoEShare    float64 // 0..1, remainder is IPoE
	RatePerSecond float64
	Username      string
	Password      string
}

// L2TPConfig is the [l2tp] table, defaults for every LNS tunnel this
// emulator terminates (spec.md §4.4).
type L2TPConfig struct {
	HostName      string
	HelloInterval time.Duration
	RetryInterval time.Duration
	MaxRetries    uint
	WindowSize    uint16
}

// NamedISISInstance pairs an isis.Config with the instance id it's
// registered under in internal/core.Context.
type NamedISISInstance struct {
	ID     uint32
	Config isis.Config
}

// NamedFlow is one [traffic] entry. Its Family/Direction fields name
// internal/traffic's AddressFamily/Direction values as plain
// config-time strings; cmd/bngblaster does not turn these entries into
// traffic flows.
type NamedFlow struct {
	Name      string
	Family    string // "ipv4", "ipv6", "ipv6pd"
	Direction string // "up", "down"
	PPS       float64
}

func toBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("supplied value could not be parsed as a bool")
}

func toFloat(v interface{}) (float64, error) {
	if f, ok := v.(float64); ok {
		return f, nil
	}
	if i, ok := v.(int64); ok {
		return float64(i), nil
	}
	if u, ok := v.(uint64); ok {
		return float64(u), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

// go-toml's ToMap function represents numbers as either uint64 or
// int64, so converting always needs to check which one it picked and
// range check the result fits the destination width.
func toByte(v interface{}) (byte, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return byte(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return byte(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toUint16(v interface{}) (uint16, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toUint32(v interface{}) (uint32, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xffffffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint32(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xffffffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint32(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("supplied value could not be parsed as a string")
}

func toDurationMs(v interface{}) (time.Duration, error) {
	u, err := toUint32(v)
	return time.Duration(u) * time.Millisecond, err
}

func toBytes(v interface{}) ([]byte, error) {
	numbers, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array value")
	}
	out := make([]byte, 0, len(numbers))
	for _, number := range numbers {
		b, err := toByte(number)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func toByteArrays(v interface{}) ([][]byte, error) {
	rows, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array of arrays")
	}
	out := make([][]byte, 0, len(rows))
	for _, row := range rows {
		b, err := toBytes(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func toInterfaceRole(v interface{}) (InterfaceRole, error) {
	s, err := toString(v)
	if err != nil {
		return "", err
	}
	switch InterfaceRole(s) {
	case RoleAccess, RoleNetwork, RoleA10NSP:
		return InterfaceRole(s), nil
	}
	return "", fmt.Errorf("expect 'access', 'network' or 'a10nsp'")
}

func newInterfaceConfig(name string, icfg map[string]interface{}) (*NamedInterface, error) {
	ni := &NamedInterface{Name: name}
	for k, v := range icfg {
		var err error
		switch k {
		case "role":
			ni.Config.Role, err = toInterfaceRole(v)
		case "outer_vlan_min":
			ni.Config.OuterVLANMin, err = toUint16(v)
		case "outer_vlan_max":
			ni.Config.OuterVLANMax, err = toUint16(v)
		case "inner_vlan_min":
			ni.Config.InnerVLANMin, err = toUint16(v)
		case "inner_vlan_max":
			ni.Config.InnerVLANMax, err = toUint16(v)
		case "isis_instance":
			ni.Config.ISISInstance, err = toUint32(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return ni, nil
}

func (cfg *Config) loadInterfaces() error {
	got, ok := cfg.Map["interface"]
	if !ok {
		return nil
	}
	ifaces, ok := got.(map[string]interface{})
	if !ok {
		return fmt.Errorf("interface instances must be named, e.g. '[interface.access1]'")
	}
	for name, v := range ifaces {
		imap, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("interface instances must be named, e.g. '[interface.access1]'")
		}
		ni, err := newInterfaceConfig(name, imap)
		if err != nil {
			return fmt.Errorf("interface %v: %v", name, err)
		}
		cfg.Interfaces = append(cfg.Interfaces, *ni)
	}
	return nil
}

func (cfg *Config) loadSessions() error {
	got, ok := cfg.Map["sessions"]
	if !ok {
		cfg.Sessions = SessionsConfig{PPPoEShare: 1.0}
		return nil
	}
	smap, ok := got.(map[string]interface{})
	if !ok {
		return fmt.Errorf("'sessions' must be a table")
	}
	sc := SessionsConfig{PPPoEShare: 1.0}
	for k, v := range smap {
		var err error
		switch k {
		case "count":
			var u uint32
			u, err = toUint32(v)
			sc.Count = int(u)
		case "pppoe_share":
			sc.PPPoEShare, err = toFloat(v)
		case "rate_per_second":
			sc.RatePerSecond, err = toFloat(v)
		case "username":
			sc.Username, err = toString(v)
		case "password":
			sc.Password, err = toString(v)
		default:
			return fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if err != nil {
			return fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	cfg.Sessions = sc
	return nil
}

func (cfg *Config) loadL2TP() error {
	lc := L2TPConfig{
		HostName:      "bngblaster",
		HelloInterval: 60 * time.Second,
		RetryInterval: time.Second,
		MaxRetries:    7,
		WindowSize:    4,
	}
	got, ok := cfg.Map["l2tp"]
	if ok {
		lmap, ok := got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("'l2tp' must be a table")
		}
		for k, v := range lmap {
			var err error
			switch k {
			case "host_name":
				lc.HostName, err = toString(v)
			case "hello_interval":
				lc.HelloInterval, err = toDurationMs(v)
			case "retry_interval":
				lc.RetryInterval, err = toDurationMs(v)
			case "max_retries":
				var u uint16
				u, err = toUint16(v)
				lc.MaxRetries = uint(u)
			case "window_size":
				lc.WindowSize, err = toUint16(v)
			default:
				return fmt.Errorf("unrecognised parameter '%v'", k)
			}
			if err != nil {
				return fmt.Errorf("failed to process %v: %v", k, err)
			}
		}
	}
	cfg.L2TP = lc
	return nil
}

func newISISInstanceConfig(idKey string, icfg map[string]interface{}) (*NamedISISInstance, error) {
	var instanceID uint32
	if _, err := fmt.Sscanf(idKey, "%d", &instanceID); err != nil {
		return nil, fmt.Errorf("isis instance name %q must be numeric", idKey)
	}
	ic := isis.Config{
		LSPLifetime:        20 * time.Minute,
		LSPRefreshInterval: 15 * time.Minute,
		LSPRetryInterval:   5 * time.Second,
	}
	for k, v := range icfg {
		var verr error
		switch k {
		case "system_id":
			b, err := toBytes(v)
			if err != nil {
				verr = err
				break
			}
			if len(b) != 6 {
				verr = fmt.Errorf("system_id must be 6 bytes")
				break
			}
			copy(ic.SystemID[:], b)
		case "area":
			ic.AreaAddresses, verr = toByteArrays(v)
		case "hostname":
			ic.Hostname, verr = toString(v)
		case "router_id":
			ic.RouterID, verr = toUint32(v)
		case "protocol_ipv4":
			ic.ProtocolIPv4, verr = toBool(v)
		case "protocol_ipv6":
			ic.ProtocolIPv6, verr = toBool(v)
		case "sr_base":
			ic.SRBase, verr = toUint32(v)
		case "sr_range":
			ic.SRRange, verr = toUint32(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if verr != nil {
			return nil, fmt.Errorf("failed to process %v: %v", k, verr)
		}
	}
	return &NamedISISInstance{ID: instanceID, Config: ic}, nil
}

func (cfg *Config) loadISIS() error {
	got, ok := cfg.Map["isis"]
	if !ok {
		return nil
	}
	instances, ok := got.(map[string]interface{})
	if !ok {
		return fmt.Errorf("isis instances must be named, e.g. '[isis.1]'")
	}
	for name, v := range instances {
		imap, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("isis instances must be named, e.g. '[isis.1]'")
		}
		nic, err := newISISInstanceConfig(name, imap)
		if err != nil {
			return fmt.Errorf("isis instance %v: %v", name, err)
		}
		cfg.ISISInstances = append(cfg.ISISInstances, *nic)
	}
	return nil
}

func newFlowConfig(name string, fcfg map[string]interface{}) (*NamedFlow, error) {
	nf := &NamedFlow{Name: name, Family: "ipv4", Direction: "up", PPS: 1}
	for k, v := range fcfg {
		var err error
		switch k {
		case "family":
			nf.Family, err = toString(v)
		case "direction":
			nf.Direction, err = toString(v)
		case "pps":
			nf.PPS, err = toFloat(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return nf, nil
}

func (cfg *Config) loadTraffic() error {
	got, ok := cfg.Map["traffic"]
	if !ok {
		return nil
	}
	flows, ok := got.(map[string]interface{})
	if !ok {
		return fmt.Errorf("traffic profiles must be named, e.g. '[traffic.v4-up]'")
	}
	for name, v := range flows {
		fmap, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("traffic profiles must be named, e.g. '[traffic.v4-up]'")
		}
		nf, err := newFlowConfig(name, fmap)
		if err != nil {
			return fmt.Errorf("traffic profile %v: %v", name, err)
		}
		cfg.Traffic = append(cfg.Traffic, *nf)
	}
	return nil
}

func newConfig(tree *toml.Tree) (*Config, error) {
	cfg := &Config{Map: tree.ToMap(), ControlSocket: "/var/run/bngblaster.sock"}
	if err := cfg.loadInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to parse interfaces: %v", err)
	}
	if err := cfg.loadSessions(); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %v", err)
	}
	if err := cfg.loadL2TP(); err != nil {
		return nil, fmt.Errorf("failed to parse l2tp: %v", err)
	}
	if err := cfg.loadISIS(); err != nil {
		return nil, fmt.Errorf("failed to parse isis: %v", err)
	}
	if err := cfg.loadTraffic(); err != nil {
		return nil, fmt.Errorf("failed to parse traffic: %v", err)
	}
	if got, ok := cfg.Map["control_socket"]; ok {
		s, err := toString(got)
		if err != nil {
			return nil, fmt.Errorf("failed to parse control_socket: %v", err)
		}
		cfg.ControlSocket = s
	}
	return cfg, nil
}

// LoadFile loads configuration from the specified file.
func LoadFile(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}
	return newConfig(tree)
}

// LoadString loads configuration from the specified string.
func LoadString(content string) (*Config, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load config string: %v", err)
	}
	return newConfig(tree)
}
