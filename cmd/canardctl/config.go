package main

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/canardgo/canard"
)

// fileConfig is the subset of canard.Config this CLI loads from an .ini
// file, mirroring the teacher's pkg/od/parser.go reading EDS sections with
// gopkg.in/ini.v1 rather than a bespoke config format.
type fileConfig struct {
	Interface        string
	Channel          string
	NodeID           uint8
	PoolCapacity     int
	TransferTimeout  time.Duration
	IfaceSwitchDelay time.Duration
	CANFD            bool
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Interface:        "virtual",
		Channel:          "localhost:18000",
		NodeID:           32,
		PoolCapacity:     256,
		TransferTimeout:  canard.DefaultTransferTimeout,
		IfaceSwitchDelay: canard.DefaultIfaceSwitchDelay,
	}
}

// loadFileConfig reads an .ini file shaped like:
//
//	[bus]
//	interface = virtual
//	channel   = localhost:18000
//
//	[node]
//	id            = 32
//	pool_capacity = 256
//	canfd         = false
func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()

	iniFile, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}

	bus := iniFile.Section("bus")
	if bus.HasKey("interface") {
		cfg.Interface = bus.Key("interface").String()
	}
	if bus.HasKey("channel") {
		cfg.Channel = bus.Key("channel").String()
	}

	node := iniFile.Section("node")
	if node.HasKey("id") {
		id, err := node.Key("id").Int()
		if err != nil {
			return cfg, err
		}
		cfg.NodeID = uint8(id)
	}
	if node.HasKey("pool_capacity") {
		capacity, err := node.Key("pool_capacity").Int()
		if err != nil {
			return cfg, err
		}
		cfg.PoolCapacity = capacity
	}
	if node.HasKey("canfd") {
		cfg.CANFD = node.Key("canfd").MustBool(false)
	}
	if node.HasKey("transfer_timeout_ms") {
		ms, err := node.Key("transfer_timeout_ms").Int()
		if err != nil {
			return cfg, err
		}
		cfg.TransferTimeout = time.Duration(ms) * time.Millisecond
	}
	if node.HasKey("iface_switch_delay_ms") {
		ms, err := node.Key("iface_switch_delay_ms").Int()
		if err != nil {
			return cfg, err
		}
		cfg.IfaceSwitchDelay = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}
