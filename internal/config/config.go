// Package config loads the two configuration surfaces the specification
// treats as external collaborators: the mandated seed directory CSV (§6)
// and an optional runtime tuning overlay (overlay.toml, a supplemental
// enrichment — spec.md is silent on tunable-parameter delivery, so this
// follows the teacher's own layered Config/DefaultConfig convention).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Tuning holds every parameter the specification names a concrete default
// for, grouped the way the teacher's Config struct groups settings into
// nested sections.
type Tuning struct {
	Gossip   GossipTuning   `toml:"gossip"`
	Liveness LivenessTuning `toml:"liveness"`
	Topology TopologyTuning `toml:"topology"`
	API      APITuning      `toml:"api"`
}

// GossipTuning controls the Gossip Engine (C4).
type GossipTuning struct {
	Interval     time.Duration `toml:"interval"`      // origination period (5s reference)
	MaxOriginated int          `toml:"max_originated"` // M, total originated messages (10 reference)
	LogCap       int           `toml:"log_cap"`        // Message Log capacity
}

// LivenessTuning controls the Liveness Detector (C5).
type LivenessTuning struct {
	PingInterval  time.Duration `toml:"ping_interval"`  // T_ping (13s reference)
	MissThreshold int           `toml:"miss_threshold"` // consecutive misses before SUSPECT (3 reference)
	DialTimeout   time.Duration `toml:"dial_timeout"`   // outbound connect timeout (~5s)
}

// TopologyTuning controls the Bootstrap & Topology Builder (C3).
type TopologyTuning struct {
	AttachmentCap int `toml:"attachment_cap"` // c, outbound neighbor cap (3 reference)
}

// APITuning controls the supplemental introspection HTTP server (§11).
type APITuning struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// Default returns the specification's literal reference defaults.
func Default() Tuning {
	return Tuning{
		Gossip: GossipTuning{
			Interval:      5 * time.Second,
			MaxOriginated: 10,
			LogCap:        2048,
		},
		Liveness: LivenessTuning{
			PingInterval:  13 * time.Second,
			MissThreshold: 3,
			DialTimeout:   5 * time.Second,
		},
		Topology: TopologyTuning{
			AttachmentCap: 3,
		},
		API: APITuning{
			Host:           "127.0.0.1",
			Port:           0, // 0 disables the introspection server
			MetricsEnabled: true,
		},
	}
}

// Load reads overlay.toml at path, overlaying values on top of Default.
// A missing file is not an error — it simply means "use the defaults",
// matching spec.md's posture that tuning is implementation choice.
func Load(path string) (Tuning, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Tuning{}, err
	}
	return cfg, nil
}
