package dthrottle

import (
	"encoding/json"
	"errors"
	"io"
)

// durationSeconds marshals a time.Duration as a plain number of seconds,
// matching the units throttleapp.cpp's own @config comments use
// ("DThrottle.interval (double)... in seconds").
type durationSeconds float64

type configSnapshot struct {
	Burst           int
	Rate            float64
	Whitelist       []string
	Rules           []RuleConfig
	NeverThrottle   bool
	RadioSilence    bool
	Interval        durationSeconds
	Port            int
	SocketPath      string
	AdminListenAddr string
	Debug           bool
}

func newConfigSnapshot(cfg *Config) configSnapshot {
	if cfg == nil {
		return configSnapshot{}
	}
	return configSnapshot{
		Burst:           cfg.Burst,
		Rate:            cfg.Rate,
		Whitelist:       cfg.Whitelist,
		Rules:           cfg.Rules,
		NeverThrottle:   cfg.NeverThrottle,
		RadioSilence:    cfg.RadioSilence,
		Interval:        durationSeconds(cfg.Interval.Seconds()),
		Port:            cfg.Port,
		SocketPath:      cfg.SocketPath,
		AdminListenAddr: cfg.AdminListenAddr,
		Debug:           cfg.Debug,
	}
}

// PrintConfig writes cfg to w as indented JSON, for the -print_config
// startup flag (spec.md's supplemented features: see SPEC_FULL.md).
//
// Grounded on cli_print.go's PrintConfig, same shape.
func PrintConfig(w io.Writer, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if w == nil {
		return errors.New("writer is required")
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newConfigSnapshot(cfg))
}
