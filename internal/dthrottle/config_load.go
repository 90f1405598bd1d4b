package dthrottle

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadOptions controls configuration loading.
type LoadOptions struct {
	ConfigPath string
	Args       []string
	Environ    []string
}

// LoadConfig loads configuration by layering, in increasing precedence:
// built-in defaults, an optional JSON config file, environment
// variables, and command-line flags.
//
// Grounded on config_load.go's LoadConfig, same four-layer shape.
func LoadConfig(opts LoadOptions) (*Config, error) {
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	flags, err := parseFlagOverrides(args)
	if err != nil {
		return nil, err
	}

	configPath := opts.ConfigPath
	if flags.ConfigPath != nil {
		configPath = *flags.ConfigPath
	}

	cfg := defaultConfig()
	if configPath != "" {
		fileOverrides, err := loadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		applyConfigOverrides(cfg, fileOverrides)
	}
	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationValue decodes a JSON config file duration as a number of
// seconds (matching throttleapp.cpp's "DThrottle.interval (double)", in
// seconds) or as a Go duration string ("5s"), whichever is present.
type durationValue struct {
	Value time.Duration
	Set   bool
}

func (d *durationValue) UnmarshalJSON(data []byte) error {
	if d == nil || string(data) == "null" {
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		d.Value = time.Duration(seconds * float64(time.Second))
		d.Set = true
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return err
		}
		d.Value = parsed
		d.Set = true
		return nil
	}
	return errors.New("invalid duration value")
}

type ruleConfigInput struct {
	Prefix string  `json:"prefix"`
	Burst  int     `json:"burst"`
	Rate   float64 `json:"rate"`
}

type configOverrides struct {
	Burst           *int              `json:"burst"`
	Rate            *float64          `json:"rate"`
	Whitelist       []string          `json:"whitelist"`
	Rules           []ruleConfigInput `json:"rules"`
	NeverThrottle   *bool             `json:"neverThrottle"`
	RadioSilence    *bool             `json:"radioSilence"`
	Interval        *durationValue    `json:"interval"`
	Port            *int              `json:"port"`
	SocketPath      *string           `json:"socketpath"`
	AdminListenAddr *string           `json:"adminListenAddr"`
	Debug           *bool             `json:"debug"`
}

func loadConfigFile(path string) (*configOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides configOverrides
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	return &overrides, nil
}

func applyConfigOverrides(cfg *Config, overrides *configOverrides) {
	if cfg == nil || overrides == nil {
		return
	}
	if overrides.Burst != nil {
		cfg.Burst = *overrides.Burst
	}
	if overrides.Rate != nil {
		cfg.Rate = *overrides.Rate
	}
	if overrides.Whitelist != nil {
		cfg.Whitelist = overrides.Whitelist
	}
	if overrides.Rules != nil {
		rules := make([]RuleConfig, 0, len(overrides.Rules))
		for _, r := range overrides.Rules {
			rules = append(rules, RuleConfig{Prefix: r.Prefix, Burst: r.Burst, Rate: r.Rate})
		}
		cfg.Rules = rules
	}
	if overrides.NeverThrottle != nil {
		cfg.NeverThrottle = *overrides.NeverThrottle
	}
	if overrides.RadioSilence != nil {
		cfg.RadioSilence = *overrides.RadioSilence
	}
	if overrides.Interval != nil && overrides.Interval.Set {
		cfg.Interval = overrides.Interval.Value
	}
	if overrides.Port != nil {
		cfg.Port = *overrides.Port
	}
	if overrides.SocketPath != nil {
		cfg.SocketPath = *overrides.SocketPath
	}
	if overrides.AdminListenAddr != nil {
		cfg.AdminListenAddr = *overrides.AdminListenAddr
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
}

// applyEnvOverrides reads DTHROTTLE_* environment variables, grounded on
// config/config_env.go's envMap/parse* helpers (folded into this package
// since dthrottle has no separate config subpackage - see DESIGN.md for
// why the teacher's config split was dropped).
func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return ErrInvalidConfig
	}
	values := envMap(environ)

	if value, ok := values["DTHROTTLE_BURST"]; ok {
		parsed, err := parseIntEnv("DTHROTTLE_BURST", value)
		if err != nil {
			return err
		}
		cfg.Burst = int(parsed)
	}
	if value, ok := values["DTHROTTLE_RATE"]; ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return errors.New("invalid env value for DTHROTTLE_RATE")
		}
		cfg.Rate = parsed
	}
	if value, ok := values["DTHROTTLE_NEVER_THROTTLE"]; ok {
		parsed, err := parseBoolEnv("DTHROTTLE_NEVER_THROTTLE", value)
		if err != nil {
			return err
		}
		cfg.NeverThrottle = parsed
	}
	if value, ok := values["DTHROTTLE_RADIO_SILENCE"]; ok {
		parsed, err := parseBoolEnv("DTHROTTLE_RADIO_SILENCE", value)
		if err != nil {
			return err
		}
		cfg.RadioSilence = parsed
	}
	if value, ok := values["DTHROTTLE_INTERVAL_SECONDS"]; ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return errors.New("invalid env value for DTHROTTLE_INTERVAL_SECONDS")
		}
		cfg.Interval = time.Duration(parsed * float64(time.Second))
	}
	if value, ok := values["DTHROTTLE_PORT"]; ok {
		parsed, err := parseIntEnv("DTHROTTLE_PORT", value)
		if err != nil {
			return err
		}
		cfg.Port = int(parsed)
	}
	if value, ok := values["DTHROTTLE_SOCKETPATH"]; ok {
		cfg.SocketPath = value
	}
	if value, ok := values["DTHROTTLE_ADMIN_ADDR"]; ok {
		cfg.AdminListenAddr = value
	}
	if value, ok := values["DTHROTTLE_DEBUG"]; ok {
		parsed, err := parseBoolEnv("DTHROTTLE_DEBUG", value)
		if err != nil {
			return err
		}
		cfg.Debug = parsed
	}
	if value, ok := values["DTHROTTLE_WHITELIST"]; ok {
		cfg.Whitelist = splitNonEmpty(value, ",")
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type flagOverrides struct {
	ConfigPath    *string
	Burst         *int
	Rate          *float64
	IntervalSecs  *float64
	Port          *int
	SocketPath    *string
	NeverThrottle *bool
	RadioSilence  *bool
	AdminAddr     *string
	Debug         *bool
}

func parseFlagOverrides(args []string) (flagOverrides, error) {
	fs := flag.NewFlagSet("dthrottle", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	configPath := fs.String("config", "", "config file path")
	burst := fs.Int("burst", 0, "leaky bucket capacity, in requests")
	rate := fs.Float64("rate", 0, "long term average rate, in requests per second")
	interval := fs.Float64("interval", 0, "heartbeat interval, in seconds")
	port := fs.Int("port", 0, "TCP port to listen on for throttling queries")
	socketPath := fs.String("socketpath", "", "unix domain socket path to listen on")
	neverThrottle := fs.Bool("never_throttle", false, "respond OK to every query without checking")
	radioSilence := fs.Bool("radio_silence", false, "never publish or ingest gossip reports")
	adminAddr := fs.String("admin_addr", "", "admin HTTP listen address")
	debug := fs.Bool("debug", false, "enable debug-level logging")
	fs.Bool("print_config", false, "print the resolved configuration and exit")

	if err := fs.Parse(args); err != nil {
		return flagOverrides{}, errors.New("invalid flag values")
	}

	var overrides flagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			overrides.ConfigPath = configPath
		case "burst":
			overrides.Burst = burst
		case "rate":
			overrides.Rate = rate
		case "interval":
			overrides.IntervalSecs = interval
		case "port":
			overrides.Port = port
		case "socketpath":
			overrides.SocketPath = socketPath
		case "never_throttle":
			overrides.NeverThrottle = neverThrottle
		case "radio_silence":
			overrides.RadioSilence = radioSilence
		case "admin_addr":
			overrides.AdminAddr = adminAddr
		case "debug":
			overrides.Debug = debug
		}
	})
	return overrides, nil
}

func applyFlagOverrides(cfg *Config, overrides flagOverrides) {
	if cfg == nil {
		return
	}
	if overrides.Burst != nil {
		cfg.Burst = *overrides.Burst
	}
	if overrides.Rate != nil {
		cfg.Rate = *overrides.Rate
	}
	if overrides.IntervalSecs != nil {
		cfg.Interval = time.Duration(*overrides.IntervalSecs * float64(time.Second))
	}
	if overrides.Port != nil {
		cfg.Port = *overrides.Port
	}
	if overrides.SocketPath != nil {
		cfg.SocketPath = *overrides.SocketPath
	}
	if overrides.NeverThrottle != nil {
		cfg.NeverThrottle = *overrides.NeverThrottle
	}
	if overrides.RadioSilence != nil {
		cfg.RadioSilence = *overrides.RadioSilence
	}
	if overrides.AdminAddr != nil {
		cfg.AdminListenAddr = *overrides.AdminAddr
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
}
