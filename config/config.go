// Package config loads a controller connection profile from a TOML file.
//
// Every key is optional; missing keys keep the defaults of the USB profile and
// of the agilis driver.
//
//	port              = "/dev/ttyUSB0"
//	profile           = "usb"      # usb | rs232
//	baud_rate         = 921600     # overrides the profile
//	data_bits         = 8
//	stop_bits         = "1"        # 1 | 1.5 | 2
//	parity            = "none"     # none | odd | even | mark | space
//	command_interval  = "50ms"
//	reply_timeout     = "3s"
//	measure_timeout   = "130s"
//	handshake_timeout = "1s"
//	log_level         = "warning"  # debug | info | warning | error | none
//	log_format        = "json"     # json | console
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-agilis/agilis"
	"github.com/arloliu/go-agilis/logger"
	"github.com/arloliu/go-agilis/serial"
)

// Profile names accepted by the profile key.
const (
	ProfileUSB   = "usb"
	ProfileRS232 = "rs232"
)

// Log formats accepted by the log_format key.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// fileConfig is the TOML key mapping.
type fileConfig struct {
	Port             string `toml:"port"`
	Profile          string `toml:"profile"`
	BaudRate         int    `toml:"baud_rate"`
	DataBits         int    `toml:"data_bits"`
	StopBits         string `toml:"stop_bits"`
	Parity           string `toml:"parity"`
	CommandInterval  string `toml:"command_interval"`
	ReplyTimeout     string `toml:"reply_timeout"`
	MeasureTimeout   string `toml:"measure_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
}

// Config is a resolved connection profile.
type Config struct {
	Profile string
	Serial  serial.Config

	CommandInterval  time.Duration
	ReplyTimeout     time.Duration
	MeasureTimeout   time.Duration
	HandshakeTimeout time.Duration

	LogLevel  logger.Level
	LogFormat string
}

// Default returns the USB profile with the driver defaults.
func Default() Config {
	return Config{
		Profile:          ProfileUSB,
		Serial:           serial.USBConfig(""),
		CommandInterval:  agilis.DefaultCommandInterval,
		ReplyTimeout:     agilis.DefaultReplyTimeout,
		MeasureTimeout:   agilis.DefaultMeasureTimeout,
		HandshakeTimeout: agilis.DefaultHandshakeTimeout,
		LogLevel:         logger.WarnLevel,
		LogFormat:        FormatJSON,
	}
}

// Load reads the TOML file at path and overlays it on Default.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load agilis config: %w", err)
	}

	return resolve(raw, meta)
}

// Parse is Load for TOML already in memory.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse agilis config: %w", err)
	}

	return resolve(raw, meta)
}

func resolve(raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load agilis config: unknown key %q", undecoded[0].String())
	}

	cfg := Default()

	if meta.IsDefined("profile") {
		switch p := strings.ToLower(strings.TrimSpace(raw.Profile)); p {
		case ProfileUSB:
			cfg.Profile = p
		case ProfileRS232:
			cfg.Profile = p
			cfg.Serial = serial.RS232Config("")
		default:
			return Config{}, fmt.Errorf("load agilis config: unsupported profile %q (expected usb or rs232)", raw.Profile)
		}
	}
	if meta.IsDefined("port") {
		cfg.Serial.Address = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud_rate") {
		cfg.Serial.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("data_bits") {
		cfg.Serial.DataBits = raw.DataBits
	}
	if meta.IsDefined("stop_bits") {
		sb, err := parseStopBits(raw.StopBits)
		if err != nil {
			return Config{}, err
		}
		cfg.Serial.StopBits = sb
	}
	if meta.IsDefined("parity") {
		p, err := parseParity(raw.Parity)
		if err != nil {
			return Config{}, err
		}
		cfg.Serial.Parity = p
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"command_interval", raw.CommandInterval, &cfg.CommandInterval},
		{"reply_timeout", raw.ReplyTimeout, &cfg.ReplyTimeout},
		{"measure_timeout", raw.MeasureTimeout, &cfg.MeasureTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("load agilis config: %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("log_level") {
		level, ok := logger.ParseLevel(raw.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("load agilis config: unsupported log level %q", raw.LogLevel)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("log_format") {
		switch f := strings.ToLower(strings.TrimSpace(raw.LogFormat)); f {
		case FormatJSON, FormatConsole:
			cfg.LogFormat = f
		default:
			return Config{}, fmt.Errorf("load agilis config: unsupported log format %q (expected json or console)", raw.LogFormat)
		}
	}

	// validate the driver settings now rather than at NewDriverConfig
	if _, err := agilis.NewDriverConfig(cfg.DriverOptions()...); err != nil {
		return Config{}, fmt.Errorf("load agilis config: %w", err)
	}

	return cfg, nil
}

// SerialConfig returns the line settings. The handshake fields are left empty
// so the driver fills in its VE probe.
func (c Config) SerialConfig() serial.Config {
	return c.Serial
}

// DriverOptions returns the agilis options of the profile. Callers append
// their own, e.g. agilis.WithLogger.
func (c Config) DriverOptions() []agilis.DriverOption {
	return []agilis.DriverOption{
		agilis.WithCommandInterval(c.CommandInterval),
		agilis.WithReplyTimeout(c.ReplyTimeout),
		agilis.WithMeasureTimeout(c.MeasureTimeout),
		agilis.WithHandshakeTimeout(c.HandshakeTimeout),
	}
}

// Logger returns a logger in the configured format and level. Console output
// goes to stderr; JSON goes to stdout.
func (c Config) Logger() logger.Logger {
	return c.LoggerTo(nil)
}

// LoggerTo is Logger with an explicit console writer. A nil w selects stderr.
func (c Config) LoggerTo(w io.Writer) logger.Logger {
	if c.LogFormat == FormatConsole {
		if w == nil {
			w = os.Stderr
		}

		return logger.NewConsole(w, c.LogLevel)
	}

	return logger.NewSlog(c.LogLevel, false)
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return 0, fmt.Errorf("load agilis config: unsupported stop bits %q (expected 1, 1.5 or 2)", s)
	}
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return 0, fmt.Errorf("load agilis config: unsupported parity %q", s)
	}
}
