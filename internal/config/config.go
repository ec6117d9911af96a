package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbitsync/orbitsync/internal/core/physics"
)

// Config is the full configuration surface of the server.
type Config struct {
	Server     Server     `yaml:"server"`
	Simulation Simulation `yaml:"simulation"`
	Physics    Physics    `yaml:"physics"`
	LogLevel   string     `yaml:"log_level"`
}

// Server holds the gateway listen settings.
type Server struct {
	ListenAddr     string `yaml:"listen_addr"`
	QUICAddr       string `yaml:"quic_addr"`
	EnableQUIC     bool   `yaml:"enable_quic"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	MaxMessageSize int64  `yaml:"max_message_size"`
}

// Simulation holds the room and tick scheduling settings.
type Simulation struct {
	TickRate           int      `yaml:"tick_rate"`
	TickWorkers        int      `yaml:"tick_workers"`
	SweepInterval      Duration `yaml:"sweep_interval"`
	RoomIdleTimeout    Duration `yaml:"room_idle_timeout"`
	MaxParticipants    int      `yaml:"max_participants"`
	MaxSessionsPerUser int      `yaml:"max_sessions_per_user"`
}

// Duration parses YAML duration strings like "5m" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Physics holds the default simulation constants for new rooms.
type Physics struct {
	G           float64 `yaml:"g"`
	K           float64 `yaml:"k"`
	Damping     float64 `yaml:"damping"`
	Restitution float64 `yaml:"restitution"`
}

// Default returns the configuration the server runs with when no file is
// given.
func Default() Config {
	consts := physics.DefaultConstants()
	return Config{
		Server: Server{
			ListenAddr:     "127.0.0.1:8080",
			QUICAddr:       "127.0.0.1:8443",
			EnableQUIC:     false,
			MaxMessageSize: 64 * 1024,
		},
		Simulation: Simulation{
			TickRate:           60,
			TickWorkers:        4,
			SweepInterval:      Duration(5 * time.Minute),
			RoomIdleTimeout:    Duration(time.Hour),
			MaxParticipants:    5,
			MaxSessionsPerUser: 5,
		},
		Physics: Physics{
			G:           consts.G,
			K:           consts.K,
			Damping:     consts.Damping,
			Restitution: consts.Restitution,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must be set")
	}
	if c.Server.EnableQUIC && c.Server.QUICAddr == "" {
		return fmt.Errorf("server.quic_addr must be set when QUIC is enabled")
	}
	if c.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("server.max_message_size must be positive")
	}
	if c.Simulation.TickRate <= 0 {
		return fmt.Errorf("simulation.tick_rate must be positive")
	}
	if c.Simulation.SweepInterval <= 0 || c.Simulation.RoomIdleTimeout <= 0 {
		return fmt.Errorf("simulation sweep interval and idle timeout must be positive")
	}
	if c.Simulation.MaxParticipants <= 0 {
		return fmt.Errorf("simulation.max_participants must be positive")
	}
	if c.Simulation.MaxSessionsPerUser <= 0 {
		return fmt.Errorf("simulation.max_sessions_per_user must be positive")
	}
	return c.Constants().Validate()
}

// TickPeriod returns the wall-clock interval between ticks.
func (c Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.Simulation.TickRate)
}

// Constants returns the physics constants for new rooms.
func (c Config) Constants() physics.Constants {
	consts := physics.DefaultConstants()
	consts.G = c.Physics.G
	consts.K = c.Physics.K
	consts.Damping = c.Physics.Damping
	consts.Restitution = c.Physics.Restitution
	return consts
}
