package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required,notEmpty"`

	StunServer    webrtc.ICEServer
	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	Postgres     PostgresConfig
	Session      SessionConfig
	WS           WebsocketConfig
	Persist      PersistConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"talkrooms"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`

	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// CoturnConfig - TURN опционален, без COTURN_HOST клиенту отдаётся только STUN
type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret - нужен для генерации временных кредов для фронта
	Secret     string        `env:"COTURN_SECRET"`
	CredsTTL   time.Duration `env:"COTURN_CREDS_TTL" envDefault:"1h"`
	StunServer string        `env:"STUN_SERVER" envDefault:"stun:stun.l.google.com:19302"`
}

func (c *CoturnConfig) Enabled() bool {
	return c.Host != ""
}

// SessionConfig - тайминги координатора комнат
type SessionConfig struct {
	GracePeriod    time.Duration `env:"SESSION_GRACE_PERIOD" envDefault:"500ms"`
	RosterDebounce time.Duration `env:"SESSION_ROSTER_DEBOUNCE" envDefault:"200ms"`
	ChatMaxLength  int           `env:"CHAT_MAX_LENGTH" envDefault:"2000"`
}

type WebsocketConfig struct {
	RateLimit  float64       `env:"WS_RATE_LIMIT" envDefault:"20"`
	RateBurst  int           `env:"WS_RATE_BURST" envDefault:"40"`
	SendBuffer int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	ReadLimit  int64         `env:"WS_READ_LIMIT" envDefault:"65536"`
	PongWait   time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
}

// PingPeriod должен быть меньше PongWait
func (w *WebsocketConfig) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

type PersistConfig struct {
	QueueSize int           `env:"PERSIST_QUEUE_SIZE" envDefault:"1024"`
	Timeout   time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	c.StunServer = webrtc.ICEServer{
		URLs: []string{c.CoturnServer.StunServer},
	}

	if c.CoturnServer.Enabled() {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}
