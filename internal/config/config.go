// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Timezone  string `mapstructure:"timezone"`

	UDP      UDPConfig      `mapstructure:"udp"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"db"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Camera   CameraConfig   `mapstructure:"camera"`
}

type UDPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	BufferSize int    `mapstructure:"buffer_size"`
}

func (u UDPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

type HTTPConfig struct {
	Addr        string  `mapstructure:"addr"`
	AllowOrigin string  `mapstructure:"allow_origin"`
	RateLimit   float64 `mapstructure:"rate_limit"`
	RateBurst   int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN do MySQL; parseTime é obrigatório para os campos datetime.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// ServerDSN aponta para o servidor sem selecionar banco (usado no migrate create).
func (d DatabaseConfig) ServerDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port)
}

type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ClientID       string        `mapstructure:"client_id"`
	BaseTopic      string        `mapstructure:"base_topic"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

type MinIOConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

type CameraConfig struct {
	Simulate       bool          `mapstructure:"simulate"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxWidth       int           `mapstructure:"max_width"`
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`
	VideoFPS       float64       `mapstructure:"video_fps"`
}

var defaults = map[string]interface{}{
	"log_level":  "info",
	"log_format": "json",
	"timezone":   "Asia/Karachi",

	"udp.host":        "0.0.0.0",
	"udp.port":        4096,
	"udp.buffer_size": 2048,

	"http.addr":         ":9000",
	"http.allow_origin": "*",
	"http.rate_limit":   10.0,
	"http.rate_burst":   20,

	"db.host":              "localhost",
	"db.port":              3306,
	"db.user":              "root",
	"db.password":          "",
	"db.name":              "nurse_call",
	"db.max_idle_conns":    10,
	"db.max_open_conns":    100,
	"db.conn_max_lifetime": time.Hour,
	"db.log_level":         "warn",

	"mqtt.enabled":         false,
	"mqtt.host":            "localhost",
	"mqtt.port":            1883,
	"mqtt.username":        "",
	"mqtt.password":        "",
	"mqtt.client_id":       "nursecall-bus",
	"mqtt.base_topic":      "nursecall",
	"mqtt.status_interval": 30 * time.Second,

	"minio.enabled":         false,
	"minio.endpoint":        "localhost:9000",
	"minio.access_key":      "",
	"minio.secret_key":      "",
	"minio.bucket":          "nursecall-snapshots",
	"minio.use_ssl":         false,
	"minio.public_base_url": "",

	"redis.addr":      "",
	"redis.password":  "",
	"redis.db":        0,
	"redis.stats_ttl": 5 * time.Second,

	"camera.simulate":        false,
	"camera.reconnect_delay": 3 * time.Second,
	"camera.max_width":       1280,
	"camera.ffmpeg_path":     "ffmpeg",
	"camera.video_fps":       10.0,
}

// Load lê .env (se existir), o arquivo de config opcional e as variáveis de
// ambiente. Chaves aninhadas viram env com "_" (udp.port -> UDP_PORT).
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] aviso: .env não carregado: %v", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.UDP.Port <= 0 || c.UDP.Port > 65535 {
		return fmt.Errorf("invalid udp port %d", c.UDP.Port)
	}
	if c.UDP.BufferSize <= 0 {
		return fmt.Errorf("invalid udp buffer size %d", c.UDP.BufferSize)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.MinIO.Enabled && (c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY / MINIO_SECRET_KEY não configurados")
	}
	return nil
}

// Location devolve o fuso configurado; cai para UTC se inválido.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
