package config

import "time"

// Config is the root configuration for the TapCall server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Tenancy TenancyConfig `yaml:"tenancy"`
	Hub     HubConfig     `yaml:"hub"`
	QR      QRConfig      `yaml:"qr"`
	Static  StaticConfig  `yaml:"static"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// BaseURL prefixes customer deep links encoded in QR codes.
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`
	DSN    string `yaml:"dsn"`
}

type TenancyConfig struct {
	Enabled     bool              `yaml:"enabled"`
	TenantsFile string            `yaml:"tenants_file"`
	Tenants     map[string]string `yaml:"tenants"`
}

type HubConfig struct {
	BufferSize   int           `yaml:"buffer_size" validate:"min=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

type QRConfig struct {
	Size       int    `yaml:"size" validate:"min=64,max=2048"`
	ScanText   string `yaml:"scan_text"`
	FooterText string `yaml:"footer_text"`
}

type StaticConfig struct {
	Dir string `yaml:"dir"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			BaseURL:         "http://localhost:3000",
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Hub: HubConfig{
			BufferSize:   64,
			WriteTimeout: 5 * time.Second,
		},
		QR: QRConfig{
			Size:       256,
			ScanText:   "Scan to call waiter",
			FooterText: "Powered by TapCall",
		},
	}
}
