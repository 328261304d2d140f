package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Bot       BotConfig       `yaml:"bot"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"APP_SERVER_HOST"`
	Port int    `yaml:"port" env:"APP_SERVER_PORT"`
}

type GRPCConfig struct {
	Host string `yaml:"host" env:"APP_GRPC_HOST"`
	Port int    `yaml:"port" env:"APP_GRPC_PORT"`
}

// BotConfig carries the Bot Framework registration and the knobs that shape
// the rendered cards.
type BotConfig struct {
	AppID       string `yaml:"app_id" env:"APP_BOT_ID"`
	AppPassword string `yaml:"app_password" env:"APP_BOT_PASSWORD"`
	TenantID    string `yaml:"tenant_id" env:"APP_BOT_TENANT_ID"`
	ProductName string `yaml:"product_name" env:"APP_BOT_PRODUCT_NAME"`

	TaskModuleTitle  string `yaml:"task_module_title" env:"APP_BOT_TASK_MODULE_TITLE"`
	TaskModuleHeight int    `yaml:"task_module_height" env:"APP_BOT_TASK_MODULE_HEIGHT"`
	TaskModuleWidth  int    `yaml:"task_module_width" env:"APP_BOT_TASK_MODULE_WIDTH"`

	RosterPageSize int    `yaml:"roster_page_size" env:"APP_BOT_ROSTER_PAGE_SIZE"`
	RequestTimeout string `yaml:"request_timeout" env:"APP_BOT_REQUEST_TIMEOUT"`

	Manufacturers             []string `yaml:"manufacturers" env:"APP_BOT_MANUFACTURERS" envSeparator:","`
	ProcurementApproverPrefix string   `yaml:"procurement_approver_prefix" env:"APP_BOT_PROCUREMENT_APPROVER_PREFIX"`
	NotificationTimeout       string   `yaml:"notification_timeout" env:"APP_BOT_NOTIFICATION_TIMEOUT"`
	NotificationConcurrency   int      `yaml:"notification_concurrency" env:"APP_BOT_NOTIFICATION_CONCURRENCY"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"APP_STORE_DRIVER"`
	DSN    string `yaml:"dsn" env:"APP_STORE_DSN"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"APP_LOG_LEVEL"`
	Development bool   `yaml:"development" env:"APP_LOG_DEVELOPMENT"`
	SinkURL     string `yaml:"sink_url" env:"METRIC_SERVICE_BASE_URL"`
	SinkAPIKey  string `yaml:"sink_api_key" env:"METRIC_SERVICE_API_KEY"`
	SinkSource  string `yaml:"sink_source" env:"METRIC_SERVICE_SOURCE"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"APP_TELEMETRY_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

type NotifyConfig struct {
	AuditURL    string `yaml:"audit_url" env:"APP_NOTIFY_AUDIT_URL"`
	EventBusURL string `yaml:"event_bus_url" env:"APP_NOTIFY_EVENT_BUS_URL"`
	Timeout     string `yaml:"timeout" env:"APP_NOTIFY_TIMEOUT"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3978,
		},
		GRPC: GRPCConfig{
			Host: "0.0.0.0",
			Port: 9115,
		},
		Bot: BotConfig{
			ProductName:               "Disco",
			TaskModuleTitle:           "Approval Request",
			TaskModuleHeight:          450,
			TaskModuleWidth:           500,
			RosterPageSize:            100,
			RequestTimeout:            "10s",
			Manufacturers:             []string{"Bosch", "Microsoft", "Others"},
			ProcurementApproverPrefix: "",
			NotificationTimeout:       "30s",
			NotificationConcurrency:   4,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "otel-collector:4317",
			ServiceName: "teams-approval-bot",
		},
		Notify: NotifyConfig{
			Timeout: "5s",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ParseDuration reads a duration string from config, falling back when it is
// empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Module(path string) fx.Option {
	return fx.Provide(func() (Config, error) {
		return Load(path)
	})
}
