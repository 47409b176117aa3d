// Package config loads service settings from .env, an optional multipay.yaml
// and MULTIPAY_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "MULTIPAY"

type Config struct {
	Env      string `mapstructure:"env"`
	HTTPAddr string `mapstructure:"http_addr"`
	// BaseURL is the public origin providers redirect payers back to.
	BaseURL string `mapstructure:"base_url"`

	DB       DBConfig       `mapstructure:"db"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Gateways GatewaysConfig `mapstructure:"gateways"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Mail     MailConfig     `mapstructure:"mail"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type DBConfig struct {
	// Driver is mysql or sqlite.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type PaymentsConfig struct {
	DefaultGateway string `mapstructure:"default_gateway"`
	// Enabled is the ordered adapter list. Order decides who is offered a
	// callback or webhook first.
	Enabled        []string      `mapstructure:"enabled"`
	CallbackPath   string        `mapstructure:"callback_path"`
	WebhookAck     string        `mapstructure:"webhook_ack"`
	GatewayTimeout time.Duration `mapstructure:"gateway_timeout"`
	// ReQueryAfter is how old an unsettled payment must be before the sweep asks about it.
	ReQueryAfter time.Duration `mapstructure:"requery_after"`
	ReQueryBatch int           `mapstructure:"requery_batch"`
}

type GatewaysConfig struct {
	Paystack    PaystackConfig    `mapstructure:"paystack"`
	Flutterwave FlutterwaveConfig `mapstructure:"flutterwave"`
	Remita      RemitaConfig      `mapstructure:"remita"`
	Midtrans    MidtransConfig    `mapstructure:"midtrans"`
	Mock        MockConfig        `mapstructure:"mock"`
}

type PaystackConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

type FlutterwaveConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	SecretHash string `mapstructure:"secret_hash"`
	BaseURL    string `mapstructure:"base_url"`
}

type RemitaConfig struct {
	MerchantID    string `mapstructure:"merchant_id"`
	ServiceTypeID string `mapstructure:"service_type_id"`
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
}

type MidtransConfig struct {
	ServerKey  string `mapstructure:"server_key"`
	Production bool   `mapstructure:"production"`
}

type MockConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	CheckoutURL   string `mapstructure:"checkout_url"`
}

type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
	// TLSMode: none | starttls | tls
	TLSMode       string `mapstructure:"tls_mode"`
	SkipVerifyTLS bool   `mapstructure:"skip_verify_tls"`
}

type MailConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver: smtp | mailtrap
	Driver        string `mapstructure:"driver"`
	From          string `mapstructure:"from"`
	FromName      string `mapstructure:"from_name"`
	MailtrapURL   string `mapstructure:"mailtrap_url"`
	MailtrapToken string `mapstructure:"mailtrap_token"`
}

type StorageConfig struct {
	// Driver: none | local | s3
	Driver          string `mapstructure:"driver"`
	LocalDir        string `mapstructure:"local_dir"`
	LocalURLPrefix  string `mapstructure:"local_url_prefix"`
	S3Region        string `mapstructure:"s3_region"`
	S3Bucket        string `mapstructure:"s3_bucket"`
	S3Prefix        string `mapstructure:"s3_prefix"`
	S3PublicBaseURL string `mapstructure:"s3_public_base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("base_url", "http://localhost:8080")

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("payments.default_gateway", "")
	v.SetDefault("payments.enabled", []string{})
	v.SetDefault("payments.callback_path", "/payments/confirm")
	v.SetDefault("payments.webhook_ack", "OK")
	v.SetDefault("payments.gateway_timeout", 20*time.Second)
	v.SetDefault("payments.requery_after", 15*time.Minute)
	v.SetDefault("payments.requery_batch", 100)

	for _, k := range []string{
		"gateways.paystack.secret_key", "gateways.paystack.base_url",
		"gateways.flutterwave.secret_key", "gateways.flutterwave.secret_hash", "gateways.flutterwave.base_url",
		"gateways.remita.merchant_id", "gateways.remita.service_type_id", "gateways.remita.api_key", "gateways.remita.base_url",
		"gateways.midtrans.server_key",
		"gateways.mock.webhook_secret", "gateways.mock.checkout_url",
		"smtp.user", "smtp.pass",
		"storage.s3_region", "storage.s3_bucket", "storage.s3_public_base_url",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("gateways.midtrans.production", false)

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", "1025")
	v.SetDefault("smtp.tls_mode", "none")
	v.SetDefault("smtp.skip_verify_tls", false)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.driver", "smtp")
	v.SetDefault("mail.mailtrap_url", "https://send.api.mailtrap.io/api/send")
	v.SetDefault("mail.mailtrap_token", "")
	v.SetDefault("mail.from", "no-reply@multipay.local")
	v.SetDefault("mail.from_name", "Payments")

	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.local_dir", "./storage/receipts")
	v.SetDefault("storage.local_url_prefix", "/receipts")
	v.SetDefault("storage.s3_prefix", "receipts")
}

// Load reads configuration. files are optional explicit config files; when
// none are given multipay.yaml is looked up in . and ./config.
func Load(files ...string) (Config, error) {
	// prod uses real env vars
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(files) > 0 {
		for i, f := range files {
			v.SetConfigFile(f)
			read := v.ReadInConfig
			if i > 0 {
				read = v.MergeInConfig
			}
			if err := read(); err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", f, err)
			}
		}
	} else {
		v.SetConfigName("multipay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Payments.Enabled = splitList(cfg.Payments.Enabled)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MULTIPAY_PAYMENTS_ENABLED="Paystack,Mock" arrives as a single element.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("config: unknown db.driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("config: db.dsn is required")
	}
	if len(c.Payments.Enabled) == 0 {
		return fmt.Errorf("config: payments.enabled lists no gateways")
	}
	if d := c.Payments.DefaultGateway; d != "" && !contains(c.Payments.Enabled, d) {
		return fmt.Errorf("config: default gateway %q is not enabled", d)
	}
	if c.Mail.Enabled {
		switch c.Mail.Driver {
		case "smtp", "mailtrap":
		default:
			return fmt.Errorf("config: unknown mail.driver %q", c.Mail.Driver)
		}
	}
	switch c.Storage.Driver {
	case "none", "local", "s3":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// CallbackURL is the absolute URL handed to providers for payer redirects.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.Payments.CallbackPath
}

func (c Config) IsProduction() bool { return c.Env == "production" }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
