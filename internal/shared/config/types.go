package config

import "fmt"

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RazorpayConfig holds hosted-checkout credentials. KeyID/KeySecret
// authenticate API calls; WebhookSecret signs inbound webhooks.
type RazorpayConfig struct {
	KeyID         string `mapstructure:"key_id"`
	KeySecret     string `mapstructure:"key_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// GooglePlayConfig holds Android store credentials. CredentialsJSON is the
// service-account key used for the Android Publisher API; PackageName scopes
// receipt lookups to the app.
type GooglePlayConfig struct {
	PackageName     string `mapstructure:"package_name"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// AppStoreConfig holds iOS store credentials for the App Store Server API.
// PrivateKeyPEM is the .p8 key from App Store Connect.
type AppStoreConfig struct {
	BundleID      string `mapstructure:"bundle_id"`
	IssuerID      string `mapstructure:"issuer_id"`
	KeyID         string `mapstructure:"key_id"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
	Sandbox       bool   `mapstructure:"sandbox"`
}

type ProvidersConfig struct {
	Razorpay   RazorpayConfig   `mapstructure:"razorpay"`
	GooglePlay GooglePlayConfig `mapstructure:"google_play"`
	AppStore   AppStoreConfig   `mapstructure:"app_store"`
}

// BillingConfig tunes lifecycle sweeps. GraceDays is how long a cancelled or
// completed subscription keeps its status before the expiry sweep moves it to
// expired. SweepInterval is in minutes.
type BillingConfig struct {
	GraceDays     int `mapstructure:"grace_days"`
	SweepInterval int `mapstructure:"sweep_interval"`
}
