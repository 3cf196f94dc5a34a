package config

import (
	"strings"

	"github.com/spf13/viper"
)

// CategoryRule 合集检测规则（有序：多类命中时，先配置者优先）
type CategoryRule struct {
	Category string   `mapstructure:"category"`
	Keywords []string `mapstructure:"keywords"`
}

// AccountConfig 单个贴吧账号凭证
type AccountConfig struct {
	BDUSS  string `mapstructure:"bduss"`
	SToken string `mapstructure:"stoken"`
	Label  string `mapstructure:"label"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	APIKey    string `mapstructure:"api_key"`
	JWTSecret string `mapstructure:"jwt_secret"`
	CrawlCron string `mapstructure:"crawl_cron"` // 可选：周期性抓取默认吧，如 "0 */2 * * *"
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"` // 为空则禁用缓存
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	StatsTTLSecs int    `mapstructure:"stats_ttl_seconds"`
}

type CrawlerConfig struct {
	PageSize        int `mapstructure:"page_size"`
	InitialHours    int `mapstructure:"initial_hours"`
	OverlapSeconds  int `mapstructure:"overlap_seconds"`
	MaxPages        int `mapstructure:"max_pages"`
	RequestAttempts int `mapstructure:"request_attempts"`
	PageSleepMsMin  int `mapstructure:"page_sleep_ms_min"`
	PageSleepMsMax  int `mapstructure:"page_sleep_ms_max"`
}

type ImageConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	Attempts    int     `mapstructure:"attempts"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
}

type RelayConfig struct {
	Mode               string `mapstructure:"mode"` // link | full
	MaxPosts           int    `mapstructure:"max_posts"`
	MinIntervalSeconds int    `mapstructure:"min_interval_seconds"`
	MaxTextChars       int    `mapstructure:"max_text_chars"`
	MaxImages          int    `mapstructure:"max_images"`
	LookbackDays       int    `mapstructure:"lookback_days"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LogLevel string         `mapstructure:"log_level"`

	SentryDSN string `mapstructure:"sentry_dsn"`
	DataDir   string `mapstructure:"data_dir"`

	DefaultForum string `mapstructure:"default_forum"`
	Timezone     string `mapstructure:"timezone"`

	// 单账号兜底（与 accounts 互斥时优先 accounts）
	BDUSS    string          `mapstructure:"bduss"`
	SToken   string          `mapstructure:"stoken"`
	Accounts []AccountConfig `mapstructure:"accounts"`

	Crawler CrawlerConfig  `mapstructure:"crawler"`
	Images  ImageConfig    `mapstructure:"images"`
	Relay   RelayConfig    `mapstructure:"relay"`
	Rules   []CategoryRule `mapstructure:"collection_rules"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/tieba.db")
	v.SetDefault("redis.stats_ttl_seconds", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "data")
	v.SetDefault("timezone", "Asia/Shanghai")

	v.SetDefault("crawler.page_size", 50)
	v.SetDefault("crawler.initial_hours", 24)
	v.SetDefault("crawler.overlap_seconds", 3600)
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.request_attempts", 5)
	v.SetDefault("crawler.page_sleep_ms_min", 200)
	v.SetDefault("crawler.page_sleep_ms_max", 800)

	v.SetDefault("images.concurrency", 4)
	v.SetDefault("images.attempts", 3)
	v.SetDefault("images.rate_per_sec", 8)

	v.SetDefault("relay.mode", "link")
	v.SetDefault("relay.max_posts", 2)
	v.SetDefault("relay.min_interval_seconds", 120)
	v.SetDefault("relay.max_text_chars", 300)
	v.SetDefault("relay.max_images", 3)
	v.SetDefault("relay.lookback_days", 21)
}

// Load 读取 config.yaml（可选）并叠加 TIEBA_* 环境变量
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("TIEBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件缺失允许：全部走默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
