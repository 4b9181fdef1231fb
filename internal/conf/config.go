package conf

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Health        HealthConfig        `mapstructure:"health"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HealthConfig 健康监控配置。阈值是可调参数而非常量。
type HealthConfig struct {
	WindowSize           int           `mapstructure:"window_size"`            // 窗口内最多保留的观测数
	WindowAge            time.Duration `mapstructure:"window_age"`             // 观测最长保留时间
	DegradedSuccessRate  float64       `mapstructure:"degraded_success_rate"`  // 低于则降级
	UnhealthySuccessRate float64       `mapstructure:"unhealthy_success_rate"` // 低于则不可用
	LatencySLAMs         float64       `mapstructure:"latency_sla_ms"`         // 平均延迟SLA
	UnhealthyFailures    int           `mapstructure:"unhealthy_failures"`     // 连续失败阈值 K
	RecoveryClimb        int           `mapstructure:"recovery_climb"`         // 每爬升一级所需连续成功数 M
	MinObservations      int           `mapstructure:"min_observations"`       // 比率阈值生效所需的最少观测数
}

// DefaultHealthConfig 默认健康阈值
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		WindowSize:           50,
		WindowAge:            5 * time.Minute,
		DegradedSuccessRate:  0.9,
		UnhealthySuccessRate: 0.5,
		LatencySLAMs:         5000,
		UnhealthyFailures:    5,
		RecoveryClimb:        3,
		MinObservations:      5,
	}
}

// QuotaConfig 配额配置
type QuotaConfig struct {
	// ReserveEstimate 悲观模式：准入时按预估成本预留额度。
	// 默认关闭，采用乐观的事后记账（允许窗口末次调用轻微超额）。
	ReserveEstimate bool `mapstructure:"reserve_estimate"`
}

// SchedulerConfig 周期任务配置
type SchedulerConfig struct {
	HealthProbeInterval time.Duration `mapstructure:"health_probe_interval"`
	QuotaResetInterval  time.Duration `mapstructure:"quota_reset_interval"`
	RollupInterval      time.Duration `mapstructure:"rollup_interval"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("model-gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	config := defaultConfig()
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// 从环境变量覆盖敏感配置
	if source := os.Getenv("DB_SOURCE"); source != "" {
		config.Database.Source = source
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}

	return &config, nil
}

// defaultConfig 配置缺省值
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPPort:        9010,
			MetricsPort:     9011,
			ShutdownTimeout: 10 * time.Second,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
		Health: DefaultHealthConfig(),
		Scheduler: SchedulerConfig{
			HealthProbeInterval: time.Minute,
			QuotaResetInterval:  time.Minute,
			RollupInterval:      10 * time.Minute,
		},
		Observability: ObservabilityConfig{
			ServiceName: "model-gateway",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}
