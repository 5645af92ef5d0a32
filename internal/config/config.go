package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/wfunc/fiberspec/internal/errors"
)

// EnvPrefix 环境变量前缀，例如 FIBERSPEC_SPECTROGRAPH_BAND=red
const EnvPrefix = "FIBERSPEC"

// Config 全局配置结构体
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Spectrograph SpectrographConfig `mapstructure:"spectrograph"`
	Log          LogConfig          `mapstructure:"log"`
	Security     SecurityConfig     `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SpectrographConfig 光谱仪配置
type SpectrographConfig struct {
	Band         string            `mapstructure:"band"`          // blue / red / broad，留空则使用唯一连接的设备
	SerialNumber string            `mapstructure:"serial_number"` // 显式指定序列号，优先于 band
	Serials      map[string]string `mapstructure:"serials"`       // band -> 序列号
	Simulate     bool              `mapstructure:"simulate"`      // 使用内置模拟器
	LibraryPath  string            `mapstructure:"library_path"`  // 仅用于检查 libavs 是否安装，加载哪个库由链接决定
	PollTimeout  time.Duration     `mapstructure:"poll_timeout"`
	PollInterval time.Duration     `mapstructure:"poll_interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置，Secret 为空时控制接口不做认证
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 读取配置但不修改全局实例
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, errors.Wrap(err, errors.ErrConfigLoad, "read config")
		}
	}

	// 解析配置到结构体
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrConfigParse, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return v, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m") // 曝光最长600秒，请求会一直阻塞到读出
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/fiberspec.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 光谱仪默认配置
	v.SetDefault("spectrograph.band", "")
	v.SetDefault("spectrograph.serial_number", "")
	v.SetDefault("spectrograph.serials", map[string]string{
		"blue":  "1606192U1",
		"red":   "1606190U1",
		"broad": "1606191U1",
	})
	v.SetDefault("spectrograph.simulate", false)
	v.SetDefault("spectrograph.library_path", "/usr/local/lib/libavs.so.0.2.0")
	v.SetDefault("spectrograph.poll_timeout", "1s")
	v.SetDefault("spectrograph.poll_interval", "1ms")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "fiberspec.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "")
	v.SetDefault("security.jwt.expire_hours", 24)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return errors.Newf(errors.ErrConfigValidate, "unsupported database driver: %s", c.Database.Driver)
	}

	// 显式序列号优先，此时不需要 band 对应的序列号
	if c.Spectrograph.Band != "" && c.Spectrograph.SerialNumber == "" {
		if serial := c.Spectrograph.Serials[c.Spectrograph.Band]; serial == "" {
			return errors.Newf(errors.ErrConfigMissing, "no serial number configured for spectrograph band %q",
				c.Spectrograph.Band)
		}
	}
	if c.Spectrograph.PollTimeout <= 0 {
		return errors.Newf(errors.ErrConfigValidate,
			"spectrograph.poll_timeout must be positive, got %s", c.Spectrograph.PollTimeout)
	}
	if c.Spectrograph.PollInterval <= 0 || c.Spectrograph.PollInterval > c.Spectrograph.PollTimeout {
		return errors.Newf(errors.ErrConfigValidate,
			"spectrograph.poll_interval must be in (0, poll_timeout], got %s", c.Spectrograph.PollInterval)
	}
	return nil
}

// TargetSerial 返回要连接的序列号，空字符串表示使用唯一连接的设备
func (c SpectrographConfig) TargetSerial() string {
	if c.SerialNumber != "" {
		return c.SerialNumber
	}
	if c.Band == "" {
		return ""
	}
	return c.Serials[c.Band]
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}
