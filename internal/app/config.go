// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/dao"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/util"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"
	"github.com/haierkeys/schedule-note-sync/pkg/writequeue"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置
type AppConfig struct {
	File     string         `yaml:"-"` // 配置文件路径，不序列化
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	App      AppSettings    `yaml:"app"`
	Security SecurityConfig `yaml:"security"`
	Lease    LeaseConfig    `yaml:"lease"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Device   DeviceConfig   `yaml:"device"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"info"`
	// File 日志文件路径，为空时只输出到 stderr
	File string `yaml:"file" default:"storage/logs/log.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production" default:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// RunMode 运行模式
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 端口
	HttpPort string `yaml:"http-port" default:":9000"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout 写入超时（秒）
	WriteTimeout int `yaml:"write-timeout" default:"60"`
	// PrivateHttpListen 私有 HTTP 监听地址 (metrics / pprof)，为空时不启动
	PrivateHttpListen string `yaml:"private-http-listen" default:"127.0.0.1:9001"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// DeviceTokenKey 设备凭证签名密钥
	DeviceTokenKey string `yaml:"device-token-key" default:"schedule-note-sync-Device-Token"`
	// TokenExpiry 设备凭证有效期，支持格式：7d、24h、30m，0 表示不过期
	TokenExpiry string `yaml:"token-expiry" default:"365d"`
}

// LeaseConfig 笔记编辑租约配置
type LeaseConfig struct {
	// Expiry 租约多久未续期后可被其他设备接管，0 表示永不过期
	Expiry string `yaml:"expiry" default:"5m"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Type 数据库类型 sqlite / mysql / postgres
	Type string `yaml:"type" default:"sqlite"`
	// Path SQLite 数据库文件路径
	Path string `yaml:"path" default:"storage/database/server.sqlite3"`
	// UserName 用户名
	UserName string `yaml:"username"`
	// Password 密码
	Password string `yaml:"password"`
	// Host 主机 host:port
	Host string `yaml:"host"`
	// Name 数据库名
	Name string `yaml:"name"`
	// Charset 字符集 (mysql)
	Charset string `yaml:"charset"`
	// SSLMode sslmode (postgres)
	SSLMode string `yaml:"ssl-mode"`
	// Replicas 只读副本 DSN 列表
	Replicas []string `yaml:"replicas"`
	// AutoMigrate 是否启用自动迁移，仅用于开发环境
	AutoMigrate bool `yaml:"auto-migrate" default:"true"`
	// Debug 是否打印 SQL
	Debug bool `yaml:"debug"`
	// MaxIdleConns 最大闲置连接数，默认 10
	MaxIdleConns int `yaml:"max-idle-conns" default:"10"`
	// MaxOpenConns 最大打开连接数，默认 100 (SQLite 固定为 1)
	MaxOpenConns int `yaml:"max-open-conns" default:"100"`
	// ConnMaxLifetime 连接最大生命周期，默认 30m
	ConnMaxLifetime string `yaml:"conn-max-lifetime" default:"30m"`
	// ConnMaxIdleTime 空闲连接最大生命周期，默认 10m
	ConnMaxIdleTime string `yaml:"conn-max-idle-time" default:"10m"`
}

// AppSettings 应用设置
type AppSettings struct {
	// DefaultContextTimeout 默认上下文超时时间（秒）
	DefaultContextTimeout int `yaml:"default-context-timeout" default:"60"`

	// 每个设备的限流：每个 RateLimitInterval 补充 RateLimitCapacity 个令牌，0 表示不限流
	RateLimitCapacity int    `yaml:"rate-limit-capacity" default:"100"`
	RateLimitInterval string `yaml:"rate-limit-interval" default:"1s"`

	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"8"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"256"`

	// Write Queue 配置
	WriteQueueCapacity int    `yaml:"write-queue-capacity" default:"64"`
	WriteQueueTimeout  string `yaml:"write-queue-timeout" default:"60s"`
	WriteQueueIdleTime string `yaml:"write-queue-idle-time" default:"5m"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Header 追踪 ID 请求头名称，默认 X-Trace-ID
	Header string `yaml:"header" default:"X-Trace-ID"`
	// JaegerAgent Jaeger agent 地址 host:port，为空时不上报
	JaegerAgent string `yaml:"jaeger-agent"`
	// ServiceName 上报的服务名
	ServiceName string `yaml:"service-name" default:"schedule-note-sync"`
	// SampleRate 采样率 0~1
	SampleRate float64 `yaml:"sample-rate" default:"1"`
}

// DeviceConfig 设备端引擎配置
type DeviceConfig struct {
	// ID 设备 ID，为空时使用本机 machine id
	ID string `yaml:"id"`
	// Token 服务端签发的设备凭证
	Token string `yaml:"token"`
	// ServerURL 同步服务地址
	ServerURL string `yaml:"server-url" default:"http://127.0.0.1:9000"`
	// CachePath 本地缓存数据库路径
	CachePath string `yaml:"cache-path" default:"storage/device/cache.sqlite3"`
	// RequestTimeout 单次请求超时
	RequestTimeout string `yaml:"request-timeout" default:"15s"`
	// SyncInterval 后台同步间隔，0 表示不启用
	SyncInterval string `yaml:"sync-interval" default:"5m"`
	// SyncConcurrency 批量同步并发数
	SyncConcurrency int `yaml:"sync-concurrency" default:"4"`
	// PreloadConcurrency 预加载并发数
	PreloadConcurrency int `yaml:"preload-concurrency" default:"4"`
	// CleanupCron 缓存清理计划 (robfig/cron 表达式)，为空时不启用
	CleanupCron string `yaml:"cleanup-cron" default:"@every 6h"`
	// ViewModes 预加载手绘时遍历的视图模式
	ViewModes []int `yaml:"view-modes" default:"[0,1,2]"`

	// 缓存策略初始值，首次创建策略行时使用
	// 指针类型使 YAML 中显式写出的 0 / false 不会被默认值覆盖
	MaxCacheSizeMb    *int  `yaml:"max-cache-size-mb" default:"50"`
	CacheDurationDays *int  `yaml:"cache-duration-days" default:"7"`
	AutoCleanup       *bool `yaml:"auto-cleanup" default:"true"`
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	c := new(AppConfig)
	c.File = realpath

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "set default config failed")
	}

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	err = yaml.Unmarshal(file, c)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "parse config file failed")
	}

	// 再次设置默认值，以填充 YAML 中存在但值为空的字段
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "re-set default config failed")
	}

	return c, realpath, nil
}

// Save 保存配置到文件
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config failed")
	}

	err = os.WriteFile(c.File, data, 0644)
	if err != nil {
		return errors.Wrap(err, "write config file failed")
	}

	return nil
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()

	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.MaxWorkers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}

	return cfg
}

// GetWriteQueueConfig 获取 Write Queue 配置
func (c *AppConfig) GetWriteQueueConfig() writequeue.Config {
	cfg := writequeue.DefaultConfig()

	if c.App.WriteQueueCapacity > 0 {
		cfg.QueueCapacity = c.App.WriteQueueCapacity
	}
	if timeout, err := util.ParseDuration(c.App.WriteQueueTimeout); err == nil && timeout > 0 {
		cfg.WriteTimeout = timeout
	}
	if idleTime, err := util.ParseDuration(c.App.WriteQueueIdleTime); err == nil && idleTime > 0 {
		cfg.IdleTimeout = idleTime
	}

	return cfg
}

// GetDatabaseConfig 转换为 dao.DatabaseConfig
func (c *AppConfig) GetDatabaseConfig() dao.DatabaseConfig {
	d := dao.DatabaseConfig{
		Type:         c.Database.Type,
		Path:         c.Database.Path,
		UserName:     c.Database.UserName,
		Password:     c.Database.Password,
		Host:         c.Database.Host,
		Name:         c.Database.Name,
		Charset:      c.Database.Charset,
		SSLMode:      c.Database.SSLMode,
		Replicas:     c.Database.Replicas,
		MaxIdleConns: c.Database.MaxIdleConns,
		MaxOpenConns: c.Database.MaxOpenConns,
		Debug:        c.Database.Debug,
	}
	d.ConnMaxLifetime, _ = util.ParseDuration(c.Database.ConnMaxLifetime)
	d.ConnMaxIdleTime, _ = util.ParseDuration(c.Database.ConnMaxIdleTime)
	return d
}

// GetTokenExpiry 获取设备凭证有效期
func (c *AppConfig) GetTokenExpiry() time.Duration {
	if expiry, err := util.ParseDuration(c.Security.TokenExpiry); err == nil {
		return expiry
	}
	return 365 * 24 * time.Hour
}

// GetLeaseExpiry 获取笔记租约过期时间
func (c *AppConfig) GetLeaseExpiry() time.Duration {
	if expiry, err := util.ParseDuration(c.Lease.Expiry); err == nil {
		return expiry
	}
	return 5 * time.Minute
}

// GetRateLimitInterval 获取限流补充间隔
func (c *AppConfig) GetRateLimitInterval() time.Duration {
	if d, err := util.ParseDuration(c.App.RateLimitInterval); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// GetRequestTimeout 获取设备端单次请求超时
func (c *AppConfig) GetRequestTimeout() time.Duration {
	if d, err := util.ParseDuration(c.Device.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 15 * time.Second
}

// GetSyncInterval 获取设备端后台同步间隔
func (c *AppConfig) GetSyncInterval() time.Duration {
	d, err := util.ParseDuration(c.Device.SyncInterval)
	if err != nil {
		return 0
	}
	return d
}

// GetCachePolicy initial device cache policy; 0 size means no size limit, 0 days means no expiry
// GetCachePolicy 设备缓存策略初始值，容量为 0 表示不限容量，天数为 0 表示不过期
func (c *AppConfig) GetCachePolicy() domain.CachePolicy {
	p := domain.CachePolicy{MaxCacheSizeMb: 50, CacheDurationDays: 7, AutoCleanup: true}
	if c.Device.MaxCacheSizeMb != nil {
		p.MaxCacheSizeMb = *c.Device.MaxCacheSizeMb
	}
	if c.Device.CacheDurationDays != nil {
		p.CacheDurationDays = *c.Device.CacheDurationDays
	}
	if c.Device.AutoCleanup != nil {
		p.AutoCleanup = *c.Device.AutoCleanup
	}
	return p
}

// DeviceID returns the configured device id or the machine id derived one
// DeviceID 返回配置的设备 ID，未配置时使用本机 machine id 派生
func (c *AppConfig) DeviceID() string {
	if c.Device.ID != "" {
		return c.Device.ID
	}
	return util.DefaultDeviceID(Name)
}
