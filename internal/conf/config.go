package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/attachment-store/internal/pkg/database"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/lk2023060901/attachment-store/internal/pkg/minio"
	"github.com/lk2023060901/attachment-store/internal/pkg/redis"
	"github.com/lk2023060901/attachment-store/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 ATTACHCTL_ATTACHMENTS_ROOT
const EnvPrefix = "ATTACHCTL"

type Config struct {
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Database    database.Config   `mapstructure:"database"`
	Redis       redis.Config      `mapstructure:"redis"`
	MinIO       minio.Config      `mapstructure:"minio"`
	Log         logger.Config     `mapstructure:"log"`
}

type AttachmentsConfig struct {
	// Root 附件根目录
	Root string `mapstructure:"root"`
	// KeyPrefix 远端对象 key 前缀
	KeyPrefix string `mapstructure:"key_prefix"`
	// WarmRemoteReads FS_PRIMARY 模式下读取前先完整读一遍远端
	WarmRemoteReads bool `mapstructure:"warm_remote_reads"`
	// Secondary 次要后端写入使用的 worker pool
	Secondary workerpool.Config `mapstructure:"secondary"`
	// Async 服务层并发调用存储（批量移动、存在性检查）使用的 worker pool
	Async workerpool.Config `mapstructure:"async"`
	// ImportConcurrency 迁移默认并发数
	ImportConcurrency int `mapstructure:"import_concurrency"`
	// ImportLockTTL 迁移任务持有 redis 锁的时长
	ImportLockTTL time.Duration `mapstructure:"import_lock_ttl"`
	// Flags 未启用 redis 时使用的静态开关
	Flags FlagsConfig `mapstructure:"flags"`
	// ZipMaxEntries 压缩包列表默认上限
	ZipMaxEntries int `mapstructure:"zip_max_entries"`
}

// FlagsConfig 四个迁移开关
type FlagsConfig struct {
	FSOnly        bool `mapstructure:"fs_only"`
	FSPrimary     bool `mapstructure:"fs_primary"`
	RemotePrimary bool `mapstructure:"remote_primary"`
	RemoteOnly    bool `mapstructure:"remote_only"`
}

// Load 读取配置文件并叠加环境变量。path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验跨模块的配置项
func (c *Config) Validate() error {
	if c.Attachments.Root == "" {
		return fmt.Errorf("attachments.root is required")
	}
	if c.Attachments.ImportConcurrency <= 0 {
		return fmt.Errorf("attachments.import_concurrency must be > 0")
	}
	if c.Attachments.Secondary.Size <= 0 {
		return fmt.Errorf("attachments.secondary.size must be > 0")
	}
	if c.Attachments.Async.Size <= 0 {
		return fmt.Errorf("attachments.async.size must be > 0")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("attachments.root", "data/attachments")
	v.SetDefault("attachments.warm_remote_reads", true)
	v.SetDefault("attachments.key_prefix", "attachments")
	v.SetDefault("attachments.secondary.size", 16)
	v.SetDefault("attachments.secondary.nonblocking", false)
	v.SetDefault("attachments.secondary.expiry_duration", 10*time.Second)
	v.SetDefault("attachments.async.size", 8)
	v.SetDefault("attachments.async.expiry_duration", 10*time.Second)
	v.SetDefault("attachments.import_concurrency", 8)
	v.SetDefault("attachments.import_lock_ttl", 6*time.Hour)
	v.SetDefault("attachments.zip_max_entries", 100)
	v.SetDefault("attachments.flags.fs_only", false)
	v.SetDefault("attachments.flags.fs_primary", false)
	v.SetDefault("attachments.flags.remote_primary", false)
	v.SetDefault("attachments.flags.remote_only", false)

	db := database.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.path", "")
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.automigrate", db.AutoMigrate)

	rd := redis.DefaultConfig()
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)
	v.SetDefault("redis.flags_key", rd.FlagsKey)

	mc := minio.DefaultConfig()
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", mc.Bucket)
	v.SetDefault("minio.create_bucket", false)
	v.SetDefault("minio.bucket_lookup", string(mc.BucketLookup))
	v.SetDefault("minio.request_timeout", mc.RequestTimeout)

	lg := logger.DefaultConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.format", lg.Format)
	v.SetDefault("log.output", lg.Output)
	v.SetDefault("log.file.filename", lg.File.Filename)
	v.SetDefault("log.file.maxsize", lg.File.MaxSize)
	v.SetDefault("log.file.maxage", lg.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lg.File.MaxBackups)
	v.SetDefault("log.file.compress", lg.File.Compress)
	v.SetDefault("log.enablecaller", lg.EnableCaller)
	v.SetDefault("log.enablestacktrace", lg.EnableStacktrace)
}
