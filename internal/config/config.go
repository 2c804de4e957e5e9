// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Document      DocumentConfig      `mapstructure:"document"`
	URLFetch      URLFetchConfig      `mapstructure:"url_fetch"`
	SQLGen        SQLGenConfig        `mapstructure:"sqlgen"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
// Provider 是进程启动时的默认提供方（local / cloud），运行期可通过设置接口切换。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"`
	Local      LocalLLMConfig      `mapstructure:"local"`
	Cloud      CloudLLMConfig      `mapstructure:"cloud"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LocalLLMConfig 存储本地模型服务（Ollama 风格 HTTP 接口）的配置。
type LocalLLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// CloudLLMConfig 存储云端模型服务（OpenAI 兼容接口）的配置。
type CloudLLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// CacheConfig 存储应答缓存相关的配置。
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// DocumentConfig 存储文档索引相关的配置。
type DocumentConfig struct {
	ChunkSize         int      `mapstructure:"chunk_size"`
	ChunkOverlap      int      `mapstructure:"chunk_overlap"`
	MaxFileSize       int64    `mapstructure:"max_file_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// URLFetchConfig 存储问题中 URL 抓取相关的配置。
type URLFetchConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	MaxContentSize int64 `mapstructure:"max_content_size"`
}

// SQLGenConfig 存储 NL→SQL 生成相关的配置。
// EnableOptimizer 默认关闭，正则改写仅在显式开启时生效。
type SQLGenConfig struct {
	EnableOptimizer bool `mapstructure:"enable_optimizer"`
	DefaultLimit    int  `mapstructure:"default_limit"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的可选项填充默认值。
func applyDefaults() {
	if Conf.Cache.TTLSeconds <= 0 {
		Conf.Cache.TTLSeconds = 3600
	}
	if Conf.Document.ChunkSize <= 0 {
		Conf.Document.ChunkSize = 512
	}
	if Conf.Document.ChunkOverlap <= 0 {
		Conf.Document.ChunkOverlap = 64
	}
	if Conf.Document.MaxFileSize <= 0 {
		Conf.Document.MaxFileSize = 10 * 1024 * 1024
	}
	if len(Conf.Document.AllowedExtensions) == 0 {
		Conf.Document.AllowedExtensions = []string{"txt", "md", "pdf", "html", "docx"}
	}
	if Conf.URLFetch.TimeoutSeconds <= 0 {
		Conf.URLFetch.TimeoutSeconds = 10
	}
	if Conf.URLFetch.MaxContentSize <= 0 {
		Conf.URLFetch.MaxContentSize = 1024 * 1024
	}
	if Conf.SQLGen.DefaultLimit <= 0 {
		Conf.SQLGen.DefaultLimit = 1000
	}
	if Conf.LLM.Provider == "" {
		Conf.LLM.Provider = "local"
	}
}
