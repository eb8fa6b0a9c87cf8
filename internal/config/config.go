// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

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
	Session       SessionConfig       `mapstructure:"session"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Dataset       DatasetConfig       `mapstructure:"dataset"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	YouTube       YouTubeConfig       `mapstructure:"youtube"`
	Piston        PistonConfig        `mapstructure:"piston"`
	Coding        CodingConfig        `mapstructure:"coding"`
	Interview     InterviewConfig     `mapstructure:"interview"`
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
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储会话令牌的签名配置。
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	SessionExpireDays int    `mapstructure:"session_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	OutputPath   string `mapstructure:"output_path"`
	MaxSizeMB    int    `mapstructure:"max_size_mb"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAgeDays   int    `mapstructure:"max_age_days"`
	Compress     bool   `mapstructure:"compress"`
	MaxBodyBytes int    `mapstructure:"max_body_bytes"`
}

// SessionConfig 控制会话存储的过期策略与索引目录。
type SessionConfig struct {
	TTLMinutes             int    `mapstructure:"ttl_minutes"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
	IndexDir               string `mapstructure:"index_dir"`
	CookieName             string `mapstructure:"cookie_name"`
	HeaderName             string `mapstructure:"header_name"`
}

// UploadConfig 限制上传大小与允许的扩展名。
type UploadConfig struct {
	MaxRequestBytes    int64    `mapstructure:"max_request_bytes"`
	MaxFileBytes       int64    `mapstructure:"max_file_bytes"`
	DatasetExtensions  []string `mapstructure:"dataset_extensions"`
	DocumentExtensions []string `mapstructure:"document_extensions"`
}

// DatasetConfig 控制表格问答的预览与查询沙箱。
type DatasetConfig struct {
	PreviewRows         int `mapstructure:"preview_rows"`
	SampleRows          int `mapstructure:"sample_rows"`
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds"`
	MaxResultRows       int `mapstructure:"max_result_rows"`
}

// RetrievalConfig 控制切块与检索参数。
type RetrievalConfig struct {
	ChunkSize        int     `mapstructure:"chunk_size"`
	ChunkOverlap     int     `mapstructure:"chunk_overlap"`
	DocumentTopK     int     `mapstructure:"document_top_k"`
	VideoTopK        int     `mapstructure:"video_top_k"`
	MaxTopK          int     `mapstructure:"max_top_k"`
	HighThreshold    float64 `mapstructure:"high_threshold"`
	MediumThreshold  float64 `mapstructure:"medium_threshold"`
	EmbedBatchSize   int     `mapstructure:"embed_batch_size"`
	EmbedConcurrency int     `mapstructure:"embed_concurrency"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
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
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// YouTubeConfig 存储字幕抓取相关的配置。
type YouTubeConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	Languages      []string `mapstructure:"languages"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// PistonConfig 存储远程代码执行服务的配置。
type PistonConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	CompileTimeoutMs int    `mapstructure:"compile_timeout_ms"`
	RunTimeoutMs     int    `mapstructure:"run_timeout_ms"`
}

// CodingConfig 控制编程练习的生成。
type CodingConfig struct {
	HistorySize int `mapstructure:"history_size"`
	NumHints    int `mapstructure:"num_hints"`
}

// InterviewConfig 控制模拟面试的题目与评分。
type InterviewConfig struct {
	NumQuestions     int `mapstructure:"num_questions"`
	TimeLimitSeconds int `mapstructure:"time_limit_seconds"`
	MinAnswerLength  int `mapstructure:"min_answer_length"`
	StateTTLHours    int `mapstructure:"state_ttl_hours"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量以 INSIGHT_ 为前缀覆盖同名配置项，例如 INSIGHT_LLM_API_KEY。
func Init(configPath string) {
	if err := Load(configPath, &Conf); err != nil {
		panic(err)
	}
}

// Load 读取配置文件到 out，未出现的键使用默认值。
func Load(configPath string, out *Config) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 100)

	v.SetDefault("jwt.session_expire_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.max_body_bytes", 2048)

	v.SetDefault("session.ttl_minutes", 120)
	v.SetDefault("session.cleanup_interval_minutes", 10)
	v.SetDefault("session.index_dir", "./data/indexes")
	v.SetDefault("session.cookie_name", "session_token")
	v.SetDefault("session.header_name", "X-Session-Token")

	v.SetDefault("upload.max_request_bytes", 16<<20)
	v.SetDefault("upload.max_file_bytes", 16<<20)
	v.SetDefault("upload.dataset_extensions", []string{".csv", ".xlsx", ".json"})
	v.SetDefault("upload.document_extensions", []string{".pdf", ".ppt", ".pptx", ".docx", ".txt"})

	v.SetDefault("dataset.preview_rows", 5)
	v.SetDefault("dataset.sample_rows", 3)
	v.SetDefault("dataset.query_timeout_seconds", 10)
	v.SetDefault("dataset.max_result_rows", 200)

	v.SetDefault("retrieval.chunk_size", 1000)
	v.SetDefault("retrieval.chunk_overlap", 200)
	v.SetDefault("retrieval.document_top_k", 3)
	v.SetDefault("retrieval.video_top_k", 4)
	v.SetDefault("retrieval.max_top_k", 10)
	v.SetDefault("retrieval.high_threshold", 0.75)
	v.SetDefault("retrieval.medium_threshold", 0.5)
	v.SetDefault("retrieval.embed_batch_size", 16)
	v.SetDefault("retrieval.embed_concurrency", 4)

	v.SetDefault("kafka.topic", "ingestion-events")
	v.SetDefault("kafka.group_id", "insight-qa-go-consumer")

	v.SetDefault("tika.timeout_seconds", 60)

	v.SetDefault("elasticsearch.index_name", "session_chunks")

	v.SetDefault("minio.bucket_name", "insight-uploads")

	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.generation.temperature", 0.0)
	v.SetDefault("llm.generation.top_p", 0.95)
	v.SetDefault("llm.generation.max_tokens", 15360)

	v.SetDefault("youtube.base_url", "https://www.youtube.com")
	v.SetDefault("youtube.languages", []string{"en"})
	v.SetDefault("youtube.timeout_seconds", 30)

	v.SetDefault("piston.base_url", "https://emkc.org/api/v2/piston")
	v.SetDefault("piston.timeout_seconds", 15)
	v.SetDefault("piston.compile_timeout_ms", 10000)
	v.SetDefault("piston.run_timeout_ms", 5000)

	v.SetDefault("coding.history_size", 10)
	v.SetDefault("coding.num_hints", 3)

	v.SetDefault("interview.num_questions", 5)
	v.SetDefault("interview.time_limit_seconds", 180)
	v.SetDefault("interview.min_answer_length", 10)
	v.SetDefault("interview.state_ttl_hours", 24)
}
