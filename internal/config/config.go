package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Codegen   CodegenConfig
	Gemini    GeminiConfig
	Render    RenderConfig
	Pipeline  PipelineConfig
	R2        R2Config
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GeneratePerHour int
}

// CodegenConfig points at the OpenAI-compatible code generation model.
type CodegenConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiConfig points at the model used for scene decomposition and
// narration rewrites.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RenderConfig controls the external renderer subprocess and asset layout.
type RenderConfig struct {
	ManimBin    string
	PythonBin   string
	Quality     string // manim quality flag suffix, e.g. "ql" for -pql
	WorkDir     string // parent of per-job output_<id> staging dirs
	PublishDir  string // served by the static video file server
	PublishName string // single published asset filename
}

// PipelineConfig carries the retry budgets of the generation pipeline.
// Defaults match the production values; tests shrink them.
type PipelineConfig struct {
	OverallAttempts   int
	SceneAttempts     int
	SynthAttempts     int
	RenderRetries     int
	AudioAttempts     int
	DecomposeRetries  int
	OverallRetryDelay time.Duration
	SceneRetryDelay   time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("CODEGEN_API_KEY")
	readSecret("GEMINI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("codegen.api_key", "CODEGEN_API_KEY")
	_ = viper.BindEnv("codegen.base_url", "CODEGEN_BASE_URL")
	_ = viper.BindEnv("codegen.model", "CODEGEN_MODEL")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("render.manim_bin", "MANIM_BIN")
	_ = viper.BindEnv("render.python_bin", "PYTHON_BIN")
	_ = viper.BindEnv("render.quality", "RENDER_QUALITY")
	_ = viper.BindEnv("render.work_dir", "RENDER_WORK_DIR")
	_ = viper.BindEnv("render.publish_dir", "RENDER_PUBLISH_DIR")
	_ = viper.BindEnv("render.publish_name", "RENDER_PUBLISH_NAME")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "5555")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.generate_per_hour", 10)

	// Codegen model defaults (DeepSeek, OpenAI-compatible API)
	viper.SetDefault("codegen.base_url", "https://api.deepseek.com")
	viper.SetDefault("codegen.model", "deepseek-chat")

	// Gemini defaults
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")

	// Renderer defaults
	viper.SetDefault("render.manim_bin", "manim")
	viper.SetDefault("render.python_bin", "python3")
	viper.SetDefault("render.quality", "ql")
	viper.SetDefault("render.work_dir", ".")
	viper.SetDefault("render.publish_dir", "video_server")
	viper.SetDefault("render.publish_name", "temp.mp4")

	// Pipeline retry budgets
	viper.SetDefault("pipeline.overall_attempts", 5)
	viper.SetDefault("pipeline.scene_attempts", 5)
	viper.SetDefault("pipeline.synth_attempts", 20)
	viper.SetDefault("pipeline.render_retries", 5)
	viper.SetDefault("pipeline.audio_attempts", 5)
	viper.SetDefault("pipeline.decompose_retries", 5)
	viper.SetDefault("pipeline.overall_retry_delay", "5s")
	viper.SetDefault("pipeline.scene_retry_delay", "3s")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
		},
		Codegen: CodegenConfig{
			APIKey:  viper.GetString("codegen.api_key"),
			BaseURL: viper.GetString("codegen.base_url"),
			Model:   viper.GetString("codegen.model"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("gemini.api_key"),
			BaseURL: viper.GetString("gemini.base_url"),
			Model:   viper.GetString("gemini.model"),
		},
		Render: RenderConfig{
			ManimBin:    viper.GetString("render.manim_bin"),
			PythonBin:   viper.GetString("render.python_bin"),
			Quality:     viper.GetString("render.quality"),
			WorkDir:     viper.GetString("render.work_dir"),
			PublishDir:  viper.GetString("render.publish_dir"),
			PublishName: viper.GetString("render.publish_name"),
		},
		Pipeline: PipelineConfig{
			OverallAttempts:   viper.GetInt("pipeline.overall_attempts"),
			SceneAttempts:     viper.GetInt("pipeline.scene_attempts"),
			SynthAttempts:     viper.GetInt("pipeline.synth_attempts"),
			RenderRetries:     viper.GetInt("pipeline.render_retries"),
			AudioAttempts:     viper.GetInt("pipeline.audio_attempts"),
			DecomposeRetries:  viper.GetInt("pipeline.decompose_retries"),
			OverallRetryDelay: viper.GetDuration("pipeline.overall_retry_delay"),
			SceneRetryDelay:   viper.GetDuration("pipeline.scene_retry_delay"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
	}

	return cfg, nil
}
