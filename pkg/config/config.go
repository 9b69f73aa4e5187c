package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Registration modes
const (
	RegistrationReview = "review" // 注册生成待审核的入会申请
	RegistrationDirect = "direct" // 注册即刻发放 PIN 与 GEN ALIXIR ID
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// AdminAccount is an administrator credential; the password is stored as a bcrypt hash.
type AdminAccount struct {
	Email        string
	PasswordHash string
}

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	SupabaseURL  string
	SupabaseKey  string

	// 认证配置
	JWTSecret      string
	TokenTTLHours  int
	BcryptCost     int
	AdminAccounts  []AdminAccount
	LoginPerMinute int

	// 注册流程
	RegistrationMode string

	// 邮件配置
	MailAPIURL string
	MailAPIKey string
	MailFrom   string

	// CORS配置
	AllowedOrigins []string

	// 日志与调试
	LogLevel string
	Debug    bool
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// godotenv.Load 不会覆盖已存在的环境变量；文件缺失时忽略
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	config := &Config{
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		Port:             getEnvWithDefault("PORT", "3000"),
		UseLocalDB:       getEnvBool("USE_LOCAL_DB", false),
		LocalDataDir:     getEnvWithDefault("LOCAL_DATA_DIR", "./data"),
		JWTSecret:        getEnvWithDefault("JWT_SECRET", defaultJWTSecret),
		TokenTTLHours:    getEnvInt("TOKEN_TTL_HOURS", 7*24),
		BcryptCost:       getEnvInt("BCRYPT_COST", 12),
		LoginPerMinute:   getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
		RegistrationMode: strings.ToLower(getEnvWithDefault("REGISTRATION_MODE", RegistrationReview)),
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "info"),
		Debug:            getEnvBool("DEBUG", false),
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))

	// 邮件配置
	config.MailAPIURL = strings.TrimSpace(os.Getenv("MAIL_API_URL"))
	config.MailAPIKey = strings.TrimSpace(os.Getenv("MAIL_API_KEY"))
	config.MailFrom = strings.TrimSpace(getEnvWithDefault("MAIL_FROM", "GEN ALIXIR <noreply@ecodreum.com>"))

	config.AdminAccounts = parseAdminAccounts(os.Getenv("ADMIN_ACCOUNTS"))

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	if config.Environment == "production" {
		// 生产环境关闭调试
		config.Debug = false
		if config.PostgresDSN != "" || (config.SupabaseURL != "" && config.SupabaseKey != "") {
			config.UseLocalDB = false
		}
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	switch c.RegistrationMode {
	case RegistrationReview, RegistrationDirect:
	default:
		return fmt.Errorf("REGISTRATION_MODE must be %q or %q", RegistrationReview, RegistrationDirect)
	}

	// 验证数据库配置
	if c.UseLocalDB {
		if c.IsProduction() {
			return fmt.Errorf("local file database is not allowed in production")
		}
	} else if c.PostgresDSN == "" && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或 SUPABASE_URL+SUPABASE_SERVICE_KEY")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// MailEnabled 是否配置了邮件服务
func (c *Config) MailEnabled() bool {
	return c.MailAPIKey != ""
}

// parseAdminAccounts parses "email:bcrypt-hash,email2:hash2".
// Bcrypt hashes contain '$' so the value must be single-quoted in .env files.
func parseAdminAccounts(raw string) []AdminAccount {
	var accounts []AdminAccount
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		accounts = append(accounts, AdminAccount{
			Email:        strings.ToLower(strings.TrimSpace(parts[0])),
			PasswordHash: strings.TrimSpace(parts[1]),
		})
	}
	return accounts
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}
