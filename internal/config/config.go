package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用程序配置
type Config struct {
	Port    string // HTTP 监听端口
	Discord DiscordConfig
}

// DiscordConfig Discord REST 客户端配置
type DiscordConfig struct {
	BaseURL string        // API 基础地址（留空使用官方地址）
	Timeout time.Duration // 单次请求超时
	MaxRPS  int           // 出站请求速率上限（每秒，所有任务共享）
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// .env 不存在时静默跳过
	_ = godotenv.Load()

	cfg := &Config{
		Port: os.Getenv("PORT"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	discordCfg, err := loadDiscordConfig()
	if err != nil {
		return nil, err
	}
	cfg.Discord = discordCfg

	return cfg, nil
}

func loadDiscordConfig() (DiscordConfig, error) {
	var cfg DiscordConfig

	cfg.BaseURL = strings.TrimSpace(os.Getenv("DISCORD_API_BASE_URL"))

	if timeoutStr := strings.TrimSpace(os.Getenv("DISCORD_TIMEOUT_SECONDS")); timeoutStr != "" {
		seconds, err := strconv.Atoi(timeoutStr)
		if err != nil || seconds <= 0 {
			return DiscordConfig{}, fmt.Errorf("invalid DISCORD_TIMEOUT_SECONDS: %s", timeoutStr)
		}
		cfg.Timeout = time.Duration(seconds) * time.Second
	} else {
		cfg.Timeout = 30 * time.Second
	}

	if rpsStr := strings.TrimSpace(os.Getenv("DISCORD_MAX_RPS")); rpsStr != "" {
		rps, err := strconv.Atoi(rpsStr)
		if err != nil || rps <= 0 {
			return DiscordConfig{}, fmt.Errorf("invalid DISCORD_MAX_RPS: %s", rpsStr)
		}
		cfg.MaxRPS = rps
	} else {
		cfg.MaxRPS = 40
	}

	return cfg, nil
}
