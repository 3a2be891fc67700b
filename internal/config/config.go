package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config (daily run lock)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Scheduler
	ScheduleCron      string // cron spec for the daily reminder job
	MilestoneLeadDays []int  // lead times in days before expiry, e.g. [7, 3]

	// Sender
	SenderMode string // "log" or "sns"
	SNSRegion  string // AWS region for SNS (SMS)
	SMSMaxLen  int    // max SMS body length before truncation
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "renewd",
		DBPassword: "",
		DBName:     "renewd",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		// Daily at 09:00 local time, 7-day and 3-day reminders
		ScheduleCron:      "0 9 * * *",
		MilestoneLeadDays: []int{7, 3},

		SenderMode: "log",
		SNSRegion:  "us-east-1",
		SMSMaxLen:  480,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Scheduler config
	if spec := os.Getenv("SCHEDULE_CRON"); spec != "" {
		cfg.ScheduleCron = spec
	}

	if leads := os.Getenv("MILESTONE_LEAD_DAYS"); leads != "" {
		days, err := parseLeadDays(leads)
		if err != nil {
			return nil, fmt.Errorf("invalid MILESTONE_LEAD_DAYS: %w", err)
		}
		cfg.MilestoneLeadDays = days
	}

	// Sender config
	if mode := os.Getenv("SENDER_MODE"); mode != "" {
		if mode != "log" && mode != "sns" {
			return nil, fmt.Errorf("invalid SENDER_MODE: %q (must be log or sns)", mode)
		}
		cfg.SenderMode = mode
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.SNSRegion = region
	}

	if maxLen := os.Getenv("SMS_MAX_LEN"); maxLen != "" {
		n, err := strconv.Atoi(maxLen)
		if err != nil {
			return nil, fmt.Errorf("invalid SMS_MAX_LEN: %w", err)
		}
		cfg.SMSMaxLen = n
	}

	return cfg, nil
}

// parseLeadDays parses a comma-separated list like "7,3" into lead days.
// Duplicates are rejected because each lead time maps to one milestone.
func parseLeadDays(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	seen := make(map[int]bool)

	for _, part := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("lead days must be positive, got %d", d)
		}
		if seen[d] {
			return nil, fmt.Errorf("duplicate lead days: %d", d)
		}
		seen[d] = true
		days = append(days, d)
	}

	if len(days) == 0 {
		return nil, fmt.Errorf("no lead days configured")
	}

	return days, nil
}
