// Package config loads runtime settings from the environment (optionally a
// .env file) and business rules from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the capacity service.
type Config struct {
	Port                 string
	DatabaseURL          string
	DataPath             string
	RedisURL             string
	CompanyCapacityHours float64
	CacheTTL             time.Duration
	FetchTimeout         time.Duration
	RulesPath            string
	Rules                Rules
}

// Rules are business decisions kept out of code.
type Rules struct {
	JobFilter  JobFilter `yaml:"job_filter"`
	FieldRoles []string  `yaml:"field_roles"`
}

// JobFilter decides which jobs count toward company-wide views.
type JobFilter struct {
	Status            string   `yaml:"status"`
	ExcludedCustomers []string `yaml:"excluded_customers"`
	ExcludedProjects  []string `yaml:"excluded_projects"`
}

// DefaultRules mirrors what the portal did before the rules were configurable.
func DefaultRules() Rules {
	return Rules{
		JobFilter: JobFilter{Status: "In Progress"},
	}
}

// Qualifies reports whether a job passes the filter. Comparisons are exact
// string matches after trimming.
func (f JobFilter) Qualifies(customer, projectName, status string) bool {
	if f.Status != "" && strings.TrimSpace(status) != f.Status {
		return false
	}
	for _, c := range f.ExcludedCustomers {
		if strings.TrimSpace(customer) == c {
			return false
		}
	}
	for _, p := range f.ExcludedProjects {
		if strings.TrimSpace(projectName) == p {
			return false
		}
	}
	return true
}

// FieldQualified reports whether a worker role may be put on a crew. An empty
// role list admits everyone.
func (r Rules) FieldQualified(role string) bool {
	if len(r.FieldRoles) == 0 {
		return true
	}
	role = strings.TrimSpace(role)
	for _, fr := range r.FieldRoles {
		if strings.EqualFold(fr, role) {
			return true
		}
	}
	return false
}

// LoadEnv loads the first .env file found in the working directory or its
// parents. A missing file is not an error.
func LoadEnv() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	LoadEnv()

	cfg := &Config{
		Port:                 os.Getenv("PORT"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DataPath:             os.Getenv("DATA_PATH"),
		RedisURL:             os.Getenv("REDIS_URL"),
		RulesPath:            os.Getenv("RULES_PATH"),
		CompanyCapacityHours: 400,
		CacheTTL:             5 * time.Minute,
		FetchTimeout:         6 * time.Second,
	}
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "capacity.db"
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = "rules.yaml"
	}

	if s := os.Getenv("COMPANY_CAPACITY_HOURS"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("COMPANY_CAPACITY_HOURS must be a non-negative number, got %q", s)
		}
		cfg.CompanyCapacityHours = v
	}
	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"CACHE_TTL", &cfg.CacheTTL},
		{"FETCH_TIMEOUT", &cfg.FetchTimeout},
	} {
		s := os.Getenv(d.env)
		if s == "" {
			continue
		}
		v, err := time.ParseDuration(s)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration, got %q", d.env, s)
		}
		*d.dst = v
	}

	rules, err := LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	return cfg, nil
}

// LoadRules reads the YAML rules file. A missing file yields DefaultRules;
// keys absent from the file keep their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules, nil
	}
	if err != nil {
		return rules, fmt.Errorf("read rules %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rules, nil
}
