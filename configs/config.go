package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	AdvertiseAddr string

	ScriptsDir      string
	SeedScripts     bool
	WorkDir         string
	ExecTimeout     time.Duration
	PythonBin       string
	NodeBin         string
	ShellBin        string
	JanitorSchedule string

	MaxBodyBytes   int64
	RateLimitRPM   int
	RateLimitBurst int
	CPUSample      time.Duration

	LogLevel    string
	LogEncoding string
	LogOutput   string

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	EtcdEndpoints   []string
	RegistrationTTL int

	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

var defaults = map[string]any{
	"port":           "5000",
	"advertise_addr": "",

	"scripts_dir":      "scripts",
	"seed_scripts":     true,
	"work_dir":         filepath.Join(os.TempDir(), "taskagent"),
	"exec_timeout":     "300s",
	"python_bin":       "python3",
	"node_bin":         "node",
	"shell_bin":        "/bin/bash",
	"janitor_schedule": "@every 10m",

	"max_body_bytes":   10 << 20,
	"rate_limit_rpm":   0,
	"rate_limit_burst": 20,
	"cpu_sample":       "1s",

	"log_level":    "info",
	"log_encoding": "json",
	"log_output":   "stdout",

	"tracing_enabled":     false,
	"otlp_endpoint":       "localhost:4318",
	"tracing_sample_rate": 1.0,

	"redis_addr":     "",
	"redis_password": "",
	"redis_db":       0,
	"redis_channel":  "taskagent:executions",

	"etcd_endpoints":   "",
	"registration_ttl": 15,

	"scripts_s3_bucket":            "",
	"scripts_s3_prefix":            "",
	"scripts_s3_region":            "us-east-1",
	"scripts_s3_endpoint":          "",
	"scripts_s3_access_key_id":     "",
	"scripts_s3_secret_access_key": "",
}

// Load reads configuration from an optional config file (any format viper
// understands) overlaid by environment variables. Every key has a default;
// a malformed duration is an error rather than a silent fallback.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	execTimeout, err := getDuration(v, "exec_timeout")
	if err != nil {
		return nil, err
	}
	cpuSample, err := getDuration(v, "cpu_sample")
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:          v.GetString("port"),
		AdvertiseAddr: v.GetString("advertise_addr"),

		ScriptsDir:      v.GetString("scripts_dir"),
		SeedScripts:     v.GetBool("seed_scripts"),
		WorkDir:         v.GetString("work_dir"),
		ExecTimeout:     execTimeout,
		PythonBin:       v.GetString("python_bin"),
		NodeBin:         v.GetString("node_bin"),
		ShellBin:        v.GetString("shell_bin"),
		JanitorSchedule: v.GetString("janitor_schedule"),

		MaxBodyBytes:   v.GetInt64("max_body_bytes"),
		RateLimitRPM:   v.GetInt("rate_limit_rpm"),
		RateLimitBurst: v.GetInt("rate_limit_burst"),
		CPUSample:      cpuSample,

		LogLevel:    v.GetString("log_level"),
		LogEncoding: v.GetString("log_encoding"),
		LogOutput:   v.GetString("log_output"),

		TracingEnabled:    v.GetBool("tracing_enabled"),
		OTLPEndpoint:      v.GetString("otlp_endpoint"),
		TracingSampleRate: v.GetFloat64("tracing_sample_rate"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		RedisChannel:  v.GetString("redis_channel"),

		EtcdEndpoints:   splitList(v.GetString("etcd_endpoints")),
		RegistrationTTL: v.GetInt("registration_ttl"),

		S3Bucket:          v.GetString("scripts_s3_bucket"),
		S3Prefix:          v.GetString("scripts_s3_prefix"),
		S3Region:          v.GetString("scripts_s3_region"),
		S3Endpoint:        v.GetString("scripts_s3_endpoint"),
		S3AccessKeyID:     v.GetString("scripts_s3_access_key_id"),
		S3SecretAccessKey: v.GetString("scripts_s3_secret_access_key"),
	}, nil
}

// getDuration accepts positive Go durations ("90s", "5m") or a bare number
// of seconds.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	s := v.GetString(key)
	d, ok := parseDuration(s)
	if !ok {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration like 90s or a number of seconds", strings.ToUpper(key), s)
	}
	return d, nil
}

func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, n > 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
