package config

import (
	"time"
)

const (
	defaultConventionPort = "8080"
	defaultPageOrigin     = "http://localhost:8080"
	defaultMaxFileSize    = 10 * 1024 * 1024
)

type ServerConfig struct {
	Addr    string `yaml:"addr" validate:"required"`
	SSLCert string `yaml:"sslCert"`
	SSLKey  string `yaml:"sslKey" validate:"required_with=SSLCert"`
}

type APIConfig struct {
	// BaseURL of the detection API, resolved from PageOrigin when empty.
	BaseURL             string  `yaml:"baseURL" validate:"omitempty,url"`
	PageOrigin          string  `yaml:"pageOrigin" validate:"omitempty,url"`
	ConventionPort      string  `yaml:"conventionPort" validate:"required,numeric"`
	TimeoutSec          int     `yaml:"timeoutSec" validate:"min=0"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold" validate:"gte=0,lte=1"`
	ResultCacheTTLSec   int     `yaml:"resultCacheTTLSec" validate:"min=0"`
	UploadBeforeDetect  bool    `yaml:"uploadBeforeDetect"`
}

// Timeout of zero keeps the transport default.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c APIConfig) ResultCacheTTL() time.Duration {
	return time.Duration(c.ResultCacheTTLSec) * time.Second
}

type UploadConfig struct {
	MaxFileSize int64 `yaml:"maxFileSize" validate:"gt=0"`
}

type FixturesConfig struct {
	Set  string `yaml:"set"`
	File string `yaml:"file"`
}

type ChartConfig struct {
	Width       int `yaml:"width" validate:"gt=0"`
	Height      int `yaml:"height" validate:"gt=0"`
	Padding     int `yaml:"padding" validate:"min=0"`
	MaxBarWidth int `yaml:"maxBarWidth" validate:"gt=0"`
	BarGap      int `yaml:"barGap" validate:"min=0"`
}

type RenderConfig struct {
	DisplayMaxWidth  int         `yaml:"displayMaxWidth" validate:"gt=0"`
	DisplayMaxHeight int         `yaml:"displayMaxHeight" validate:"gt=0"`
	Chart            ChartConfig `yaml:"chart"`
}

type HistoryConfig struct {
	Limit   int    `yaml:"limit" validate:"gt=0,lte=20"`
	DataDir string `yaml:"dataDir"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Endpoint        string `yaml:"endpoint" validate:"required_if=Enabled true"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
}

type ReportConfig struct {
	OutputDir string   `yaml:"outputDir"`
	S3        S3Config `yaml:"s3"`
}

type NSQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	NSQDAddr string `yaml:"nsqdAddr" validate:"required_if=Enabled true"`
	Topic    string `yaml:"topic" validate:"required_if=Enabled true"`
}

type EventsConfig struct {
	NSQ NSQConfig `yaml:"nsq"`
}

type ToastConfig struct {
	DurationMs int `yaml:"durationMs" validate:"gt=0"`
}

func (c ToastConfig) Duration() time.Duration {
	return time.Duration(c.DurationMs) * time.Millisecond
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Upload   UploadConfig   `yaml:"upload"`
	Fixtures FixturesConfig `yaml:"fixtures"`
	Render   RenderConfig   `yaml:"render"`
	History  HistoryConfig  `yaml:"history"`
	Report   ReportConfig   `yaml:"report"`
	Events   EventsConfig   `yaml:"events"`
	Toast    ToastConfig    `yaml:"toast"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8090",
		},
		API: APIConfig{
			PageOrigin:          defaultPageOrigin,
			ConventionPort:      defaultConventionPort,
			ConfidenceThreshold: 0.5,
			ResultCacheTTLSec:   300,
			UploadBeforeDetect:  true,
		},
		Upload: UploadConfig{
			MaxFileSize: defaultMaxFileSize,
		},
		Fixtures: FixturesConfig{
			Set: "oral",
		},
		Render: RenderConfig{
			DisplayMaxWidth:  800,
			DisplayMaxHeight: 600,
			Chart: ChartConfig{
				Width:       400,
				Height:      300,
				Padding:     40,
				MaxBarWidth: 80,
				BarGap:      20,
			},
		},
		History: HistoryConfig{
			Limit: 20,
		},
		Report: ReportConfig{
			OutputDir: ".",
			S3: S3Config{
				Bucket:   "mingmou",
				Endpoint: "127.0.0.1:9000",
				Region:   "us-east-1",
				Prefix:   "reports",
			},
		},
		Events: EventsConfig{
			NSQ: NSQConfig{
				NSQDAddr: "127.0.0.1:4150",
				Topic:    "detection_results",
			},
		},
		Toast: ToastConfig{
			DurationMs: 3000,
		},
	}
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Report.S3.SecretAccessKey != "" {
		out.Report.S3.SecretAccessKey = "******"
	}
	return out
}
