// Package settings holds the tool-level configuration resolved from flags,
// environment, .env and the optional YAML settings file.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProfile      = "default"
	DefaultRegion       = "us-east-1"
	DefaultBucketName   = "my-deploy-tool-bucket"
	DefaultConfigPath   = "deploy_tool_config.json"
	DefaultTerraformDir = "terraform"
	DefaultClonePrefix  = "cloned-"
	DefaultMonitorName  = "monitoring-instance"
	DefaultProbeTimeout = 5 * time.Second
)

type Settings struct {
	AWS         AWSSettings
	BucketName  string `validate:"required"`
	ConfigPath  string `validate:"required"`
	ClonePrefix string
	Terraform   TerraformSettings
	Build       BuildSettings
	Monitor     MonitorSettings
	GitHub      GitHubSettings
	Log         LogSettings
	Debug       bool
}

type AWSSettings struct {
	Profile       string `validate:"required"`
	DefaultRegion string `validate:"required"`
}

type TerraformSettings struct {
	Dir    string `validate:"required"`
	Binary string `validate:"required"`
}

type BuildSettings struct {
	SourceMaps bool
}

type MonitorSettings struct {
	InstanceName string        `validate:"required"`
	ProbeTimeout time.Duration `validate:"gt=0"`
}

type GitHubSettings struct {
	Token string
}

type LogSettings struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("aws.profile", DefaultProfile)
	v.SetDefault("aws.default_region", DefaultRegion)
	v.SetDefault("bucket_name", DefaultBucketName)
	v.SetDefault("config_path", DefaultConfigPath)
	v.SetDefault("clone_prefix", DefaultClonePrefix)
	v.SetDefault("terraform.dir", DefaultTerraformDir)
	v.SetDefault("terraform.binary", "terraform")
	v.SetDefault("build.source_maps", false)
	v.SetDefault("monitor.instance_name", DefaultMonitorName)
	v.SetDefault("monitor.probe_timeout", DefaultProbeTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("debug", false)

	v.SetEnvPrefix("DEPLOYTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Ambient variables the AWS and GitHub tooling already understand.
	_ = v.BindEnv("aws.profile", "DEPLOYTOOL_AWS_PROFILE", "AWS_PROFILE")
	_ = v.BindEnv("github.token", "DEPLOYTOOL_GITHUB_TOKEN", "GITHUB_TOKEN")
}

// Load reads the effective settings out of v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		AWS: AWSSettings{
			Profile:       strings.TrimSpace(v.GetString("aws.profile")),
			DefaultRegion: strings.TrimSpace(v.GetString("aws.default_region")),
		},
		BucketName:  strings.TrimSpace(v.GetString("bucket_name")),
		ConfigPath:  strings.TrimSpace(v.GetString("config_path")),
		ClonePrefix: v.GetString("clone_prefix"),
		Terraform: TerraformSettings{
			Dir:    strings.TrimSpace(v.GetString("terraform.dir")),
			Binary: strings.TrimSpace(v.GetString("terraform.binary")),
		},
		Build: BuildSettings{
			SourceMaps: v.GetBool("build.source_maps"),
		},
		Monitor: MonitorSettings{
			InstanceName: strings.TrimSpace(v.GetString("monitor.instance_name")),
			ProbeTimeout: v.GetDuration("monitor.probe_timeout"),
		},
		GitHub: GitHubSettings{
			Token: strings.TrimSpace(v.GetString("github.token")),
		},
		Log: LogSettings{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		},
		Debug: v.GetBool("debug"),
	}
	if s.Debug {
		s.Log.Level = "debug"
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// YAML renders s in the layout the settings file uses.
func (s *Settings) YAML() ([]byte, error) {
	doc := map[string]any{
		"aws": map[string]any{
			"profile":        s.AWS.Profile,
			"default_region": s.AWS.DefaultRegion,
		},
		"bucket_name":  s.BucketName,
		"config_path":  s.ConfigPath,
		"clone_prefix": s.ClonePrefix,
		"terraform": map[string]any{
			"dir":    s.Terraform.Dir,
			"binary": s.Terraform.Binary,
		},
		"build": map[string]any{
			"source_maps": s.Build.SourceMaps,
		},
		"monitor": map[string]any{
			"instance_name": s.Monitor.InstanceName,
			"probe_timeout": s.Monitor.ProbeTimeout.String(),
		},
		"log": map[string]any{
			"level":  s.Log.Level,
			"format": s.Log.Format,
		},
		"debug": s.Debug,
	}
	return yaml.Marshal(doc)
}

// Default returns the settings a fresh install runs with.
func Default() *Settings {
	v := viper.New()
	SetDefaults(v)
	s, err := Load(v)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(err)
	}
	return s
}
