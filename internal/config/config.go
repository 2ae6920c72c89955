/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted as YAML.
// Environment variables are read-only overrides applied at load time; command-line flags
// are applied by the caller on top of the result.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Storage       StorageConfig `yaml:"storage"`
	Logging       LoggingConfig `yaml:"logging"`
	Backup        BackupConfig  `yaml:"backup"`
	Server        ServerConfig  `yaml:"server"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Source  bool   `yaml:"source"`
	File    string `yaml:"file"` // empty: <data_dir>/logs/tasksphere.log
	Console bool   `yaml:"console"`
}

// BackupConfig selects where create_backup may also store archives.
type BackupConfig struct {
	Target         TargetConfig `yaml:"target"`
	StoreByDefault bool         `yaml:"store_by_default"`
}

type TargetConfig struct {
	Driver string   `yaml:"driver"` // "", fs, s3, memory
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config never carries the secret key; see S3Secret.
type S3Config struct {
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	PathStyle   bool   `yaml:"path_style"`
	AccessKeyID string `yaml:"access_key_id"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

const currentConfigVersion = 1

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: currentConfigVersion,
		Storage:       StorageConfig{DataDir: defaultDataDir()},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Server:        ServerConfig{Addr: ":3001"},
	}
}

// defaultDataDir is "Data" beside the executable, falling back to the working directory.
func defaultDataDir() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "Data")
	}
	return "Data"
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "TASKSPHERE_CONFIG"
	EnvDataDir        = "TASKSPHERE_DATA_DIR"
	EnvBackupDriver   = "TASKSPHERE_BACKUP_DRIVER"
	EnvBackupFSRoot   = "TASKSPHERE_BACKUP_FS_ROOT"
	EnvS3Bucket       = "TASKSPHERE_S3_BUCKET"
	EnvS3Region       = "TASKSPHERE_S3_REGION"
	EnvS3Endpoint     = "TASKSPHERE_S3_ENDPOINT"
	EnvS3PathStyle    = "TASKSPHERE_S3_PATH_STYLE"
	EnvS3AccessKeyID  = "TASKSPHERE_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "TASKSPHERE_S3_SECRET_ACCESS_KEY"
	EnvServerAddr     = "TASKSPHERE_SERVER_ADDR"
	EnvLogLevel       = "TASKSPHERE_LOG_LEVEL"
	EnvLogFormat      = "TASKSPHERE_LOG_FORMAT"
	EnvLogSource      = "TASKSPHERE_LOG_SOURCE"
	EnvLogFile        = "TASKSPHERE_LOG_FILE"
	EnvLogConsole     = "TASKSPHERE_LOG_CONSOLE"
	EnvStoreByDefault = "TASKSPHERE_BACKUP_STORE_BY_DEFAULT"
)

// ConfigPath returns the config file path: $TASKSPHERE_CONFIG or the per-user location.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "TaskSphere")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "TaskSphere")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "tasksphere")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "tasksphere")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the config file at path (ConfigPath when empty), applies defaults, and merges
// environment overrides. A missing file is not an error; an unparsable one is.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes cfg as YAML to path (ConfigPath when empty).
func Save(path string, cfg AppConfig) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LogFile resolves the log file path, defaulting into the data directory.
func (c AppConfig) LogFile() string {
	if f := strings.TrimSpace(c.Logging.File); f != "" {
		return f
	}
	return filepath.Join(c.Storage.DataDir, "logs", "tasksphere.log")
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Storage.DataDir); v != "" {
		dst.Storage.DataDir = v
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	dst.Logging.Console = src.Logging.Console
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
	if v := strings.TrimSpace(src.Backup.Target.Driver); v != "" {
		dst.Backup.Target.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Backup.Target.FSRoot); v != "" {
		dst.Backup.Target.FSRoot = v
	}
	s3 := src.Backup.Target.S3
	if s3.Bucket != "" {
		dst.Backup.Target.S3.Bucket = s3.Bucket
	}
	if s3.Region != "" {
		dst.Backup.Target.S3.Region = s3.Region
	}
	if s3.Endpoint != "" {
		dst.Backup.Target.S3.Endpoint = s3.Endpoint
	}
	if s3.AccessKeyID != "" {
		dst.Backup.Target.S3.AccessKeyID = s3.AccessKeyID
	}
	dst.Backup.Target.S3.PathStyle = s3.PathStyle
	dst.Backup.StoreByDefault = src.Backup.StoreByDefault
	if v := strings.TrimSpace(src.Server.Addr); v != "" {
		dst.Server.Addr = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = parseBool(v)
		}
	}
	str(EnvDataDir, &cfg.Storage.DataDir)
	str(EnvBackupDriver, &cfg.Backup.Target.Driver)
	cfg.Backup.Target.Driver = strings.ToLower(cfg.Backup.Target.Driver)
	str(EnvBackupFSRoot, &cfg.Backup.Target.FSRoot)
	str(EnvS3Bucket, &cfg.Backup.Target.S3.Bucket)
	str(EnvS3Region, &cfg.Backup.Target.S3.Region)
	str(EnvS3Endpoint, &cfg.Backup.Target.S3.Endpoint)
	str(EnvS3AccessKeyID, &cfg.Backup.Target.S3.AccessKeyID)
	boolean(EnvS3PathStyle, &cfg.Backup.Target.S3.PathStyle)
	boolean(EnvStoreByDefault, &cfg.Backup.StoreByDefault)
	str(EnvServerAddr, &cfg.Server.Addr)
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	boolean(EnvLogSource, &cfg.Logging.Source)
	boolean(EnvLogConsole, &cfg.Logging.Console)
	str(EnvLogFile, &cfg.Logging.File)
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}
