// Package config loads and saves the privguard settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where settings live when no path is given.
const DefaultPath = "config/settings.yaml"

// Sensitivity bounds accepted from users.
const (
	MinSensitivity  = 500
	MaxSensitivity  = 5000
	SensitivityStep = 100
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalid is returned when the settings file cannot be parsed.
var ErrInvalid = errors.New("invalid config file")

// Config is the full settings file.
type Config struct {
	CameraIndex         int            `yaml:"camera_index" json:"camera_index"`
	FrameWidth          int            `yaml:"frame_width" json:"frame_width"`
	FrameHeight         int            `yaml:"frame_height" json:"frame_height"`
	FPS                 int            `yaml:"fps" json:"fps"`
	MotionSensitivity   float64        `yaml:"motion_sensitivity" json:"motion_sensitivity"`
	DetectionDelay      int            `yaml:"detection_delay" json:"detection_delay"` // seconds
	AutoCloseApps       bool           `yaml:"auto_close_apps" json:"auto_close_apps"`
	ShowCameraFeed      bool           `yaml:"show_camera_feed" json:"show_camera_feed"`
	EnableNotifications bool           `yaml:"enable_notifications" json:"enable_notifications"`
	LogLevel            string         `yaml:"log_level" json:"log_level"`
	ProtectedProcesses  []string       `yaml:"protected_processes" json:"protected_processes"`
	TargetApplications  []string       `yaml:"target_applications" json:"target_applications"`
	ForceCloseList      []string       `yaml:"force_close_list" json:"force_close_list"`
	CompanionApp        string         `yaml:"companion_app" json:"companion_app"`
	CompanionAppPath    string         `yaml:"companion_app_path" json:"companion_app_path"`
	SnapshotDir         string         `yaml:"snapshot_dir" json:"snapshot_dir"`
	LogDir              string         `yaml:"log_dir" json:"log_dir"`
	DataDir             string         `yaml:"data_dir" json:"data_dir"`
	Motion              MotionConfig   `yaml:"motion" json:"motion"`
	Response            ResponseConfig `yaml:"response" json:"response"`
}

// MotionConfig holds detector tuning.
type MotionConfig struct {
	WarmupFrames  int  `yaml:"warmup_frames" json:"warmup_frames"`
	History       int  `yaml:"history" json:"history"`
	Mixtures      int  `yaml:"mixtures" json:"mixtures"`
	MinRegionArea int  `yaml:"min_region_area" json:"min_region_area"`
	BlurKernel    int  `yaml:"blur_kernel" json:"blur_kernel"`
	MorphKernel   int  `yaml:"morph_kernel" json:"morph_kernel"`
	DetectShadows bool `yaml:"detect_shadows" json:"detect_shadows"`
}

// ResponseConfig bounds the background breach response.
type ResponseConfig struct {
	TimeoutSeconds       int `yaml:"timeout_seconds" json:"timeout_seconds"`
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`
	MaxInFlight          int `yaml:"max_in_flight" json:"max_in_flight"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		CameraIndex:         1,
		FrameWidth:          640,
		FrameHeight:         480,
		FPS:                 30,
		MotionSensitivity:   1500,
		DetectionDelay:      5,
		AutoCloseApps:       true,
		ShowCameraFeed:      true,
		EnableNotifications: true,
		LogLevel:            "INFO",
		ProtectedProcesses: []string{
			"explorer.exe", "winlogon.exe", "csrss.exe",
			"wininit.exe", "services.exe", "lsass.exe",
			"dwm.exe", "svchost.exe", "system", "registry",
			"python.exe", "pythonw.exe", "privacy_guard.py",
			"privguard", "privguard.exe",
		},
		TargetApplications: []string{
			"chrome.exe", "firefox.exe", "msedge.exe", "notepad.exe",
			"calc.exe", "mspaint.exe", "winword.exe", "excel.exe",
			"powerpnt.exe", "outlook.exe", "teams.exe", "discord.exe",
			"spotify.exe", "vlc.exe", "steam.exe", "code.exe",
			"whatsapp.exe", "telegram.exe", "zoom.exe", "brave.exe",
		},
		ForceCloseList: []string{"brave.exe", "iw5sp.exe", "AC4BFSP.exe"},
		CompanionApp:   "comet.exe",
		SnapshotDir:    "snapshots",
		LogDir:         "logs",
		DataDir:        "~/.privguard",
		Motion: MotionConfig{
			WarmupFrames:  30,
			History:       500,
			Mixtures:      3,
			MinRegionArea: 500,
			BlurKernel:    21,
			MorphKernel:   5,
			DetectShadows: true,
		},
		Response: ResponseConfig{
			TimeoutSeconds:       10,
			ShutdownGraceSeconds: 5,
			MaxInFlight:          2,
		},
	}
}

// Load reads path over the defaults. A missing file is created with the
// defaults. Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalid, path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the config atomically in the format implied by the path.
func (c *Config) Save(path string) error {
	data, err := marshal(path, c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tmp := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Normalize replaces unusable values with defaults.
func (c *Config) Normalize() {
	def := Default()

	if c.CameraIndex < 0 {
		c.CameraIndex = def.CameraIndex
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		c.FrameWidth, c.FrameHeight = def.FrameWidth, def.FrameHeight
	}
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.MotionSensitivity <= 0 {
		c.MotionSensitivity = def.MotionSensitivity
	}
	if c.DetectionDelay <= 0 {
		c.DetectionDelay = def.DetectionDelay
	}
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		c.LogLevel = def.LogLevel
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = def.SnapshotDir
	}
	if c.LogDir == "" {
		c.LogDir = def.LogDir
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}

	m := &c.Motion
	if m.WarmupFrames <= 0 {
		m.WarmupFrames = def.Motion.WarmupFrames
	}
	if m.History <= 0 {
		m.History = def.Motion.History
	}
	m.Mixtures = clamp(m.Mixtures, 2, 5)
	if m.MinRegionArea < 0 {
		m.MinRegionArea = def.Motion.MinRegionArea
	}
	m.BlurKernel = oddOr(m.BlurKernel, def.Motion.BlurKernel)
	m.MorphKernel = oddOr(m.MorphKernel, def.Motion.MorphKernel)

	r := &c.Response
	if r.TimeoutSeconds <= 0 {
		r.TimeoutSeconds = def.Response.TimeoutSeconds
	}
	if r.ShutdownGraceSeconds <= 0 {
		r.ShutdownGraceSeconds = def.Response.ShutdownGraceSeconds
	}
	if r.MaxInFlight <= 0 {
		r.MaxInFlight = def.Response.MaxInFlight
	}
}

// ClampSensitivity bounds v to the user-facing sensitivity range.
func ClampSensitivity(v float64) float64 {
	if v < MinSensitivity {
		return MinSensitivity
	}
	if v > MaxSensitivity {
		return MaxSensitivity
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func oddOr(v, def int) int {
	if v <= 0 {
		return def
	}
	if v%2 == 0 {
		return v + 1
	}
	return v
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isJSON(path) {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	if isJSON(path) {
		return json.MarshalIndent(cfg, "", "    ")
	}
	return yaml.Marshal(cfg)
}
