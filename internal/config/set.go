package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type setter func(c *Config, value string) error

var setters = map[string]setter{
	"camera_index": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("camera_index must be a non-negative integer")
		}
		c.CameraIndex = n
		return nil
	},
	"motion_sensitivity": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < MinSensitivity || f > MaxSensitivity {
			return fmt.Errorf("motion_sensitivity must be between %d and %d", MinSensitivity, MaxSensitivity)
		}
		c.MotionSensitivity = f
		return nil
	},
	"detection_delay": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("detection_delay must be a positive number of seconds")
		}
		c.DetectionDelay = n
		return nil
	},
	"auto_close_apps":      boolSetter(func(c *Config) *bool { return &c.AutoCloseApps }),
	"show_camera_feed":     boolSetter(func(c *Config) *bool { return &c.ShowCameraFeed }),
	"enable_notifications": boolSetter(func(c *Config) *bool { return &c.EnableNotifications }),
	"log_level": func(c *Config, v string) error {
		switch lvl := strings.ToUpper(v); lvl {
		case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
			c.LogLevel = lvl
			return nil
		}
		return fmt.Errorf("log_level must be one of DEBUG, INFO, WARN, ERROR")
	},
	"companion_app":      stringSetter(func(c *Config) *string { return &c.CompanionApp }),
	"companion_app_path": stringSetter(func(c *Config) *string { return &c.CompanionAppPath }),
	"snapshot_dir":       stringSetter(func(c *Config) *string { return &c.SnapshotDir }),
	"log_dir":            stringSetter(func(c *Config) *string { return &c.LogDir }),
	"data_dir":           stringSetter(func(c *Config) *string { return &c.DataDir }),
	"force_close_list":   listSetter(func(c *Config) *[]string { return &c.ForceCloseList }),
	"protected_processes": listSetter(func(c *Config) *[]string {
		return &c.ProtectedProcesses
	}),
}

// Set updates one key from its string form. Lists are comma separated.
func (c *Config) Set(key, value string) error {
	fn, ok := setters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("unknown key %q (settable: %s)", key, strings.Join(SettableKeys(), ", "))
	}
	return fn(c, strings.TrimSpace(value))
}

// SettableKeys lists the keys accepted by Set.
func SettableKeys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolSetter(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", v)
		}
		*field(c) = b
		return nil
	}
}

func stringSetter(field func(*Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func listSetter(field func(*Config) *[]string) setter {
	return func(c *Config, v string) error {
		var items []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		*field(c) = items
		return nil
	}
}
