package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
)

// SetValue sets a configuration value by key. Keys are the YAML names of the
// settings, e.g. catalog_url, device_ram_gb or http_timeout. Durations use Go
// duration syntax ("30s", "250ms").
func (c *Config) SetValue(key, value string) error {
	s := &c.Settings
	switch key {
	case "catalog_url":
		s.CatalogURL = value
	case "documents_dir":
		s.DocumentsDir = value
	case "state_dir":
		s.StateDir = value
	case "device_ram_gb":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		s.DeviceRAMGB = f
	case "http_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		s.HTTPTimeout = d
	case "progress_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		s.ProgressInterval = d
	case "user_agent":
		s.UserAgent = value
	case "listen_addr":
		s.ListenAddr = value
	case "output_format":
		s.OutputFormat = value
	case "log_level":
		s.LogLevel = value
	default:
		return fmt.Errorf("%w: %s", errutils.ErrUnknownConfigKey, key)
	}
	return nil
}

// GetValue returns the value of a configuration key as a string.
func (c *Config) GetValue(key string) (string, error) {
	if v, ok := c.ToMap()[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", errutils.ErrUnknownConfigKey, key)
}

// ToMap flattens the settings into key/value strings keyed by YAML name.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)

	settingsValue := reflect.ValueOf(c.Settings)
	settingsType := settingsValue.Type()

	for i := 0; i < settingsValue.NumField(); i++ {
		field := settingsType.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlKey := strings.Split(yamlTag, ",")[0]

		fieldValue := settingsValue.Field(i)
		var strValue string
		switch v := fieldValue.Interface().(type) {
		case time.Duration:
			strValue = v.String()
		case float64:
			strValue = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			strValue = v
		default:
			strValue = fmt.Sprintf("%v", v)
		}
		result[yamlKey] = strValue
	}

	return result
}
