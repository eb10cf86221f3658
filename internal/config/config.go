// Package config loads synthnode settings and watches the engine options
// file for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/synthnode/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "SYNTHNODE_"

// LoadConfig fills the struct pointed to by opts. Precedence is CLI flag >
// environment > TOML file > the value already in the struct. Fields opt in
// with `toml:"table.key"` and `env:"KEY"` tags; the file path comes from a
// string field named Config. Flags changed on cmd are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a pointer to a struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	var file map[string]any
	if path := v.FieldByName("Config"); path.IsValid() && path.Kind() == reflect.String && path.String() != "" {
		data, err := os.ReadFile(path.String())
		switch {
		case errors.Is(err, os.ErrNotExist):
			// A missing file means defaults.
		case err != nil:
			return fmt.Errorf("failed to read config %s: %w", path.String(), err)
		default:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
		}
	}

	var errs []error
	for i := 0; i < v.NumField(); i++ {
		field, sf := v.Field(i), t.Field(i)
		if !field.CanSet() || changed[fieldNameToFlag(sf.Name)] {
			continue
		}

		if tomlPath := sf.Tag.Get("toml"); tomlPath != "" && file != nil {
			if value := getNestedValue(file, tomlPath); value != nil {
				if err := setFieldValue(field, value); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", tomlPath, err))
				}
			}
		}

		if envKey := sf.Tag.Get("env"); envKey != "" {
			if value, ok := os.LookupEnv(EnvPrefix + envKey); ok && value != "" {
				if err := setFieldValueFromString(field, value); err != nil {
					errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, envKey, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue looks up a dotted path such as "engine.port".
func getNestedValue(data map[string]any, path string) any {
	current := data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue assigns a decoded TOML value.
func setFieldValue(field reflect.Value, value any) error {
	if field.Type() == durationType {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want a duration string, got %T", value)
		}
		return setFieldValueFromString(field, s)
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want a string, got %T", value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("want a bool, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		default:
			return fmt.Errorf("want an integer, got %T", value)
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("want a number, got %T", value)
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("want a string array, got %T", value)
		}
		slice := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, isString := item.(string); isString {
				slice = append(slice, s)
			}
		}
		field.Set(reflect.ValueOf(slice))
	}
	return nil
}

// setFieldValueFromString parses an environment value into field.
func setFieldValueFromString(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table of a config file. Module
// levels may sit in a [logging.modules] table or directly under [logging].
// A missing or unreadable file yields the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}
	return cfg
}
