// Package config fills option structs from a TOML file, environment
// variables and command line flags, and watches files for changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "CMDPANEL_"

var durationType = reflect.TypeOf(time.Duration(0))

// binding ties one option field to its sources.
type binding struct {
	field reflect.Value
	flag  string // kebab-case flag name humacli derives from the field name
	toml  string // dotted path, e.g. "process.grace_period"
	env   string // variable name without EnvPrefix
}

// LoadConfig overlays the TOML file named by the struct's Config field and
// then EnvPrefix+`env` variables onto opts, a pointer to a struct. Fields
// whose flag was set on cmd's command line are left alone, giving
// flags > environment > file > defaults.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: options must be a pointer to a struct, got %T", opts)
	}
	v = v.Elem()

	file, err := readFile(configPath(v))
	if err != nil {
		return err
	}

	changed := changedFlags(cmd)
	for _, b := range bindings(v) {
		if changed[b.flag] {
			continue
		}
		if b.toml != "" {
			if value := lookupPath(file, b.toml); value != nil {
				setFromTOML(b.field, value)
			}
		}
		if b.env != "" {
			if value := os.Getenv(EnvPrefix + b.env); value != "" {
				setFromString(b.field, value)
			}
		}
	}
	return nil
}

func bindings(v reflect.Value) []binding {
	t := v.Type()
	out := make([]binding, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out = append(out, binding{
			field: v.Field(i),
			flag:  flagName(f.Name),
			toml:  f.Tag.Get("toml"),
			env:   f.Tag.Get("env"),
		})
	}
	return out
}

func configPath(v reflect.Value) string {
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// readFile parses the config file. A missing file is not an error.
func readFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]any
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return values, nil
}

// changedFlags lists flags given on the command line. Persistent flags are
// only visible through the set of the command that defines them.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	mark := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(mark)
	cmd.PersistentFlags().VisitAll(mark)
	return changed
}

// flagName converts a field name to its flag: "LoggingLevel" -> "logging-level".
func flagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookupPath walks dotted path through nested TOML tables.
func lookupPath(values map[string]any, path string) any {
	table := values
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := table[key].(map[string]any)
		if !ok {
			return nil
		}
		table = next
	}
	return table[keys[len(keys)-1]]
}

// setFromTOML assigns a decoded TOML value. Values of the wrong type are
// ignored and the field keeps its default.
func setFromTOML(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	if field.Type() == durationType {
		if d, ok := durationValue(value); ok {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		switch s := value.(type) {
		case string:
			field.SetString(s)
		case int64:
			field.SetString(strconv.FormatInt(s, 10))
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
		}
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		strs := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				strs = append(strs, s)
			}
		}
		field.Set(reflect.ValueOf(strs))
	}
}

// setFromString assigns an environment value. Lists are comma separated.
func setFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}

// durationValue accepts a Go duration string ("5s", "750ms") or a number
// of seconds.
func durationValue(value any) (time.Duration, bool) {
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	case int64:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	default:
		return 0, false
	}
}
