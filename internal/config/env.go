package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// EnvLoader overrides configuration from environment variables. Names follow
// the yaml keys: plug.ip_address is read from <PREFIX>_PLUG_IP_ADDRESS.
// Durations use time.ParseDuration syntax and lists are comma separated.
type EnvLoader struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvLoader reads variables starting with prefix.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: prefix, lookup: os.LookupEnv}
}

// Load applies every variable that is set and non-empty. The first value
// that does not parse aborts the load.
func (el *EnvLoader) Load(cfg *Config) error {
	var firstErr error
	walkLeaves(reflect.ValueOf(cfg).Elem(), el.prefix, func(name string, field reflect.Value) bool {
		raw, ok := el.lookup(name)
		if !ok || raw == "" {
			return true
		}
		if err := setFromString(field, raw); err != nil {
			firstErr = fmt.Errorf("%s: %w", name, err)
			return false
		}
		return true
	})
	return firstErr
}

// walkLeaves calls visit for every settable non-struct field below v with the
// variable name derived from its yaml tag. It stops when visit returns false.
func walkLeaves(v reflect.Value, name string, visit func(string, reflect.Value) bool) bool {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		key := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if key == "-" {
			continue
		}
		if key == "" {
			key = t.Field(i).Name
		}
		full := envName(name, key)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if !walkLeaves(field, full, visit) {
				return false
			}
			continue
		}
		if !visit(full, field) {
			return false
		}
	}
	return true
}

func envName(prefix, key string) string {
	key = strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(key))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list of %s", field.Type().Elem().Kind())
		}
		items := []string{}
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items).Convert(field.Type()))
	default:
		return fmt.Errorf("unsupported type %s", field.Kind())
	}
	return nil
}
