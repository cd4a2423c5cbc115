package pkg

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// InitLocalEnvConfig loads a local .env file when one is present. Missing
// files are not an error so containerized deployments can rely on real
// environment variables alone.
func InitLocalEnvConfig() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}

	_ = godotenv.Load(".env")
}

// SetConfigFromEnvVars populates the struct pointed to by v from environment
// variables using `env` field tags. Fields with a `default` tag fall back to
// that value when the variable is unset or empty. Supported field types are
// string, bool, int, int64, float64 and time.Duration.
func SetConfigFromEnvVars(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a pointer to a struct, got %T", v)
	}

	rv = rv.Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)

		key, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}

		raw := os.Getenv(key)
		if raw == "" {
			raw = field.Tag.Get("default")
		}

		if raw == "" {
			continue
		}

		if err := setField(rv.Field(i), raw); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}

	return nil
}

func setField(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	// time.Duration is an int64 kind but parses as a duration string.
	if fv.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}

		fv.SetInt(int64(d))

		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}

		fv.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}

		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported config field kind %s", fv.Kind())
	}

	return nil
}
