// Package config loads the hairtype server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HAIRTYPE_"

// Config holds the process configuration.
type Config struct {
	Addr          string `validate:"required"`
	DataDir       string `validate:"required"`
	WebDir        string
	ModelPath     string
	ServiceScript string
	ServiceModel  string
	Classes       []string `validate:"omitempty,dive,required"`
	CameraID      int      `validate:"gte=0"`
	CameraFPS     int      `validate:"gte=1,lte=120"`
	Threshold     float64  `validate:"gte=0,lte=1"`
	Mirror        bool
	LogLevel      string `validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFile       string
	Tray          bool
	UploadRate    int   `validate:"gte=1"`
	MaxUpload     int64 `validate:"gt=0"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	dataDir := ".hairtype"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".hairtype")
	}

	return Config{
		Addr:       ":8080",
		DataDir:    dataDir,
		CameraID:   0,
		CameraFPS:  15,
		Threshold:  0.5,
		Mirror:     true,
		LogLevel:   "info",
		UploadRate: 30,
		MaxUpload:  10 << 20,
	}
}

// DBPath returns the settings database location.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "hairtype.db")
}

// Load reads envFiles (".env" when none are given) into the environment and
// builds a validated Config. Missing env files are ignored; variables already
// set in the environment take precedence over file values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &cfg.Addr)
	str("DATA_DIR", &cfg.DataDir)
	str("WEB_DIR", &cfg.WebDir)
	str("MODEL_PATH", &cfg.ModelPath)
	str("SERVICE_SCRIPT", &cfg.ServiceScript)
	str("SERVICE_MODEL", &cfg.ServiceModel)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
	integer("CAMERA_ID", &cfg.CameraID)
	integer("CAMERA_FPS", &cfg.CameraFPS)
	integer("UPLOAD_RATE", &cfg.UploadRate)
	boolean("MIRROR", &cfg.Mirror)
	boolean("TRAY", &cfg.Tray)

	if v, ok := lookup("THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTHRESHOLD: %w", Prefix, err))
		} else {
			cfg.Threshold = f
		}
	}
	if v, ok := lookup("MAX_UPLOAD"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_UPLOAD: %w", Prefix, err))
		} else {
			cfg.MaxUpload = n
		}
	}
	if v, ok := lookup("CLASSES"); ok {
		cfg.Classes = nil
		for _, c := range strings.Split(v, ",") {
			cfg.Classes = append(cfg.Classes, strings.TrimSpace(c))
		}
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(Prefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
