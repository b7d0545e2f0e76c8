package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	MySQLDSN   string
	RedisAddr  string
	RedisDB    int
	RedisPass  string
	LocalStore string // memory|redis

	PlacesBase string
	PlacesKey  string
	PlacesRPS  int
	GeoBase    string
	GeoRPS     int

	Categories      []string
	DefaultRadiusKm float64
	CategoryTimeout time.Duration
	LookupTimeout   time.Duration
	SearchTimeout   time.Duration
	WriteTimeout    time.Duration
	Parallelism     int
	CacheTTL        time.Duration

	JWTSecret string
	JWTIssuer string
	DeviceID  string // key of the redis local store
	DeviceLat float64
	DeviceLng float64
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric env value")
		}
		return def
	}
	secs := func(k string, def int) time.Duration {
		return time.Duration(atoi(k, def)) * time.Second
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		MySQLDSN:   env("MYSQL_DSN", "root:root@tcp(localhost:3306)/locator?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:  env("REDIS_ADDR", "localhost:6379"),
		RedisPass:  env("REDIS_PASSWORD", ""),
		RedisDB:    atoi("REDIS_DB", 0),
		LocalStore: env("LOCAL_STORE", "memory"),

		PlacesBase: env("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place"),
		PlacesKey:  env("PLACES_API_KEY", ""),
		PlacesRPS:  atoi("PLACES_RPS", 10),
		GeoBase:    env("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeoRPS:     atoi("GEOCODER_RPS", 1),

		Categories:      list("SERVICE_CATEGORIES"),
		DefaultRadiusKm: atof("DEFAULT_RADIUS_KM", 10),
		CategoryTimeout: secs("CATEGORY_TIMEOUT_SECONDS", 6),
		LookupTimeout:   secs("LOOKUP_TIMEOUT_SECONDS", 10),
		SearchTimeout:   secs("SEARCH_TIMEOUT_SECONDS", 15),
		WriteTimeout:    secs("REMOTE_WRITE_TIMEOUT_SECONDS", 10),
		Parallelism:     atoi("AGGREGATE_PARALLELISM", 5),
		CacheTTL:        secs("CACHE_TTL_SECONDS", 900),

		JWTSecret: env("JWT_SECRET", ""),
		JWTIssuer: env("JWT_ISSUER", "service-locator"),
		DeviceID:  env("DEVICE_ID", "local"),
		DeviceLat: atof("DEVICE_LAT", 0),
		DeviceLng: atof("DEVICE_LNG", 0),
	}
	if c.PlacesKey == "" {
		log.Warn().Msg("PLACES_API_KEY is empty")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty; session login disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// list splits a comma-separated env value; empty entries are dropped.
func list(k string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(k), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
