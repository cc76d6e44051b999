package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The nested Booking, Mpesa and Queue sections are
// loaded with defaults so that only connection settings are mandatory.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    StoreDriver    string // "mysql" (default) or "memory" for local runs
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    BcryptCost     int    // bcrypt cost for password hashing
    QRDir          string // directory where ticket QR payloads are written

    Booking BookingConfig
    Mpesa   MpesaConfig
    Queue   QueueConfig
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database variables
// are only required when the MySQL store is selected.
func Load() Config {
    cfg := Config{
        Env:            must("APP_ENV"),                        // environment (dev/test/prod)
        Port:           must("APP_PORT"),                       // port to bind the HTTP server
        StoreDriver:    envStr("STORE_DRIVER", "mysql"),        // storage backend
        DBPass:         os.Getenv("DB_PASS"),                   // database password (empty allowed)
        JWTSecret:      must("JWT_SECRET"),                     // secret used for signing JWTs
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),        // TTL for access tokens in minutes
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),      // TTL for refresh tokens in days
        BcryptCost:     mustInt("BCRYPT_COST"),                 // bcrypt cost factor
        QRDir:          envStr("QR_DIR", "storage/qrcodes"),    // ticket artifact directory
        Booking:        LoadBookingConfig(),
        Mpesa:          LoadMpesaConfig(),
        Queue:          LoadQueueConfig(),
    }
    if cfg.StoreDriver == "mysql" {
        db := LoadDBConfig()
        cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName = db.User, db.Host, db.Port, db.Name
    }
    return cfg
}

// DBConfig holds MySQL connection settings.
type DBConfig struct {
    User string
    Pass string
    Host string
    Port string
    Name string
}

// LoadDBConfig reads DB_* variables.  Everything except DB_PASS is required.
func LoadDBConfig() DBConfig {
    return DBConfig{
        User: must("DB_USER"),
        Pass: os.Getenv("DB_PASS"),
        Host: must("DB_HOST"),
        Port: must("DB_PORT"),
        Name: must("DB_NAME"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
