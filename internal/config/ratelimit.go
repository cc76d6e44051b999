package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig drives one token bucket middleware instance.  Scope names
// the bucket family (e.g. "bookings", "payments") and namespaces its keys.
type RateLimitConfig struct {
    Scope          string
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  A scoped variable such
// as RATE_LIMIT_PAYMENTS_CAPACITY overrides the unscoped RATE_LIMIT_CAPACITY
// for that scope only.
func LoadRateLimitConfig(scope string) RateLimitConfig {
    key := func(name string) string { return scopedKey(scope, name) }
    def := RateLimitConfig{
        Scope:          scope,
        Enabled:        envBool(key("ENABLED"), envBool("RATE_LIMIT_ENABLED", true)),
        Capacity:       envInt(key("CAPACITY"), envInt("RATE_LIMIT_CAPACITY", 20)),
        RefillTokens:   envInt(key("REFILL_TOKENS"), envInt("RATE_LIMIT_REFILL_TOKENS", 1)),
        RefillInterval: envDur(key("REFILL_INTERVAL"), envDur("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second)),
        TTL:            envDur(key("TTL"), envDur("RATE_LIMIT_TTL", 10*time.Minute)),
        KeyStrategy:    envStr(key("KEY_STRATEGY"), envStr("RATE_LIMIT_KEY_STRATEGY", "user_route")),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if scope != "" {
        def.Prefix += ":" + scope
    }
    if def.Capacity < 1 {
        def.Capacity = 1
    }
    if def.RefillTokens < 1 {
        def.RefillTokens = 1
    }
    if def.RefillInterval <= 0 {
        def.RefillInterval = time.Second
    }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL {
        def.TTL = minTTL
    }
    return def
}

func scopedKey(scope, name string) string {
    if scope == "" {
        return "RATE_LIMIT_" + name
    }
    return "RATE_LIMIT_" + strings.ToUpper(scope) + "_" + name
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    switch v {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if dur, err := time.ParseDuration(v); err == nil {
        return dur
    }
    return d
}
