package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a key/value logger over zap. Values are scrubbed before they reach
// the encoder: secrets are dropped and operator identifiers are hashed.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger for mode: "prod" or "production" selects JSON output at
// info level, anything else a console encoder at debug level. LOG_LEVEL overrides
// the level in either mode.
func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if m := strings.ToLower(strings.TrimSpace(mode)); m == "prod" || m == "production" {
		cfg = zap.NewProductionConfig()
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if lvl, err := zapcore.ParseLevel(raw); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &Logger{s: z.Sugar()}, nil
}

func Nop() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

func (l *Logger) Sync() { _ = l.s.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, scrub(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.s.Fatalw(msg, scrub(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(scrub(kv)...)}
}

const redacted = "[REDACTED]"

var (
	secretKeys = []string{"password", "secret", "token", "authorization", "cookie", "api_key", "apikey"}
	// badge and operator ids stay joinable across lines without being readable
	hashedKeys = []string{"user_id", "card_id", "session_id"}
)

type policy struct {
	enabled bool
	salt    string
}

var (
	policyOnce sync.Once
	active     policy
)

func current() policy {
	policyOnce.Do(func() {
		active.enabled = true
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			active.enabled = false
		}
		active.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
	return active
}

func scrub(kv []interface{}) []interface{} {
	p := current()
	if !p.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		out[i+1] = p.value(keyOf(out[i]), out[i+1])
	}
	return out
}

func (p policy) value(key string, v interface{}) interface{} {
	switch {
	case key == "":
		return v
	case matches(key, secretKeys):
		return redacted
	case matches(key, hashedKeys) || key == "email":
		return p.hash(v)
	}
	switch t := v.(type) {
	case string:
		if looksLikeJWT(t) {
			return redacted
		}
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = p.value(keyOf(k), inner)
		}
		return m
	}
	return v
}

func (p policy) hash(v interface{}) string {
	raw := text(v)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(p.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func matches(key string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(key, n) {
			return true
		}
	}
	return false
}

func keyOf(k interface{}) string { return strings.ToLower(strings.TrimSpace(text(k))) }

func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
