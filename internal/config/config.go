// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Server configures the chat server.
type Server struct {
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080" validate:"min=1,max=65535"`
	DBDriver        string        `env:"DB_DRIVER,default=sqlite" validate:"oneof=sqlite postgres"`
	DBURL           string        `env:"DB_URL,default=chat_history.db" validate:"required"`
	HistoryLimit    int           `env:"HISTORY_LIMIT,default=10" validate:"min=1"`
	MaxQueryLimit   int           `env:"MAX_QUERY_LIMIT,default=100" validate:"gtefield=HistoryLimit"`
	MaxFrameBytes   int64         `env:"MAX_FRAME_BYTES,default=32768" validate:"min=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"min=0"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=0s" validate:"min=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"min=0"`
	SanitizeHTML    bool          `env:"CHAT_SANITIZE_HTML,default=false"`
	OriginPatterns  string        `env:"ORIGIN_PATTERNS"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Address is the host:port the server listens on.
func (c Server) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins splits ORIGIN_PATTERNS on commas.
func (c Server) Origins() []string {
	var patterns []string
	for p := range strings.SplitSeq(c.OriginPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// Client configures the terminal client.
type Client struct {
	Server   string `env:"CHAT_SERVER,default=http://localhost:8080" validate:"url"`
	Username string `env:"CHAT_USERNAME"`
	LogLevel string `env:"LOG_LEVEL,default=WARN" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// LoadTest configures the load generator.
type LoadTest struct {
	Server   string        `env:"CHAT_SERVER,default=http://localhost:8080" validate:"url"`
	Clients  int           `env:"LOADTEST_CLIENTS,default=50" validate:"min=1"`
	Messages int           `env:"LOADTEST_MESSAGES,default=20" validate:"min=1"`
	Timeout  time.Duration `env:"LOADTEST_TIMEOUT,default=30s" validate:"min=1s"`
	LogLevel string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Load fills dst from the environment after loading envFiles (".env" when
// none are given). Missing env files are not an error. Variables already set
// in the environment win over the files.
func Load(dst any, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if _, err := env.UnmarshalFromEnviron(dst); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	switch c := dst.(type) {
	case *Server:
		c.LogLevel = strings.ToUpper(c.LogLevel)
	case *Client:
		c.LogLevel = strings.ToUpper(c.LogLevel)
	case *LoadTest:
		c.LogLevel = strings.ToUpper(c.LogLevel)
	}

	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
