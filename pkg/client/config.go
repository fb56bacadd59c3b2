package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/maxubrq/redisX/pkg/common"
)

// Config is the public surface's kong-tagged option set: struct tags
// drive `kong.Parse`, while Validate enforces the rules a flag parser
// can't express on its own.
type Config struct {
	Host           string `help:"Server hostname or IP" name:"host" default:"localhost"`
	Port           int    `help:"TCP port" name:"port" default:"6379"`
	ConnectTimeout int    `help:"Milliseconds bound for connect+handshake" name:"connect-timeout" default:"5000"`
	CommandTimeout int    `help:"Milliseconds bound per command" name:"command-timeout" default:"5000"`
	AutoConnect    bool   `help:"Connect automatically on first send" name:"auto-connect" default:"true"`
	ClientName     string `help:"Informational client name tag" name:"client-name"`
	Database       int    `help:"Database index selected post-handshake" name:"database" default:"0"`
	URL            string `help:"Alternative redis[s]://[user[:pass]@]host[:port][/db] form" name:"url"`

	// Username/Password are populated only via ApplyURL's userinfo —
	// kong:"-" keeps them out of the flag set; credentials only arrive via
	// the URL form.
	Username string `kong:"-"`
	Password string `kong:"-"`
}

// Validate rejects out-of-range ports, negative timeouts, a negative
// database, and a URL whose scheme isn't redis/rediss.
func (c *Config) Validate() error {
	if c.URL != "" {
		if err := c.ApplyURL(c.URL); err != nil {
			return err
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return common.NewErrorf(common.CodeInvalidOption, "port %d out of range [1,65535]", c.Port)
	}
	if c.ConnectTimeout < 0 {
		return common.NewErrorf(common.CodeInvalidOption, "connect_timeout must not be negative")
	}
	if c.CommandTimeout <= 0 {
		return common.NewErrorf(common.CodeInvalidOption, "command_timeout must be positive")
	}
	if c.Database < 0 {
		return common.NewErrorf(common.CodeInvalidOption, "database must not be negative")
	}
	return nil
}

// ApplyURL parses rawURL in the redis[s]://[user[:pass]@]host[:port][/db]
// form and overlays Host/Port/Database onto the config. It does not
// attempt TLS configuration — rediss is accepted at the parse level but
// TLS transport itself is explicitly out of scope.
func (c *Config) ApplyURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return common.NewErrorf(common.CodeInvalidOption, "invalid url %q: %v", rawURL, err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return common.NewErrorf(common.CodeInvalidOption, "url scheme must be redis or rediss, got %q", u.Scheme)
	}
	if host := u.Hostname(); host != "" {
		c.Host = host
	}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return common.NewErrorf(common.CodeInvalidOption, "invalid url port %q", portStr)
		}
		c.Port = port
	}
	if pw, ok := u.User.Password(); ok {
		c.Password = pw
	}
	if u.User.Username() != "" {
		c.Username = u.User.Username()
	}
	path := strings.TrimPrefix(u.Path, "/")
	if path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return common.NewErrorf(common.CodeInvalidOption, "invalid url database %q", path)
		}
		c.Database = db
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
