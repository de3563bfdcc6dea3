package configuration

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPath = "/etc/kinome-toolbox.conf"
)

var (
	defaultConfig = `
debug = ""

[server]
secret = ""

[server.http]
enabled = true
bind = "0.0.0.0"
port = 8080

[server.https]
enabled = false
bind = "0.0.0.0"
port = 443
key = "/etc/kinome-toolbox/ssl.key"
cert = "/etc/kinome-toolbox/ssl.cert"

[mongo]
url = "mongodb://localhost:27017"
timeout = 10
legacy = "kinome"
users = "users"

[auth]
mode = "single"
cookie = "session"
cacheTTL = 0

[auth.redis]
enabled = false
addr = "localhost:6379"
password = ""
db = 0

[influxdb]
enabled = false
url = "http://localhost:8086/"
username = "root"
password = "root"
database = "kinome"
retentionPolicy = ""
retries = 0
`
)

type HttpConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	Port    int    `toml:"port"`
}

type HttpsConfiguration struct {
	Enabled  bool   `toml:"enabled"`
	Bind     string `toml:"bind"`
	Port     int    `toml:"port"`
	KeyPath  string `toml:"key"`
	CertPath string `toml:"cert"`
}

type ServerConfiguration struct {
	Http   HttpConfiguration  `toml:"http"`
	Https  HttpsConfiguration `toml:"https"`
	Secret string             `toml:"secret"`
}

// MongoConfiguration describes how to reach the document store. Every logical
// database is reached as Url + "/" + name.
type MongoConfiguration struct {
	Url string `toml:"url"`

	// Timeout is the dial timeout in seconds.
	Timeout int `toml:"timeout"`

	// Legacy is the database using free-form string identifiers instead of
	// ObjectIds.
	Legacy string `toml:"legacy"`

	// Users is the database holding API keys and sessions.
	Users string `toml:"users"`
}

// CollectionGrantConfiguration is the TOML form of a collection grant.
type CollectionGrantConfiguration struct {
	Name  string `toml:"name"`
	Read  bool   `toml:"read"`
	Write bool   `toml:"write"`
}

// GrantConfiguration is the TOML form of a database grant.
type GrantConfiguration struct {
	Database    string                         `toml:"database"`
	Collections []CollectionGrantConfiguration `toml:"collections"`
}

type RedisConfiguration struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AuthConfiguration struct {
	// Mode is either "single" for a single user installation using the
	// grants below for everyone, or "mongo" for looking up keys and sessions
	// in the users database.
	Mode string `toml:"mode"`

	// Cookie is the name of the cookie holding the login session.
	Cookie string `toml:"cookie"`

	// CacheTTL is the number of seconds a resolved permission object is
	// kept in redis. Zero disables caching.
	CacheTTL int `toml:"cacheTTL"`

	Redis RedisConfiguration `toml:"redis"`

	// Grants are handed to anonymous callers. In single mode they are
	// handed to everyone.
	Grants []GrantConfiguration `toml:"grant"`
}

type InfluxdbConfiguration struct {
	Enabled         bool   `toml:"enabled"`
	Url             string `toml:"url"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	Database        string `toml:"database"`
	RetentionPolicy string `toml:"retentionPolicy"`
	Retries         int    `toml:"retries"`
}

type Configuration struct {
	Debug    string                `toml:"debug"`
	Server   ServerConfiguration   `toml:"server"`
	Mongo    MongoConfiguration    `toml:"mongo"`
	Auth     AuthConfiguration     `toml:"auth"`
	Influxdb InfluxdbConfiguration `toml:"influxdb"`
}

func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// LoadFromFile will load defaults, then the file at path if it exists and
// finally the environment.
func (c *Configuration) LoadFromFile(path string) error {
	c.LoadDefaults()

	if fileExists(path) {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return err
		}
	}

	c.LoadFromEnvironment()

	return nil
}

// LoadFromString is like LoadFromFile, but reads the configuration from a
// string.
func (c *Configuration) LoadFromString(data string) error {
	c.LoadDefaults()

	if _, err := toml.Decode(data, c); err != nil {
		return err
	}

	c.LoadFromEnvironment()

	return nil
}

func (c *Configuration) LoadDefaults() {
	// Start by loading default values - should never err
	if _, err := toml.Decode(defaultConfig, c); err != nil {
		panic(err.Error())
	}
}

func (c *Configuration) LoadFromEnvironment() {
	envSecret := os.Getenv("KINOME_SECRET")
	if envSecret != "" {
		c.Server.Secret = envSecret
	}

	envMongoUrl := os.Getenv("KINOME_MONGO_URL")
	if envMongoUrl != "" {
		c.Mongo.Url = envMongoUrl
	}

	envRedisAddr := os.Getenv("KINOME_REDIS_ADDR")
	if envRedisAddr != "" {
		c.Auth.Redis.Addr = envRedisAddr
		c.Auth.Redis.Enabled = true
	}

	envInfluxdbUrl := os.Getenv("KINOME_INFLUXDB_URL")
	if envInfluxdbUrl != "" {
		c.Influxdb.Url = envInfluxdbUrl
		c.Influxdb.Enabled = true
	}
}

// DialTimeout returns the Mongo dial timeout as a duration.
func (m MongoConfiguration) DialTimeout() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// CacheDuration returns the permission cache TTL as a duration.
func (a AuthConfiguration) CacheDuration() time.Duration {
	return time.Duration(a.CacheTTL) * time.Second
}

// MultiUser reports whether keys and sessions should be looked up in the
// users database.
func (a AuthConfiguration) MultiUser() bool {
	return strings.ToLower(a.Mode) == "mongo"
}
