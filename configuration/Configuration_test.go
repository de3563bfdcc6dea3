package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c := Configuration{}
	c.LoadDefaults()

	assert.True(t, c.Server.Http.Enabled)
	assert.Equal(t, 8080, c.Server.Http.Port)
	assert.Equal(t, "mongodb://localhost:27017", c.Mongo.Url)
	assert.Equal(t, "kinome", c.Mongo.Legacy)
	assert.Equal(t, "users", c.Mongo.Users)
	assert.Equal(t, 10*time.Second, c.Mongo.DialTimeout())
	assert.False(t, c.Auth.MultiUser())
	assert.False(t, c.Influxdb.Enabled)
}

func TestLoadFromString(t *testing.T) {
	t.Setenv("KINOME_MONGO_URL", "")
	t.Setenv("KINOME_REDIS_ADDR", "")

	c := Configuration{}
	err := c.LoadFromString(`
[mongo]
legacy = "Kinome"

[auth]
mode = "Mongo"
cacheTTL = 30

[[auth.grant]]
database = "kinome"

[[auth.grant.collections]]
name = "samples"
read = true
`)
	require.NoError(t, err)

	assert.Equal(t, "Kinome", c.Mongo.Legacy)
	assert.Equal(t, "mongodb://localhost:27017", c.Mongo.Url)
	assert.True(t, c.Auth.MultiUser())
	assert.Equal(t, 30*time.Second, c.Auth.CacheDuration())

	require.Len(t, c.Auth.Grants, 1)
	assert.Equal(t, "kinome", c.Auth.Grants[0].Database)
	require.Len(t, c.Auth.Grants[0].Collections, 1)
	assert.Equal(t, CollectionGrantConfiguration{Name: "samples", Read: true}, c.Auth.Grants[0].Collections[0])
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KINOME_MONGO_URL", "mongodb://db.example.com")
	t.Setenv("KINOME_REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("KINOME_SECRET", "sesame")

	c := Configuration{}
	require.NoError(t, c.LoadFromFile("/nonexisting/kinome-toolbox.conf"))

	assert.Equal(t, "mongodb://db.example.com", c.Mongo.Url)
	assert.True(t, c.Auth.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", c.Auth.Redis.Addr)
	assert.Equal(t, "sesame", c.Server.Secret)
}

func TestLoadFromStringInvalid(t *testing.T) {
	c := Configuration{}
	assert.Error(t, c.LoadFromString("this is [not toml"))
}
