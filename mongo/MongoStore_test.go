package mongo

import (
	"testing"

	"github.com/kinome/kinome-toolbox/configuration"
)

func TestDatabaseUrl(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost:27017":  "mongodb://localhost:27017/kinome",
		"mongodb://localhost:27017/": "mongodb://localhost:27017/kinome",
		"127.0.0.1":                  "mongodb://127.0.0.1/kinome",
		"mongodb://a:1,b:2//":        "mongodb://a:1,b:2/kinome",
	}

	for url, expected := range cases {
		d := NewDialer(configuration.MongoConfiguration{Url: url, Timeout: 1})

		computed := d.databaseUrl("kinome")
		if computed != expected {
			t.Errorf("Url for '%s' is '%s', should be '%s'", url, computed, expected)
		}
	}
}
