package userdb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kinome/kinome-toolbox/configuration"
)

func kinomePermissions() *Permissions {
	return &Permissions{
		ID: GodId,
		Grants: []Grant{
			{
				Database: "Kinome",
				Collections: []CollectionGrant{
					{Name: "Samples", Read: true, Write: false},
					{Name: "name_map", Read: true, Write: true},
				},
			},
			{
				Database: "lab",
				Collections: []CollectionGrant{
					{Name: "runs", Read: false, Write: true},
				},
			},
		},
	}
}

func TestPermissionsAllows(t *testing.T) {
	type request struct {
		database   string
		collection string
		mode       Mode
	}

	cases := map[request]bool{
		{"kinome", "samples", Read}:  true,
		{"KINOME", "SAMPLES", Read}:  true,
		{"kinome", "samples", Write}: false,
		{"kinome", "name_map", Write}: true,
		{"kinome", "runs", Read}:     false,
		{"lab", "runs", Write}:       true,
		{"lab", "runs", Read}:        false,
		{"lab", "samples", Read}:     false,
		{"unknown", "samples", Read}: false,
		{"kinome", "samples", 0}:     false,
	}

	p := kinomePermissions()
	for r, expected := range cases {
		assert.Equal(t, expected, p.Allows(r.database, r.collection, r.mode), "%+v", r)
	}
}

// The first grant matching a name is authoritative even if a later duplicate
// would allow access.
func TestPermissionsFirstMatchWins(t *testing.T) {
	p := &Permissions{
		Grants: []Grant{
			{
				Database: "kinome",
				Collections: []CollectionGrant{
					{Name: "samples", Read: false},
					{Name: "SAMPLES", Read: true},
				},
			},
			{
				Database: "KINOME",
				Collections: []CollectionGrant{
					{Name: "samples", Read: true},
					{Name: "lvl_1", Read: true},
				},
			},
		},
	}

	assert.False(t, p.Allows("kinome", "samples", Read))

	// lvl_1 only appears in the second grant for kinome, which is never
	// consulted.
	assert.False(t, p.Allows("kinome", "lvl_1", Read))
}

func TestPermissionsEmpty(t *testing.T) {
	p := &Permissions{}

	_, found := p.Lookup("kinome", "samples")
	assert.False(t, found)
}

func TestGrantsFromConfiguration(t *testing.T) {
	grants := GrantsFromConfiguration([]configuration.GrantConfiguration{
		{
			Database: "kinome",
			Collections: []configuration.CollectionGrantConfiguration{
				{Name: "samples", Read: true},
			},
		},
	})

	assert.Equal(t, []Grant{
		{
			Database:    "kinome",
			Collections: []CollectionGrant{{Name: "samples", Read: true}},
		},
	}, grants)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "unknown", Mode(0).String())
}
