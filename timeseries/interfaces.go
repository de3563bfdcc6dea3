package timeseries

import (
	"context"

	"github.com/kinome/kinome-toolbox/core"
)

type (
	// Database stores points. InfluxDb is the only implementation outside
	// of tests.
	Database interface {
		WritePoints(points []*Point) error
	}

	// UsageRecorder writes gateway usage to a Database as UsagePoint's.
	UsageRecorder struct {
		db Database
	}
)

func NewUsageRecorder(db Database) *UsageRecorder {
	return &UsageRecorder{db: db}
}

// RecordUsage implements core.UsageRecorder.
func (u *UsageRecorder) RecordUsage(_ context.Context, usage core.Usage) error {
	return u.db.WritePoints([]*Point{UsagePoint(usage)})
}
