package timeseries

import (
	"time"

	"github.com/influxdata/influxdb/client/v2"

	"github.com/kinome/kinome-toolbox/core"
)

const (
	// UsageMeasurement is the name of points written for gateway usage.
	UsageMeasurement = "gateway_usage"
)

type (
	// Point represents one sample.
	Point struct {
		Time   time.Time              `json:"time"`
		Name   string                 `json:"name"`
		Tags   map[string]string      `json:"tags"`
		Fields map[string]interface{} `json:"fields"`
	}
)

func NewPoint(name string, tags map[string]string, fields map[string]interface{}, t time.Time) *Point {
	if tags == nil {
		tags = make(map[string]string)
	}

	if fields == nil {
		fields = make(map[string]interface{})
	}

	return &Point{
		Time:   t,
		Name:   name,
		Tags:   tags,
		Fields: fields,
	}
}

// UsagePoint describes one operation performed through the gateway.
func UsagePoint(usage core.Usage) *Point {
	tags := map[string]string{
		"operation":  usage.Operation,
		"database":   usage.Database,
		"collection": usage.Collection,
	}

	if usage.Capability != nil {
		tags["identity"] = usage.Capability.ID.Hex()
	}

	return NewPoint(UsageMeasurement, tags, map[string]interface{}{"count": 1}, usage.Time)
}

// InfluxDBPoint will return an InfluxDB compatible point.
func (p *Point) InfluxDBPoint() (*client.Point, error) {
	return client.NewPoint(p.Name, p.Tags, p.Fields, p.Time)
}
