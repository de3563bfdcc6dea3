package timeseries

import (
	"time"

	"github.com/influxdata/influxdb/client/v2"

	"github.com/kinome/kinome-toolbox/configuration"
	"github.com/kinome/kinome-toolbox/logger"
)

type (
	// InfluxDb is a Database writing points to InfluxDB.
	InfluxDb struct {
		conn    client.Client
		retries int
		bpsConf client.BatchPointsConfig
	}
)

func NewInfluxDb(cfg *configuration.InfluxdbConfiguration) (*InfluxDb, error) {
	conf := client.HTTPConfig{
		Addr:      cfg.Url,
		Username:  cfg.Username,
		Password:  cfg.Password,
		UserAgent: "kinome-toolbox",
	}

	conn, err := client.NewHTTPClient(conf)
	if err != nil {
		return nil, err
	}

	return &InfluxDb{
		conn:    conn,
		retries: cfg.Retries,
		bpsConf: client.BatchPointsConfig{
			Database:         cfg.Database,
			RetentionPolicy:  cfg.RetentionPolicy,
			WriteConsistency: "one",
		},
	}, nil
}

func (i *InfluxDb) WritePoints(points []*Point) error {
	bps, err := client.NewBatchPoints(i.bpsConf)
	if err != nil {
		return err
	}

	for _, point := range points {
		p, err := point.InfluxDBPoint()
		if err != nil {
			return err
		}

		bps.AddPoint(p)
	}

	err = i.conn.Write(bps)
	for retry := 1; err != nil && retry <= i.retries; retry++ {
		logger.Red("influxdb", "Error writing to influxdb: %s, retry %d/%d", err.Error(), retry, i.retries)
		time.Sleep(time.Millisecond * 500)
		err = i.conn.Write(bps)
	}

	if err != nil {
		logger.Red("influxdb", "Error writing to influxdb: %s, giving up", err.Error())
	}

	return err
}

func (i *InfluxDb) Close() error {
	return i.conn.Close()
}
