package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

func lineProtocol(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}
