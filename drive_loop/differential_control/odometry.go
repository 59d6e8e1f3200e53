package control

import (
	"fmt"
	"time"
)

// OdometryRecord is a point-in-time copy of the robot state for telemetry
type OdometryRecord struct {
	Timestamp     time.Duration `json:"timestamp"` // since loop start
	X             float64       `json:"x"`
	Y             float64       `json:"y"`
	Theta         float64       `json:"theta"`
	PathDistance  float64       `json:"path_distance"`
	LeftVelocity  float64       `json:"vel_left"`  // rad/s, rear left
	RightVelocity float64       `json:"vel_right"` // rad/s, rear right
}

// Snapshot aggregates pose, path and filtered wheel velocities into a record.
func Snapshot(pose Pose, path PathState, velocities WheelQuad, ts time.Duration) OdometryRecord {
	return OdometryRecord{
		Timestamp:     ts,
		X:             pose.X,
		Y:             pose.Y,
		Theta:         pose.Theta,
		PathDistance:  path.Distance,
		LeftVelocity:  velocities.Left(),
		RightVelocity: velocities.Right(),
	}
}

// Seconds returns the timestamp at millisecond resolution, in seconds
func (r OdometryRecord) Seconds() float64 {
	return float64(r.Timestamp.Milliseconds()) / 1000.0
}

// FormatTelemetryLine renders the tab-separated analysis record:
// time(s) x y theta pathDistance heading(deg).
func FormatTelemetryLine(rec OdometryRecord, headingDeg float64) string {
	return fmt.Sprintf("%.2f\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\n",
		rec.Seconds(), rec.X, rec.Y, rec.Theta, rec.PathDistance, headingDeg)
}
