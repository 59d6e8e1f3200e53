// Package report summarises and plots recorded drive runs.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"diffdrive-core/store"
)

// ErrNoSamples is returned for an empty run
var ErrNoSamples = errors.New("run has no samples")

// Options selects the heading-hold window scored by Summarize
type Options struct {
	WheelRadiusM  float64
	HoldFromM     float64
	HoldToM       float64
	HoldTargetDeg float64
}

// DefaultOptions scores the 1.5-20 m heading hold at 270 degrees
func DefaultOptions() Options {
	return Options{WheelRadiusM: 0.06, HoldFromM: 1.5, HoldToM: 20, HoldTargetDeg: 270}
}

// Summary describes one run
type Summary struct {
	Samples         int
	Duration        time.Duration
	PathDistanceM   float64
	FinalX, FinalY  float64
	DisplacementM   float64
	MeanSpeedMPS    float64
	SpeedStdDevMPS  float64
	MaxSpeedMPS     float64
	MeanHeadingDeg  float64 // circular mean
	HoldSamples     int
	HoldRMSErrorDeg float64
	HoldMaxErrorDeg float64
}

// Summarize computes run statistics. Linear speed is r*(left+right)/2 from
// the reported wheel velocities.
func Summarize(samples []store.Sample, opt Options) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	if !(opt.WheelRadiusM > 0) {
		return Summary{}, fmt.Errorf("wheel radius must be positive, got %v", opt.WheelRadiusM)
	}

	n := len(samples)
	speeds := make([]float64, n)
	headings := make([]float64, n)
	paths := make([]float64, n)
	var holdErr []float64
	for i, s := range samples {
		speeds[i] = opt.WheelRadiusM * (s.VelLeft + s.VelRight) / 2
		headings[i] = s.HeadingDeg * math.Pi / 180
		paths[i] = s.PathDistance
		if s.PathDistance > opt.HoldFromM && s.PathDistance <= opt.HoldToM {
			holdErr = append(holdErr, HeadingError(s.HeadingDeg, opt.HoldTargetDeg))
		}
	}

	first, last := samples[0], samples[n-1]
	sum := Summary{
		Samples:       n,
		Duration:      time.Duration(last.TimestampMS-first.TimestampMS) * time.Millisecond,
		PathDistanceM: floats.Max(paths),
		FinalX:        last.X,
		FinalY:        last.Y,
		DisplacementM: math.Hypot(last.X-first.X, last.Y-first.Y),
		MaxSpeedMPS:   floats.Max(speeds),
		HoldSamples:   len(holdErr),
	}
	sum.MeanSpeedMPS, sum.SpeedStdDevMPS = stat.MeanStdDev(speeds, nil)
	if n == 1 {
		sum.SpeedStdDevMPS = 0
	}
	sum.MeanHeadingDeg = wrapDegrees(stat.CircularMean(headings, nil) * 180 / math.Pi)

	if len(holdErr) > 0 {
		sq := make([]float64, len(holdErr))
		floats.MulTo(sq, holdErr, holdErr)
		sum.HoldRMSErrorDeg = math.Sqrt(stat.Mean(sq, nil))
		abs := make([]float64, len(holdErr))
		for i, e := range holdErr {
			abs[i] = math.Abs(e)
		}
		sum.HoldMaxErrorDeg = floats.Max(abs)
	}
	return sum, nil
}

// HeadingError is the signed shortest angle from target to heading, in
// [-180, 180).
func HeadingError(headingDeg, targetDeg float64) float64 {
	return wrapDegrees(headingDeg-targetDeg+180) - 180
}

func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// WriteSummary prints s as aligned key/value lines
func WriteSummary(w io.Writer, runID string, s Summary) error {
	_, err := fmt.Fprintf(w, `run            %s
samples        %d
duration       %s
path_distance  %.3f m
final_pose     (%.3f, %.3f) m
displacement   %.3f m
speed          mean %.3f  sd %.3f  max %.3f m/s
heading_mean   %.2f deg
heading_hold   n=%d  rms %.2f  max %.2f deg
`,
		runID, s.Samples, s.Duration, s.PathDistanceM, s.FinalX, s.FinalY, s.DisplacementM,
		s.MeanSpeedMPS, s.SpeedStdDevMPS, s.MaxSpeedMPS, s.MeanHeadingDeg,
		s.HoldSamples, s.HoldRMSErrorDeg, s.HoldMaxErrorDeg)
	return err
}
