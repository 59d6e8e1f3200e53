package control

import (
	"fmt"
	"math"
)

// MotionCommand is the body velocity setpoint handed to the mixer.
// Positive curvature turns left (counter-clockwise).
type MotionCommand struct {
	LinearVelocity float64 // m/s
	Curvature      float64 // 1/m
}

// CurvatureRule picks a segment's curvature from the current heading
type CurvatureRule interface {
	Curvature(headingDeg float64) float64
}

// FixedCurvature ignores the heading
type FixedCurvature float64

func (k FixedCurvature) Curvature(float64) float64 { return float64(k) }

// HeadingCorrection steers back into the dead-band [Below, Above] (degrees).
type HeadingCorrection struct {
	Above           float64
	Below           float64
	AboveCurvature  float64
	BelowCurvature  float64
	InsideCurvature float64
}

func (h HeadingCorrection) Curvature(headingDeg float64) float64 {
	switch {
	case headingDeg > h.Above:
		return h.AboveCurvature
	case headingDeg < h.Below:
		return h.BelowCurvature
	default:
		return h.InsideCurvature
	}
}

// Segment applies while pathDistance <= UpperBound. The terminal segment has
// an infinite bound.
type Segment struct {
	UpperBound float64
	Velocity   float64
	Curvature  CurvatureRule
	Comment    string
}

// BuildSegments converts config rows into the ordered segment table.
func BuildSegments(cfgs []SegmentConfig) ([]Segment, error) {
	out := make([]Segment, 0, len(cfgs))
	for i, c := range cfgs {
		seg := Segment{
			UpperBound: math.Inf(1),
			Velocity:   c.VelocityMPS,
			Comment:    c.Comment,
		}
		if c.UpperBoundM != nil {
			seg.UpperBound = *c.UpperBoundM
		}
		switch c.Curvature.Mode {
		case "", CurvatureModeFixed:
			seg.Curvature = FixedCurvature(c.Curvature.Value)
		case CurvatureModeHeading:
			seg.Curvature = HeadingCorrection{
				Above:           c.Curvature.AboveDeg,
				Below:           c.Curvature.BelowDeg,
				AboveCurvature:  c.Curvature.AboveCurvature,
				BelowCurvature:  c.Curvature.BelowCurvature,
				InsideCurvature: c.Curvature.InsideCurvature,
			}
		default:
			return nil, fmt.Errorf("%w: segment %d: unknown curvature mode %q", ErrInvalidConfig, i, c.Curvature.Mode)
		}
		out = append(out, seg)
	}
	return out, nil
}

// DefaultSegments returns the built-in path plan.
func DefaultSegments() []Segment {
	segs, err := BuildSegments(DefaultSegmentConfigs())
	if err != nil {
		panic(err)
	}
	return segs
}

// TrajectorySupervisor maps path distance and heading to a MotionCommand by
// walking an ordered segment table; first match wins.
type TrajectorySupervisor struct {
	segments []Segment
}

// NewTrajectorySupervisor validates the table: bounds strictly increasing,
// the last segment unbounded, dead-bands well ordered.
func NewTrajectorySupervisor(segments []Segment) (*TrajectorySupervisor, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: trajectory needs at least one segment", ErrInvalidConfig)
	}
	prev := math.Inf(-1)
	for i, s := range segments {
		if math.IsNaN(s.UpperBound) || s.UpperBound <= prev {
			return nil, fmt.Errorf("%w: segment %d upper bound %v not above %v", ErrInvalidConfig, i, s.UpperBound, prev)
		}
		if !isFinite(s.Velocity) {
			return nil, fmt.Errorf("%w: segment %d velocity %v", ErrInvalidConfig, i, s.Velocity)
		}
		switch rule := s.Curvature.(type) {
		case nil:
			return nil, fmt.Errorf("%w: segment %d has no curvature rule", ErrInvalidConfig, i)
		case HeadingCorrection:
			if !(rule.Below < rule.Above) {
				return nil, fmt.Errorf("%w: segment %d dead-band below %v must be under above %v",
					ErrInvalidConfig, i, rule.Below, rule.Above)
			}
		}
		prev = s.UpperBound
	}
	if !math.IsInf(prev, 1) {
		return nil, fmt.Errorf("%w: last segment must be unbounded, got %v", ErrInvalidConfig, prev)
	}

	segs := make([]Segment, len(segments))
	copy(segs, segments)
	return &TrajectorySupervisor{segments: segs}, nil
}

// NextCommand returns the velocity and curvature for the segment containing
// pathDistance.
func (ts *TrajectorySupervisor) NextCommand(pathDistance, headingDeg float64) (MotionCommand, error) {
	if !isFinite(pathDistance) {
		return MotionCommand{}, fmt.Errorf("%w: path distance %v", ErrInvalidInput, pathDistance)
	}
	if !isFinite(headingDeg) {
		return MotionCommand{}, fmt.Errorf("%w: heading %v", ErrInvalidInput, headingDeg)
	}
	seg := ts.segments[ts.ActiveSegment(pathDistance)]
	return MotionCommand{
		LinearVelocity: seg.Velocity,
		Curvature:      seg.Curvature.Curvature(headingDeg),
	}, nil
}

// ActiveSegment returns the index of the segment containing pathDistance
func (ts *TrajectorySupervisor) ActiveSegment(pathDistance float64) int {
	for i, s := range ts.segments {
		if pathDistance <= s.UpperBound {
			return i
		}
	}
	return len(ts.segments) - 1
}

// Terminal reports whether pathDistance lies in the final segment
func (ts *TrajectorySupervisor) Terminal(pathDistance float64) bool {
	return ts.ActiveSegment(pathDistance) == len(ts.segments)-1
}

// Segment returns a copy of segment i
func (ts *TrajectorySupervisor) Segment(i int) Segment {
	return ts.segments[i]
}

// Len returns the number of segments
func (ts *TrajectorySupervisor) Len() int { return len(ts.segments) }
