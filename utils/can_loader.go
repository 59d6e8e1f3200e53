package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var requiredColumns = []string{
	"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
}

// LoadCANMap reads a can_map.csv file
func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseCANMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ParseCANMap reads can_map.csv rows: one row per signal, frames grouped by
// frame_id.
func ParseCANMap(in io.Reader) (*CANMap, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range requiredColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can_map.csv missing required column: %q", k)
		}
	}

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		p := rowParser{rec: rec, idx: idx}

		frameID, err := parseHexOrDecUint32(p.text("frame_id"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid frame_id %q: %w", line, p.text("frame_id"), err)
		}
		frameName := p.text("frame_name")
		direction := strings.ToLower(p.text("direction"))
		cycleMS := p.integer("cycle_ms")
		dlc := p.integer("dlc")

		sig := SignalDef{
			Name:       p.text("signal_name"),
			StartBit:   p.integer("start_bit"),
			BitLength:  p.integer("bit_length"),
			Endianness: p.text("endianness"),
			Signed:     p.flag("signed"),
			Factor:     p.number("factor"),
			Offset:     p.number("offset"),
			Min:        p.number("min"),
			Max:        p.number("max"),
			Default:    p.number("default"),
			Unit:       p.text("unit"),
			Comment:    p.text("comment"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: frame %s signal %s: %w", line, frameName, sig.Name, p.err)
		}

		if direction != DirectionRX && direction != DirectionTX {
			return nil, fmt.Errorf("frame %s: direction must be rx or tx, got %q", frameName, direction)
		}
		if sig.Endianness != "" && sig.Endianness != "little" {
			return nil, fmt.Errorf("frame %s signal %s: unsupported endianness %q (only little supported)",
				frameName, sig.Name, sig.Endianness)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 {
			return nil, fmt.Errorf("frame %s signal %s: invalid bit_length %d", frameName, sig.Name, sig.BitLength)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}
		if sig.StartBit < 0 || sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("frame %s signal %s: bits [%d,%d) exceed dlc %d",
				frameName, sig.Name, sig.StartBit, sig.StartBit+sig.BitLength, dlc)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("frame %s signal %s: factor must be non-zero", frameName, sig.Name)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			if other, dup := m.ByName[frameName]; dup {
				return nil, fmt.Errorf("frame name %s used by 0x%X and 0x%X", frameName, other.ID, frameID)
			}
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: direction,
				CycleMS:   cycleMS,
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}

		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}
		if _, dup := fd.Signal(sig.Name); dup {
			return nil, fmt.Errorf("frame %s: duplicate signal %s", frameName, sig.Name)
		}
		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}

	return m, nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// Require checks that every named frame exists with the given direction
func (m *CANMap) Require(dir string, names ...string) error {
	for _, n := range names {
		fd, err := m.FrameByName(n)
		if err != nil {
			return err
		}
		if fd.Direction != dir {
			return fmt.Errorf("frame %s is %s, want %s", n, fd.Direction, dir)
		}
	}
	return nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

// rowParser keeps the first conversion error so a row reports one failure
type rowParser struct {
	rec []string
	idx map[string]int
	err error
}

func (p *rowParser) text(col string) string {
	i := p.idx[col]
	if i >= len(p.rec) {
		return ""
	}
	return strings.TrimSpace(p.rec[i])
}

func (p *rowParser) integer(col string) int {
	s := p.text(col)
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (p *rowParser) number(col string) float64 {
	s := p.text(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (p *rowParser) flag(col string) bool {
	ss := strings.ToLower(p.text(col))
	return ss == "true" || ss == "1" || ss == "yes"
}
