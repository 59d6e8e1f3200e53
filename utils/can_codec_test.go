package utils

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func loadRepoMap(t *testing.T) *CANMap {
	t.Helper()
	m, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)
	return m
}

func TestLoadCANMap_RepoMap(t *testing.T) {
	m := loadRepoMap(t)

	assert.Equal(t, []string{
		"IMU_HEADING", "MOTOR_VOLTAGE_CMD", "ODOMETRY_PATH", "ODOMETRY_POSE",
		"ODOMETRY_VEL", "WHEEL_ENCODER_FRONT", "WHEEL_ENCODER_REAR",
	}, m.FrameNames())

	require.NoError(t, m.Require(DirectionRX, "WHEEL_ENCODER_FRONT", "WHEEL_ENCODER_REAR", "IMU_HEADING"))
	require.NoError(t, m.Require(DirectionTX, "MOTOR_VOLTAGE_CMD", "ODOMETRY_POSE", "ODOMETRY_PATH", "ODOMETRY_VEL"))
	assert.Error(t, m.Require(DirectionTX, "IMU_HEADING"))
	assert.Error(t, m.Require(DirectionRX, "NOPE"))

	fd, err := m.FrameByID(0x220)
	require.NoError(t, err)
	assert.Equal(t, "MOTOR_VOLTAGE_CMD", fd.Name)
	assert.Equal(t, 5, fd.CycleMS)
	require.Len(t, fd.Signals, 4)
	assert.Equal(t, "fl_voltage", fd.Signals[0].Name)
	assert.Equal(t, "br_voltage", fd.Signals[3].Name)

	rx := m.FramesByDirection(DirectionRX)
	require.Len(t, rx, 3)
	assert.Equal(t, uint32(0x310), rx[0].ID)
}

func TestEncodeFrame_MotorVoltages(t *testing.T) {
	m := loadRepoMap(t)

	payload, id, err := m.EncodeFrame("MOTOR_VOLTAGE_CMD", map[string]float64{
		"bl_voltage": 0.001,
		"br_voltage": -0.001,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x220), id)
	assert.Equal(t, []byte{0, 0, 0x01, 0x00, 0, 0, 0xFF, 0xFF}, payload)
}

func TestEncodeDecode_ClampsToSignalRange(t *testing.T) {
	m := loadRepoMap(t)

	f, err := m.EncodeCANFrame("MOTOR_VOLTAGE_CMD", map[string]float64{
		"fl_voltage": 0,
		"bl_voltage": 3.25,
		"fr_voltage": 0,
		"br_voltage": -10,
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(8), f.Length)

	fd, got, err := m.DecodeCANFrame(f)
	require.NoError(t, err)
	assert.Equal(t, "MOTOR_VOLTAGE_CMD", fd.Name)
	assert.InDelta(t, 3.25, got["bl_voltage"], 1e-9)
	assert.InDelta(t, -7.2, got["br_voltage"], 1e-9)
	assert.Equal(t, 0.0, got["fl_voltage"])
	assert.Equal(t, 0.0, got["fr_voltage"])
}

func TestEncodeDecode_SignedTicksAndHeading(t *testing.T) {
	m := loadRepoMap(t)

	f, err := m.EncodeCANFrame("WHEEL_ENCODER_REAR", map[string]float64{
		"bl_ticks": -5,
		"br_ticks": math.MaxInt32,
	})
	require.NoError(t, err)
	_, got, err := m.DecodeCANFrame(f)
	require.NoError(t, err)
	assert.Equal(t, -5.0, got["bl_ticks"])
	assert.Equal(t, float64(math.MaxInt32), got["br_ticks"])

	f, err = m.EncodeCANFrame("IMU_HEADING", map[string]float64{"heading_deg": 270.45})
	require.NoError(t, err)
	assert.Equal(t, uint8(2), f.Length)
	_, got, err = m.DecodeCANFrame(f)
	require.NoError(t, err)
	assert.InDelta(t, 270.45, got["heading_deg"], 1e-9)
}

func TestEncodeDecode_Odometry(t *testing.T) {
	m := loadRepoMap(t)

	f, err := m.EncodeCANFrame("ODOMETRY_PATH", map[string]float64{
		"theta_rad":       -2.0001,
		"path_distance_m": 12.3456,
	})
	require.NoError(t, err)
	_, got, err := m.DecodeCANFrame(f)
	require.NoError(t, err)
	assert.InDelta(t, -2.0001, got["theta_rad"], 1e-9)
	assert.InDelta(t, 12.3456, got["path_distance_m"], 1e-9)
}

func TestEncodeFrame_Errors(t *testing.T) {
	m := loadRepoMap(t)

	_, _, err := m.EncodeFrame("NOPE", nil)
	assert.Error(t, err)

	_, _, err = m.EncodeFrame("MOTOR_VOLTAGE_CMD", map[string]float64{"bl_volts": 1})
	assert.ErrorContains(t, err, "no signal")

	_, _, err = m.EncodeFrame("MOTOR_VOLTAGE_CMD", map[string]float64{"bl_voltage": math.NaN()})
	assert.ErrorContains(t, err, "NaN")
}

func TestDecodeFrame_Errors(t *testing.T) {
	m := loadRepoMap(t)

	_, err := m.DecodeFrame(0x220, []byte{1, 2, 3})
	assert.ErrorContains(t, err, "expects DLC 8")

	_, err = m.DecodeFrame(0x7FF, make([]byte, 8))
	assert.Error(t, err)

	_, _, err = m.DecodeCANFrame(can.Frame{ID: 0x320, Length: 2, IsRemote: true})
	assert.Error(t, err)
}

func TestBits(t *testing.T) {
	assert.Equal(t, uint64(0xFFFF), rawToUnsigned(-1, 16))
	assert.Equal(t, int64(-1), unsignedToRawInt64(0xFFFF, 16, true))
	assert.Equal(t, int64(0xFFFF), unsignedToRawInt64(0xFFFF, 16, false))
	assert.Equal(t, int64(-32768), unsignedToRawInt64(0x8000, 16, true))
	assert.Equal(t, int64(-1), unsignedToRawInt64(math.MaxUint64, 64, true))

	p := setBits(0, 60, 4, 0xA)
	assert.Equal(t, uint64(0xA), getBits(p, 60, 4))
	p = setBits(p, 0, 64, math.MaxUint64)
	assert.Equal(t, uint64(math.MaxUint64), getBits(p, 0, 64))

	assert.Equal(t, int64(32767), clampRaw(1<<20, 16, true))
	assert.Equal(t, int64(-32768), clampRaw(-1<<20, 16, true))
	assert.Equal(t, int64(0), clampRaw(-3, 8, false))
	assert.Equal(t, int64(255), clampRaw(300, 8, false))
}

const csvHeader = "direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment\n"

func TestParseCANMap_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{"missing column", "direction,frame_id\nrx,0x1\n", "missing required column"},
		{"bad direction", csvHeader + "both,0x1,A,5,8,s,0,8,little,false,1,0,0,0,0,,\n", "direction"},
		{"bad frame id", csvHeader + "rx,0xZZ,A,5,8,s,0,8,little,false,1,0,0,0,0,,\n", "frame_id"},
		{"bad int", csvHeader + "rx,0x1,A,5,8,s,zero,8,little,false,1,0,0,0,0,,\n", "start_bit"},
		{"big endian", csvHeader + "rx,0x1,A,5,8,s,0,8,big,false,1,0,0,0,0,,\n", "endianness"},
		{"exceeds dlc", csvHeader + "rx,0x1,A,5,2,s,8,16,little,false,1,0,0,0,0,,\n", "exceed dlc"},
		{"zero factor", csvHeader + "rx,0x1,A,5,8,s,0,8,little,false,0,0,0,0,0,,\n", "factor"},
		{"inconsistent dlc", csvHeader +
			"rx,0x1,A,5,8,s,0,8,little,false,1,0,0,0,0,,\n" +
			"rx,0x1,A,5,4,t,8,8,little,false,1,0,0,0,0,,\n", "inconsistent DLC"},
		{"duplicate signal", csvHeader +
			"rx,0x1,A,5,8,s,0,8,little,false,1,0,0,0,0,,\n" +
			"rx,0x1,A,5,8,s,8,8,little,false,1,0,0,0,0,,\n", "duplicate signal"},
		{"name reused", csvHeader +
			"rx,0x1,A,5,8,s,0,8,little,false,1,0,0,0,0,,\n" +
			"rx,0x2,A,5,8,s,0,8,little,false,1,0,0,0,0,,\n", "used by"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCANMap(strings.NewReader(tt.csv))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseCANMap_CommentsAndDefaults(t *testing.T) {
	m, err := ParseCANMap(strings.NewReader(csvHeader +
		"# bench frame\n" +
		"tx,42,BENCH,10,1,level,0,8,,false,0.5,0,0,100,20,%,\n"))
	require.NoError(t, err)

	payload, id, err := m.EncodeFrame("BENCH", nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)
	assert.Equal(t, []byte{40}, payload, "default 20 at factor 0.5")
}
