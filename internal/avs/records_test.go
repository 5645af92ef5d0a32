package avs

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, IdentitySize, binary.Size(Identity{}))
	assert.Equal(t, MeasureConfigSize, binary.Size(MeasureConfig{}))
	assert.Equal(t, DeviceConfigSize, binary.Size(DeviceConfig{}))
	assert.Equal(t, VersionLen, binary.Size(VersionString{}))
}

func TestLayoutTotalsMatchSize(t *testing.T) {
	for _, rec := range []any{&Identity{}, &MeasureConfig{}, &DeviceConfig{}} {
		fields := Layout(rec)
		require.NotEmpty(t, fields)
		last := fields[len(fields)-1]
		assert.Equal(t, binary.Size(rec), last.Offset+last.Width, "%T", rec)

		offset := 0
		for _, f := range fields {
			assert.Equal(t, offset, f.Offset, "%T.%s", rec, f.Name)
			offset += f.Width
		}
	}
}

func TestDeviceConfigOffsets(t *testing.T) {
	cfg := &DeviceConfig{}
	cases := map[string]int{
		"Len":                 0,
		"UserFriendlyID":      4,
		"Detector.SensorType": 68,
		"Detector.NrPixels":   69,
		"Irradiance.IntensityCalib.Smoothing.SmoothPix": 256,
		"Reflectance.Smoothing.SmoothPix":               16652,
		"SpectrumCorrect":                               33043,
		"StandAlone.Enable":                             49427,
		"Temperature":                                   49483,
		"TecControl.Enable":                             49543,
		"TecControl.Setpoint":                           49544,
		"ProcessControl.AnalogLow":                      49556,
		"Ethernet.IPAddr":                               49652,
		"Reserved":                                      49668,
		"OEMData":                                       59388,
	}
	for name, want := range cases {
		assert.Equal(t, want, FieldOffset(cfg, name), name)
	}
	assert.Equal(t, -1, FieldOffset(cfg, "NoSuchField"))
}

func TestMeasureConfigOffsets(t *testing.T) {
	m := &MeasureConfig{}
	assert.Equal(t, 4, FieldOffset(m, "IntegrationTime"))
	assert.Equal(t, 16, FieldOffset(m, "DynamicDark.Enable"))
	assert.Equal(t, 22, FieldOffset(m, "Trigger.Mode"))
	assert.Equal(t, 25, FieldOffset(m, "Control.StrobeControl"))
	assert.Equal(t, 39, FieldOffset(m, "Control.StoreToRam"))
}

func TestThermistorFitLandsInThirdSensor(t *testing.T) {
	cfg := &DeviceConfig{}
	cfg.Temperature[2].Fit = [5]float32{1, 2, 0, 0, 0}
	cfg.TecControl.Setpoint = 5

	raw, err := Marshal(cfg)
	require.NoError(t, err)
	require.Len(t, raw, DeviceConfigSize)

	off := FieldOffset(cfg, "Temperature") + 2*binary.Size(TempSensor{})
	assert.Equal(t, 49523, off)
	fit0 := math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
	assert.Equal(t, float32(1), fit0)

	setpoint := math.Float32frombits(binary.LittleEndian.Uint32(raw[FieldOffset(cfg, "TecControl.Setpoint"):]))
	assert.Equal(t, float32(5), setpoint)

	var decoded DeviceConfig
	require.NoError(t, Unmarshal(raw, &decoded))
	assert.Equal(t, [5]float32{1, 2, 0, 0, 0}, decoded.ThermistorFit())
}

func TestUnmarshalShortBuffer(t *testing.T) {
	var id Identity
	err := Unmarshal(make([]byte, IdentitySize-1), &id)
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	id := NewIdentity("1606190U1", "Fake Spectrograph", StatusUSBAvailable)
	assert.Equal(t, "1606190U1", id.Serial())
	assert.Equal(t, "Fake Spectrograph", id.Name())
	assert.Equal(t, `AvsIdentity("1606190U1", "Fake Spectrograph", USB_AVAILABLE)`, id.String())

	same := NewIdentity("1606190U1", "Fake Spectrograph", StatusUSBAvailable)
	assert.True(t, id == same)
	other := NewIdentity("1606190U1", "Fake Spectrograph", StatusUSBInUseByOther)
	assert.False(t, id == other)

	raw, err := Marshal(&id)
	require.NoError(t, err)
	require.Len(t, raw, IdentitySize)
	assert.Equal(t, byte(StatusUSBAvailable), raw[IdentitySize-1])
}

func TestDecodeString(t *testing.T) {
	assert.Equal(t, "abc", DecodeString([]byte{'a', 'b', 'c', 0, 'x'}))
	assert.Equal(t, "abc", DecodeString([]byte("abc")))
	assert.Equal(t, "", DecodeString(make([]byte, 4)))
}

func TestDeviceStatus(t *testing.T) {
	assert.False(t, StatusUSBAvailable.InUse())
	assert.False(t, StatusEthAvailable.InUse())
	assert.False(t, StatusUnknown.InUse())
	for _, s := range []DeviceStatus{
		StatusUSBInUseByApplication, StatusUSBInUseByOther,
		StatusEthInUseByApplication, StatusEthInUseByOther, StatusEthAlreadyInUseUSB,
	} {
		assert.True(t, s.InUse(), s.String())
	}
	assert.Equal(t, "DeviceStatus(42)", DeviceStatus(42).String())
}

func TestDeviceConfigStringOmitsLongFields(t *testing.T) {
	cfg := &DeviceConfig{}
	cfg.TecControl.Setpoint = 5
	s := cfg.String()
	assert.Contains(t, s, "TecControl.Setpoint=5")
	assert.NotContains(t, s, "OEMData")
	assert.NotContains(t, s, "SpectrumCorrect")
	assert.Less(t, len(s), 4096)
}

func TestMeasureConfigString(t *testing.T) {
	m := MeasureConfig{StopPixel: 2047, IntegrationTime: 0.5, NrAverages: 1}
	s := m.String()
	assert.Contains(t, s, "StopPixel=2047")
	assert.Contains(t, s, "IntegrationTime=0.5")
}
