package avs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activate(t *testing.T, sim *Simulator) Handle {
	t.Helper()
	var required uint32
	require.Equal(t, int32(ErrInvalidSize), sim.GetList(0, &required, nil))
	require.Equal(t, uint32(IdentitySize), required)

	list := make([]Identity, required/IdentitySize)
	require.Equal(t, int32(1), sim.GetList(required, &required, list))

	h := sim.Activate(&list[0])
	require.Equal(t, SimHandle, h)
	return h
}

func TestSimulatorEnumeration(t *testing.T) {
	sim := NewSimulator()
	assert.Equal(t, int32(1), sim.Init(0))
	assert.Equal(t, int32(1), sim.UpdateUSBDevices())

	var required uint32
	assert.Equal(t, int32(ErrInvalidSize), sim.GetList(0, &required, nil))
	list := make([]Identity, 1)
	assert.Equal(t, int32(1), sim.GetList(required, &required, list))
	assert.Equal(t, NewIdentity(SimSerialNumber, SimDeviceName, StatusUSBAvailable), list[0])
	assert.Equal(t, 2, sim.Calls(OpGetList))
}

func TestSimulatorDefaults(t *testing.T) {
	sim := NewSimulator()
	h := activate(t, sim)

	var n uint16
	require.NoError(t, Check(sim.GetNumPixels(h, &n), OpGetNumPixels))
	assert.Equal(t, uint16(SimNumPixels), n)

	var fpga, fw, lib VersionString
	require.NoError(t, Check(sim.GetVersionInfo(h, &fpga, &fw, &lib), OpGetVersionInfo))
	assert.Equal(t, SimFPGAVersion, fpga.String())
	assert.Equal(t, SimFirmwareVersion, fw.String())
	assert.Equal(t, SimLibraryVersion, lib.String())

	var cfg DeviceConfig
	var required uint32
	require.NoError(t, Check(sim.GetParameter(h, DeviceConfigSize, &required, &cfg), OpGetParameter))
	assert.Equal(t, float32(SimSetpoint), cfg.TecControl.Setpoint)
	assert.Equal(t, [5]float32{1, 2, 0, 0, 0}, cfg.ThermistorFit())

	var v float32
	require.NoError(t, Check(sim.GetAnalogIn(h, 0, &v), OpGetAnalogIn))
	assert.Equal(t, float32(SimVoltage), v)

	assert.Equal(t, int32(ErrInvalidSize), sim.GetParameter(h, DeviceConfigSize-1, &required, &cfg))
}

func TestSimulatorMeasurement(t *testing.T) {
	sim := NewSimulator()
	h := activate(t, sim)

	mc := &MeasureConfig{StopPixel: SimNumPixels - 1, IntegrationTime: 1, NrAverages: 1}
	require.NoError(t, Check(sim.PrepareMeasure(h, mc), OpPrepareMeasure))
	assert.Equal(t, *mc, *sim.LastMeasureConfig())
	require.NoError(t, Check(sim.Measure(h, 1), OpMeasure))

	wavelength := make([]float64, SimNumPixels)
	require.NoError(t, Check(sim.GetLambda(h, wavelength), OpGetLambda))
	assert.Equal(t, 10.0, wavelength[10])

	var polls []int32
	for i := 0; i < 5; i++ {
		polls = append(polls, sim.PollScan(h))
	}
	assert.Equal(t, []int32{0, 0, 0, 1, 1}, polls)

	spectrum := make([]float64, SimNumPixels)
	var label uint32
	require.NoError(t, Check(sim.GetScopeData(h, &label, spectrum), OpGetScopeData))
	assert.Equal(t, 20.0, spectrum[10])

	// 新的测量从脚本开头重新开始
	require.NoError(t, Check(sim.Measure(h, 1), OpMeasure))
	assert.Equal(t, int32(0), sim.PollScan(h))
}

func TestSimulatorForcedCodesAndHandle(t *testing.T) {
	sim := NewSimulator()
	h := activate(t, sim)

	sim.SetReturnCode(OpStopMeasure, int32(ErrTimeout))
	assert.Equal(t, int32(ErrTimeout), sim.StopMeasure(h))
	sim.ClearReturnCode(OpStopMeasure)
	assert.Equal(t, int32(Success), sim.StopMeasure(h))

	assert.True(t, sim.Deactivate(h))
	var n uint16
	assert.Equal(t, int32(ErrInvalidDeviceID), sim.GetNumPixels(h, &n))

	sim.SetReturnCode(OpActivate, -5)
	id := NewIdentity(SimSerialNumber, SimDeviceName, StatusUSBAvailable)
	assert.Equal(t, Handle(-5), sim.Activate(&id))
}

func TestSimulatorConcurrentCalls(t *testing.T) {
	sim := NewSimulator()
	h := activate(t, sim)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var v float32
			sim.GetAnalogIn(h, 0, &v)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, sim.Calls(OpGetAnalogIn))
}

func TestOpenWithoutLibrary(t *testing.T) {
	_, err := Open("/nonexistent/libavs.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/libavs.so")
}
