package spectrograph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/fiberspec/internal/avs"
	apperrors "github.com/wfunc/fiberspec/internal/errors"
	"go.uber.org/zap"
)

func connectSim(t *testing.T, sim *avs.Simulator, opts Options) *Controller {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c, err := Connect(sim, opts)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectSingleDevice(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})

	h, ok := c.Handle()
	assert.True(t, ok)
	assert.Equal(t, avs.SimHandle, h)
	assert.Equal(t, avs.SimNumPixels, c.PixelCount())
	assert.Equal(t, avs.SimSerialNumber, c.Device().Serial())
	assert.True(t, c.Connected())
	assert.Equal(t, StateIdle, c.ExposureState())

	assert.Equal(t, 1, sim.Calls(avs.OpInit))
	assert.Equal(t, 2, sim.Calls(avs.OpGetList), "size query then fill")
	assert.Equal(t, 1, sim.Calls(avs.OpActivate))
	assert.Equal(t, 1, sim.Calls(avs.OpGetNumPixels))
	assert.Equal(t, 0, sim.Calls(avs.OpDone))
}

func TestConnectNoDevices(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetDevices()

	_, err := Connect(sim, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoDevices))
	assert.Contains(t, err.Error(), "No attached USB Avantes devices found.")
	assert.Equal(t, 0, sim.Calls(avs.OpActivate))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestConnectMultipleDevicesWithoutSerial(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetDevices(
		avs.NewIdentity("1606192U1", "blue", avs.StatusUSBAvailable),
		avs.NewIdentity("1606190U1", "red", avs.StatusUSBAvailable),
	)

	_, err := Connect(sim, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAmbiguousDevice))
	assert.Contains(t, err.Error(), "Multiple devices found, but no serial number specified.")
	assert.Contains(t, err.Error(), `AvsIdentity("1606192U1", "blue", USB_AVAILABLE)`)
	assert.Contains(t, err.Error(), `AvsIdentity("1606190U1", "red", USB_AVAILABLE)`)
	assert.Equal(t, 0, sim.Calls(avs.OpActivate))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestConnectBySerialNumber(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetDevices(
		avs.NewIdentity("1606192U1", "blue", avs.StatusUSBAvailable),
		avs.NewIdentity("1606191U1", "broad", avs.StatusUSBAvailable),
	)

	c := connectSim(t, sim, Options{SerialNumber: "1606191U1"})
	assert.Equal(t, "1606191U1", c.Device().Serial())
	assert.Equal(t, "broad", c.Device().Name())
}

func TestConnectSerialNumberNotFound(t *testing.T) {
	sim := avs.NewSimulator()

	_, err := Connect(sim, Options{SerialNumber: "12345", Logger: zap.NewNop()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotFound))
	assert.Contains(t, err.Error(), `Device serial_number="12345" not found in device list`)
	assert.Equal(t, 0, sim.Calls(avs.OpActivate))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestConnectDeviceInUse(t *testing.T) {
	for _, status := range []avs.DeviceStatus{
		avs.StatusUSBInUseByApplication,
		avs.StatusUSBInUseByOther,
	} {
		t.Run(status.String(), func(t *testing.T) {
			sim := avs.NewSimulator()
			sim.SetDevices(avs.NewIdentity(avs.SimSerialNumber, avs.SimDeviceName, status))

			_, err := Connect(sim, Options{SerialNumber: avs.SimSerialNumber, Logger: zap.NewNop()})
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrDeviceInUse))
			assert.Contains(t, err.Error(), "Requested AVS device is already in use")
			assert.Equal(t, 0, sim.Calls(avs.OpActivate), "no activation attempt")
		})
	}
}

func TestConnectActivateFailure(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetReturnCode(avs.OpActivate, int32(avs.ErrCommunication))

	_, err := Connect(sim, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrVendorCall))
	assert.Contains(t, err.Error(), "Error calling `Activate` with error code ERR_COMMUNICATION")

	var rerr *avs.ReturnError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, avs.ErrCommunication, rerr.Code)
	assert.Equal(t, 0, sim.Calls(avs.OpDeactivate))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestConnectInvalidHandle(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetHandle(avs.InvalidHandle)

	_, err := Connect(sim, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidHandle))
	assert.Contains(t, err.Error(), "Invalid device handle")
	assert.Equal(t, 0, sim.Calls(avs.OpGetNumPixels))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestConnectReleasesAfterPixelQueryFailure(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetReturnCode(avs.OpGetNumPixels, int32(avs.ErrCommunication))

	_, err := Connect(sim, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GetNumPixels")
	assert.Equal(t, 1, sim.Calls(avs.OpDeactivate))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestConnectGetListSizeQueryFailure(t *testing.T) {
	sim := avs.NewSimulator()
	sim.SetReturnCode(avs.OpGetList, int32(avs.ErrCommunication))

	_, err := Connect(sim, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GetList")
	assert.Equal(t, 1, sim.Calls(avs.OpGetList))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})

	c.Disconnect()
	h1, ok1 := c.Handle()
	c.Disconnect()
	h2, ok2 := c.Handle()

	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Equal(t, h1, h2)
	assert.False(t, c.Connected())
	assert.Equal(t, 1, sim.Calls(avs.OpDeactivate))
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
}

func TestDisconnectWhenDeactivateFails(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})
	sim.SetDeactivateResult(false)

	assert.NotPanics(t, c.Disconnect)
	assert.Equal(t, 1, sim.Calls(avs.OpDone))
	_, ok := c.Handle()
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})

	status, err := c.Status(false)
	require.NoError(t, err)
	assert.Equal(t, avs.SimNumPixels, status.PixelCount)
	assert.Equal(t, avs.SimFPGAVersion, status.FPGAVersion)
	assert.Equal(t, avs.SimFirmwareVersion, status.FirmwareVersion)
	assert.Equal(t, avs.SimLibraryVersion, status.LibraryVersion)
	assert.InDelta(t, 5.0, status.TemperatureSetpoint, 1e-6)
	assert.InDelta(t, 5.0, status.Temperature, 1e-6)
	assert.Nil(t, status.Config)

	full, err := c.Status(true)
	require.NoError(t, err)
	require.NotNil(t, full.Config)
	assert.Equal(t, status.Temperature, DecodeTemperature(full.Config, avs.SimVoltage))
}

func TestStatusTemperatureIsLive(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})

	sim.SetThermistor(3, [5]float32{-1, 0.5, 1, 0, 0})
	status, err := c.Status(false)
	require.NoError(t, err)
	// -1 + 0.5*3 + 1*9
	assert.InDelta(t, 9.5, status.Temperature, 1e-6)
	assert.Equal(t, 3, sim.Calls(avs.OpGetAnalogIn)+sim.Calls(avs.OpGetParameter)+sim.Calls(avs.OpGetVersionInfo))
}

func TestStatusVendorFailureKeepsConnection(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})
	sim.SetReturnCode(avs.OpGetAnalogIn, int32(avs.ErrTimeout))

	_, err := c.Status(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error calling `GetAnalogIn` with error code ERR_TIMEOUT")
	assert.True(t, c.Connected())
	assert.Equal(t, 0, sim.Calls(avs.OpDeactivate))
}

func TestStatusUnknownVendorCode(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})
	sim.SetReturnCode(avs.OpGetVersionInfo, -999)

	_, err := c.Status(false)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnknownVendorCode))
	assert.Contains(t, err.Error(), "Unknown Error (-999) calling `GetVersionInfo`")
}

func TestStatusParameterBufferTooSmall(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})
	sim.SetReturnCode(avs.OpGetParameter, int32(avs.ErrInvalidSize))

	_, err := c.Status(true)
	require.Error(t, err)
	var rerr *avs.ReturnError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.BufferTooSmall())
	assert.Contains(t, err.Error(), "allocated size too small for data.")
}

func TestStatusAfterDisconnect(t *testing.T) {
	sim := avs.NewSimulator()
	c := connectSim(t, sim, Options{})
	c.Disconnect()

	_, err := c.Status(false)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotConnected))
}

func TestDecodeTemperature(t *testing.T) {
	cfg := &avs.DeviceConfig{}
	cfg.Temperature[2].Fit = [5]float32{1, 2, 0, 0, 0}
	assert.InDelta(t, 5.0, DecodeTemperature(cfg, 2), 1e-9)

	cfg.Temperature[2].Fit = [5]float32{0, 0, 0, 0, 1}
	assert.InDelta(t, 16.0, DecodeTemperature(cfg, 2), 1e-9)

	// 只使用第三个传感器的系数
	cfg.Temperature[0].Fit = [5]float32{100, 0, 0, 0, 0}
	assert.InDelta(t, 16.0, DecodeTemperature(cfg, 2), 1e-9)
}
