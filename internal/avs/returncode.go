package avs

import "fmt"

// ReturnCode libavs 返回值
//
// 取自 avaspec.h，与 "Avantes Linux Library Manual" 9.6.0.0 第 3.6.1 节
// "Return Value Constants" 一致。
type ReturnCode int32

const (
	Success ReturnCode = 0

	ErrInvalidParameter      ReturnCode = -1
	ErrOperationNotSupported ReturnCode = -2
	ErrDeviceNotFound        ReturnCode = -3
	ErrInvalidDeviceID       ReturnCode = -4
	ErrOperationPending      ReturnCode = -5
	ErrTimeout               ReturnCode = -6
	ErrInvalidPassword       ReturnCode = -7
	ErrInvalidMeasData       ReturnCode = -8
	ErrInvalidSize           ReturnCode = -9
	ErrInvalidPixelRange     ReturnCode = -10
	ErrInvalidIntTime        ReturnCode = -11
	ErrInvalidCombination    ReturnCode = -12
	ErrInvalidConfiguration  ReturnCode = -13
	ErrNoMeasBufferAvail     ReturnCode = -14
	ErrUnknown               ReturnCode = -15
	ErrCommunication         ReturnCode = -16
	ErrNoSpectraInRAM        ReturnCode = -17
	ErrInvalidDLLVersion     ReturnCode = -18
	ErrNoMemory              ReturnCode = -19
	ErrDLLInitialisation     ReturnCode = -20
	ErrInvalidState          ReturnCode = -21
	ErrInvalidReply          ReturnCode = -22
	ErrAccess                ReturnCode = -24

	// DeviceData 检查
	ErrInvalidParameterNrPixels  ReturnCode = -100
	ErrInvalidParameterADCGain   ReturnCode = -101
	ErrInvalidParameterADCOffset ReturnCode = -102

	// PrepareMeasurement 检查
	ErrInvalidMeasParamAvgSat2  ReturnCode = -110
	ErrInvalidMeasParamAvgRAM   ReturnCode = -111
	ErrInvalidMeasParamSyncRAM  ReturnCode = -112
	ErrInvalidMeasParamLevelRAM ReturnCode = -113
	ErrInvalidMeasParamSat2RAM  ReturnCode = -114
	ErrInvalidMeasParamFwVerRAM ReturnCode = -115
	ErrInvalidMeasParamDynDark  ReturnCode = -116

	// SetSensitivityMode 检查
	ErrNotSupportedBySensorType ReturnCode = -120
	ErrNotSupportedByFwVer      ReturnCode = -121
	ErrNotSupportedByFPGAVer    ReturnCode = -122

	// SuppressStrayLight 检查
	ErrSLCalibrationNotAvailable ReturnCode = -140
	ErrSLStartPixelNotInRange    ReturnCode = -141
	ErrSLEndPixelNotInRange      ReturnCode = -142
	ErrSLStartPixGtEndPix        ReturnCode = -143
	ErrSLMFactorOutOfRange       ReturnCode = -144
)

var returnCodeNames = map[ReturnCode]string{
	Success:                      "SUCCESS",
	ErrInvalidParameter:          "ERR_INVALID_PARAMETER",
	ErrOperationNotSupported:     "ERR_OPERATION_NOT_SUPPORTED",
	ErrDeviceNotFound:            "ERR_DEVICE_NOT_FOUND",
	ErrInvalidDeviceID:           "ERR_INVALID_DEVICE_ID",
	ErrOperationPending:          "ERR_OPERATION_PENDING",
	ErrTimeout:                   "ERR_TIMEOUT",
	ErrInvalidPassword:           "ERR_INVALID_PASSWORD",
	ErrInvalidMeasData:           "ERR_INVALID_MEAS_DATA",
	ErrInvalidSize:               "ERR_INVALID_SIZE",
	ErrInvalidPixelRange:         "ERR_INVALID_PIXEL_RANGE",
	ErrInvalidIntTime:            "ERR_INVALID_INT_TIME",
	ErrInvalidCombination:        "ERR_INVALID_COMBINATION",
	ErrInvalidConfiguration:      "ERR_INVALID_CONFIGURATION",
	ErrNoMeasBufferAvail:         "ERR_NO_MEAS_BUFFER_AVAIL",
	ErrUnknown:                   "ERR_UNKNOWN",
	ErrCommunication:             "ERR_COMMUNICATION",
	ErrNoSpectraInRAM:            "ERR_NO_SPECTRA_IN_RAM",
	ErrInvalidDLLVersion:         "ERR_INVALID_DLL_VERSION",
	ErrNoMemory:                  "ERR_NO_MEMORY",
	ErrDLLInitialisation:         "ERR_DLL_INITIALISATION",
	ErrInvalidState:              "ERR_INVALID_STATE",
	ErrInvalidReply:              "ERR_INVALID_REPLY",
	ErrAccess:                    "ERR_ACCESS",
	ErrInvalidParameterNrPixels:  "ERR_INVALID_PARAMETER_NR_PIXELS",
	ErrInvalidParameterADCGain:   "ERR_INVALID_PARAMETER_ADC_GAIN",
	ErrInvalidParameterADCOffset: "ERR_INVALID_PARAMETER_ADC_OFFSET",
	ErrInvalidMeasParamAvgSat2:   "ERR_INVALID_MEASPARAM_AVG_SAT2",
	ErrInvalidMeasParamAvgRAM:    "ERR_INVALID_MEASPARAM_AVG_RAM",
	ErrInvalidMeasParamSyncRAM:   "ERR_INVALID_MEASPARAM_SYNC_RAM",
	ErrInvalidMeasParamLevelRAM:  "ERR_INVALID_MEASPARAM_LEVEL_RAM",
	ErrInvalidMeasParamSat2RAM:   "ERR_INVALID_MEASPARAM_SAT2_RAM",
	ErrInvalidMeasParamFwVerRAM:  "ERR_INVALID_MEASPARAM_FWVER_RAM",
	ErrInvalidMeasParamDynDark:   "ERR_INVALID_MEASPARAM_DYNDARK",
	ErrNotSupportedBySensorType:  "ERR_NOT_SUPPORTED_BY_SENSOR_TYPE",
	ErrNotSupportedByFwVer:       "ERR_NOT_SUPPORTED_BY_FW_VER",
	ErrNotSupportedByFPGAVer:     "ERR_NOT_SUPPORTED_BY_FPGA_VER",
	ErrSLCalibrationNotAvailable: "ERR_SL_CALIBRATION_NOT_AVAILABLE",
	ErrSLStartPixelNotInRange:    "ERR_SL_STARTPIXEL_NOT_IN_RANGE",
	ErrSLEndPixelNotInRange:      "ERR_SL_ENDPIXEL_NOT_IN_RANGE",
	ErrSLStartPixGtEndPix:        "ERR_SL_STARTPIX_GT_ENDPIX",
	ErrSLMFactorOutOfRange:       "ERR_SL_MFACTOR_OUT_OF_RANGE",
}

// Known 是否为已登记的返回值
func (c ReturnCode) Known() bool {
	_, ok := returnCodeNames[c]
	return ok
}

func (c ReturnCode) String() string {
	if name, ok := returnCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ReturnCode(%d)", int32(c))
}

// ReturnError AVS_* 调用返回负值时的错误
type ReturnError struct {
	Code       ReturnCode
	Op         string
	Recognized bool
}

func (e *ReturnError) Error() string {
	switch {
	case !e.Recognized:
		return fmt.Sprintf("Unknown Error (%d) calling `%s`; consult vendor documentation and extend the taxonomy.",
			int32(e.Code), e.Op)
	case e.Code == ErrInvalidSize:
		return fmt.Sprintf("Fatal Error %s calling `%s`: allocated size too small for data.", e.Code, e.Op)
	default:
		return fmt.Sprintf("Error calling `%s` with error code %s", e.Op, e.Code)
	}
}

// BufferTooSmall 缓冲区大小错误，说明记录布局有误
func (e *ReturnError) BufferTooSmall() bool {
	return e.Recognized && e.Code == ErrInvalidSize
}

// Classify 将厂商返回码转换为 ReturnError
func Classify(code int32, op string) *ReturnError {
	rc := ReturnCode(code)
	return &ReturnError{Code: rc, Op: op, Recognized: rc.Known()}
}

// Check 返回值为负时返回 *ReturnError
func Check(code int32, op string) error {
	if code < 0 {
		return Classify(code, op)
	}
	return nil
}
