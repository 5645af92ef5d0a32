//go:build libavs
// +build libavs

package avs

/*
#cgo LDFLAGS: -L/usr/local/lib -lavs
#include <stdlib.h>
#include <stdbool.h>

typedef int AvsHandle;

extern int AVS_Init(short a_Port);
extern int AVS_Done(void);
extern int AVS_UpdateUSBDevices(void);
extern int AVS_GetList(unsigned int a_ListSize, unsigned int* a_pRequiredSize, void* a_pList);
extern AvsHandle AVS_Activate(void* a_pDeviceId);
extern bool AVS_Deactivate(AvsHandle a_hDevice);
extern int AVS_GetNumPixels(AvsHandle a_hDevice, unsigned short* a_pNumPixels);
extern int AVS_GetParameter(AvsHandle a_hDevice, unsigned int a_Size, unsigned int* a_pRequiredSize, void* a_pData);
extern int AVS_GetVersionInfo(AvsHandle a_hDevice, char* a_pFPGAVersion, char* a_pFirmwareVersion, char* a_pDLLVersion);
extern int AVS_GetAnalogIn(AvsHandle a_hDevice, unsigned char a_AnalogInId, float* a_pAnalogIn);
extern int AVS_PrepareMeasure(AvsHandle a_hDevice, void* a_pMeasConfig);
extern int AVS_Measure(AvsHandle a_hDevice, void* a_hWnd, short a_Nmsr);
extern int AVS_GetLambda(AvsHandle a_hDevice, double* a_pWaveLength);
extern int AVS_PollScan(AvsHandle a_hDevice);
extern int AVS_GetScopeData(AvsHandle a_hDevice, unsigned int* a_pTimeLabel, double* a_pSpectrum);
extern int AVS_StopMeasure(AvsHandle a_hDevice);
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"
)

// cgoLibrary 通过cgo链接的 libavs
//
// 打包记录以字节缓冲区的形式传递，由 Marshal/Unmarshal 负责布局。
type cgoLibrary struct {
	path string
}

// Open 检查 libavs 是否安装在 path
//
// 实际使用的库在构建时由 -lavs 链接决定（见上方 LDFLAGS），运行时不会按 path 加载；
// path 应指向同一份库，只用于启动时尽早发现未安装的情况。
func Open(path string) (Library, error) {
	if path == "" {
		path = DefaultLibraryPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("libavs not installed at %s: %w", path, err)
	}
	return &cgoLibrary{path: path}, nil
}

func (l *cgoLibrary) Close() error { return nil }

func (l *cgoLibrary) Init(port int16) int32 {
	return int32(C.AVS_Init(C.short(port)))
}

func (l *cgoLibrary) Done() int32 {
	return int32(C.AVS_Done())
}

func (l *cgoLibrary) UpdateUSBDevices() int32 {
	return int32(C.AVS_UpdateUSBDevices())
}

func (l *cgoLibrary) GetList(listSize uint32, requiredSize *uint32, list []Identity) int32 {
	var required C.uint
	if requiredSize != nil {
		required = C.uint(*requiredSize)
	}
	var buf unsafe.Pointer
	if listSize > 0 {
		buf = C.calloc(C.size_t(listSize), 1)
		defer C.free(buf)
	}
	code := int32(C.AVS_GetList(C.uint(listSize), &required, buf))
	if requiredSize != nil {
		*requiredSize = uint32(required)
	}
	if code > 0 && buf != nil {
		raw := C.GoBytes(buf, C.int(listSize))
		for i := 0; i < len(list) && i < int(code); i++ {
			start := i * IdentitySize
			if start+IdentitySize > len(raw) {
				break
			}
			_ = Unmarshal(raw[start:start+IdentitySize], &list[i])
		}
	}
	return code
}

func (l *cgoLibrary) Activate(id *Identity) Handle {
	raw, err := Marshal(id)
	if err != nil {
		return Handle(ErrInvalidParameter)
	}
	buf := C.CBytes(raw)
	defer C.free(buf)
	return Handle(C.AVS_Activate(buf))
}

func (l *cgoLibrary) Deactivate(h Handle) bool {
	return bool(C.AVS_Deactivate(C.AvsHandle(h)))
}

func (l *cgoLibrary) GetNumPixels(h Handle, numPixels *uint16) int32 {
	var n C.ushort
	code := int32(C.AVS_GetNumPixels(C.AvsHandle(h), &n))
	*numPixels = uint16(n)
	return code
}

func (l *cgoLibrary) GetParameter(h Handle, size uint32, requiredSize *uint32, cfg *DeviceConfig) int32 {
	buf := C.calloc(C.size_t(size), 1)
	defer C.free(buf)
	var required C.uint
	code := int32(C.AVS_GetParameter(C.AvsHandle(h), C.uint(size), &required, buf))
	if requiredSize != nil {
		*requiredSize = uint32(required)
	}
	if code >= 0 {
		if err := Unmarshal(C.GoBytes(buf, C.int(size)), cfg); err != nil {
			return int32(ErrInvalidSize)
		}
	}
	return code
}

func (l *cgoLibrary) GetVersionInfo(h Handle, fpga, firmware, library *VersionString) int32 {
	var f, fw, lib [VersionLen]C.char
	code := int32(C.AVS_GetVersionInfo(C.AvsHandle(h), &f[0], &fw[0], &lib[0]))
	copy(fpga[:], C.GoBytes(unsafe.Pointer(&f[0]), VersionLen))
	copy(firmware[:], C.GoBytes(unsafe.Pointer(&fw[0]), VersionLen))
	copy(library[:], C.GoBytes(unsafe.Pointer(&lib[0]), VersionLen))
	return code
}

func (l *cgoLibrary) GetAnalogIn(h Handle, id uint8, value *float32) int32 {
	var v C.float
	code := int32(C.AVS_GetAnalogIn(C.AvsHandle(h), C.uchar(id), &v))
	*value = float32(v)
	return code
}

func (l *cgoLibrary) PrepareMeasure(h Handle, cfg *MeasureConfig) int32 {
	raw, err := Marshal(cfg)
	if err != nil {
		return int32(ErrInvalidParameter)
	}
	buf := C.CBytes(raw)
	defer C.free(buf)
	return int32(C.AVS_PrepareMeasure(C.AvsHandle(h), buf))
}

func (l *cgoLibrary) Measure(h Handle, nrOfScans int16) int32 {
	return int32(C.AVS_Measure(C.AvsHandle(h), nil, C.short(nrOfScans)))
}

func (l *cgoLibrary) GetLambda(h Handle, wavelength []float64) int32 {
	if len(wavelength) == 0 {
		return int32(ErrInvalidSize)
	}
	buf := make([]C.double, len(wavelength))
	code := int32(C.AVS_GetLambda(C.AvsHandle(h), &buf[0]))
	for i := range buf {
		wavelength[i] = float64(buf[i])
	}
	return code
}

func (l *cgoLibrary) PollScan(h Handle) int32 {
	return int32(C.AVS_PollScan(C.AvsHandle(h)))
}

func (l *cgoLibrary) GetScopeData(h Handle, timeLabel *uint32, spectrum []float64) int32 {
	if len(spectrum) == 0 {
		return int32(ErrInvalidSize)
	}
	buf := make([]C.double, len(spectrum))
	var label C.uint
	code := int32(C.AVS_GetScopeData(C.AvsHandle(h), &label, &buf[0]))
	if timeLabel != nil {
		*timeLabel = uint32(label)
	}
	for i := range buf {
		spectrum[i] = float64(buf[i])
	}
	return code
}

func (l *cgoLibrary) StopMeasure(h Handle) int32 {
	return int32(C.AVS_StopMeasure(C.AvsHandle(h)))
}
