//go:build !libavs
// +build !libavs

package avs

import "fmt"

// Open 无 libavs 构建时不可用，请使用 Simulator 或以 -tags libavs 构建
func Open(path string) (Library, error) {
	if path == "" {
		path = DefaultLibraryPath
	}
	return nil, fmt.Errorf("libavs unavailable (%s): binary built without the libavs tag", path)
}
