//go:build !linux

package ble

import (
	"fmt"
	"runtime"
)

// NewBlueZPeripheral is only available on Linux.
func NewBlueZPeripheral() (Peripheral, error) {
	return nil, fmt.Errorf("ble: peripheral role not supported on %s", runtime.GOOS)
}
