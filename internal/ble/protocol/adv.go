// Package protocol implements the byte- and text-level formats of the bikenav
// BLE link: advertising payloads, the coordinate notify text and the inbound
// NAV command line protocol.
package protocol

import (
	"errors"
	"fmt"
)

// AD record types used in advertising and scan response payloads.
const (
	ADTypeFlags             byte = 0x01
	ADTypeUUID16Complete    byte = 0x03
	ADTypeUUID128Complete   byte = 0x07
	ADTypeCompleteLocalName byte = 0x09
)

// MaxAdvertisingPayload is the legacy advertising channel limit in bytes.
const MaxAdvertisingPayload = 31

// ErrPayloadTooLarge is returned when the encoded records exceed MaxAdvertisingPayload.
var ErrPayloadTooLarge = errors.New("protocol: advertising payload too large")

// AdvertisingFields are the records recovered by ParseAdvertisingPayload.
type AdvertisingFields struct {
	Flags      byte
	HasFlags   bool
	LocalName  string
	ServiceIDs [][]byte // wire order (little-endian), 2 or 16 bytes each
}

// BuildAdvertisingPayload encodes a flags record, an optional complete local
// name record and one complete service UUID list record per identifier.
// Identifiers that are neither 2 nor 16 bytes long are skipped.
func BuildAdvertisingPayload(name string, serviceIDs [][]byte, limitedDiscovery, classicBluetooth bool) ([]byte, error) {
	var flags byte = 0x02
	if limitedDiscovery {
		flags = 0x01
	}
	if classicBluetooth {
		flags |= 0x18
	} else {
		flags |= 0x04
	}

	buf := appendRecord(nil, ADTypeFlags, []byte{flags})
	if name != "" {
		buf = appendRecord(buf, ADTypeCompleteLocalName, []byte(name))
	}
	for _, id := range serviceIDs {
		switch len(id) {
		case 2:
			buf = appendRecord(buf, ADTypeUUID16Complete, id)
		case 16:
			buf = appendRecord(buf, ADTypeUUID128Complete, id)
		}
	}
	if len(buf) > MaxAdvertisingPayload {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(buf), MaxAdvertisingPayload)
	}
	return buf, nil
}

// BuildScanResponse encodes a scan response carrying only the complete local
// name. Scan responses never carry a flags record.
func BuildScanResponse(name string) ([]byte, error) {
	if name == "" {
		return nil, nil
	}
	buf := appendRecord(nil, ADTypeCompleteLocalName, []byte(name))
	if len(buf) > MaxAdvertisingPayload {
		return nil, fmt.Errorf("%w: scan response %d bytes, limit %d", ErrPayloadTooLarge, len(buf), MaxAdvertisingPayload)
	}
	return buf, nil
}

// ParseAdvertisingPayload decodes the records produced by BuildAdvertisingPayload
// and BuildScanResponse. Unknown record types are skipped.
func ParseAdvertisingPayload(data []byte) (*AdvertisingFields, error) {
	f := &AdvertisingFields{}
	for len(data) > 0 {
		length := int(data[0])
		if length == 0 {
			// Zero length marks early termination of significant data.
			break
		}
		if len(data) < length+1 {
			return nil, fmt.Errorf("protocol: record length %d exceeds remaining %d bytes", length, len(data)-1)
		}
		typ := data[1]
		value := data[2 : length+1]
		switch typ {
		case ADTypeFlags:
			if len(value) != 1 {
				return nil, fmt.Errorf("protocol: flags record has %d bytes, want 1", len(value))
			}
			f.Flags = value[0]
			f.HasFlags = true
		case ADTypeCompleteLocalName:
			f.LocalName = string(value)
		case ADTypeUUID16Complete, ADTypeUUID128Complete:
			id := make([]byte, len(value))
			copy(id, value)
			f.ServiceIDs = append(f.ServiceIDs, id)
		}
		data = data[length+1:]
	}
	return f, nil
}

// appendRecord appends <len(value)+1><type><value> to buf.
func appendRecord(buf []byte, typ byte, value []byte) []byte {
	buf = append(buf, byte(len(value)+1), typ)
	return append(buf, value...)
}
