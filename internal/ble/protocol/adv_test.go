package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// nusServiceID is the Nordic UART service UUID in BLE wire (little-endian) order.
var nusServiceID = []byte{
	0x9e, 0xca, 0xdc, 0x24, 0x0e, 0xe5, 0xa9, 0xe0,
	0x93, 0xf3, 0xa3, 0xb5, 0x01, 0x00, 0x40, 0x6e,
}

func TestBuildAdvertisingPayloadNameAndUUID128(t *testing.T) {
	got, err := BuildAdvertisingPayload("X", [][]byte{nusServiceID}, false, false)
	if err != nil {
		t.Fatalf("BuildAdvertisingPayload() error = %v", err)
	}

	// Flags (2+1), name (2+len), 128-bit service list (2+16). Each record
	// carries exactly one length byte and one type byte.
	wantLen := (2 + 1) + (2 + len("X")) + (2 + 16)
	if wantLen != 24 {
		t.Fatalf("wantLen = %d, want 24", wantLen)
	}
	if len(got) != wantLen {
		t.Fatalf("len = %d, want %d", len(got), wantLen)
	}
	if !bytes.Equal(got[:3], []byte{2, ADTypeFlags, 0x06}) {
		t.Errorf("flags record = %x, want 020106", got[:3])
	}

	var want []byte
	want = append(want, 0x02, 0x01, 0x06)
	want = append(want, 0x02, 0x09, 'X')
	want = append(want, 0x11, 0x07)
	want = append(want, nusServiceID...)
	if !bytes.Equal(got, want) {
		t.Errorf("BuildAdvertisingPayload() =\n  got  %x\n  want %x", got, want)
	}
}

func TestBuildAdvertisingPayloadFlags(t *testing.T) {
	tests := []struct {
		name      string
		limited   bool
		brEDR     bool
		wantFlags byte
	}{
		{"general le-only", false, false, 0x06},
		{"limited le-only", true, false, 0x05},
		{"general br/edr", false, true, 0x1a},
		{"limited br/edr", true, true, 0x19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildAdvertisingPayload("", nil, tt.limited, tt.brEDR)
			if err != nil {
				t.Fatalf("BuildAdvertisingPayload() error = %v", err)
			}
			want := []byte{0x02, 0x01, tt.wantFlags}
			if !bytes.Equal(got, want) {
				t.Errorf("payload = %x, want %x", got, want)
			}
		})
	}
}

func TestBuildAdvertisingPayloadUUID16(t *testing.T) {
	got, err := BuildAdvertisingPayload("", [][]byte{{0x0d, 0x18}}, false, false)
	if err != nil {
		t.Fatalf("BuildAdvertisingPayload() error = %v", err)
	}
	want := []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x0d, 0x18}
	if !bytes.Equal(got, want) {
		t.Errorf("payload = %x, want %x", got, want)
	}
}

func TestBuildAdvertisingPayloadSkipsOddLengthIDs(t *testing.T) {
	got, err := BuildAdvertisingPayload("", [][]byte{{0x01, 0x02, 0x03}, {}}, false, false)
	if err != nil {
		t.Fatalf("BuildAdvertisingPayload() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3 (flags only)", len(got))
	}
}

func TestBuildAdvertisingPayloadTooLarge(t *testing.T) {
	// "Pico AA:BB:CC:DD:EE:FF" + a 128-bit UUID needs 45 bytes.
	_, err := BuildAdvertisingPayload("Pico AA:BB:CC:DD:EE:FF", [][]byte{nusServiceID}, false, false)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestBuildAdvertisingPayloadExactLimit(t *testing.T) {
	// flags (3) + name record (2+26) = 31
	name := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	got, err := BuildAdvertisingPayload(name, nil, false, false)
	if err != nil {
		t.Fatalf("BuildAdvertisingPayload() error = %v", err)
	}
	if len(got) != MaxAdvertisingPayload {
		t.Errorf("len = %d, want %d", len(got), MaxAdvertisingPayload)
	}

	if _, err := BuildAdvertisingPayload(name+"!", nil, false, false); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("one byte over: error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestBuildAdvertisingPayloadDeterministic(t *testing.T) {
	a, _ := BuildAdvertisingPayload("bike", [][]byte{nusServiceID}, false, false)
	b, _ := BuildAdvertisingPayload("bike", [][]byte{nusServiceID}, false, false)
	if !bytes.Equal(a, b) {
		t.Errorf("two builds differ: %x vs %x", a, b)
	}
}

func TestBuildScanResponse(t *testing.T) {
	got, err := BuildScanResponse("Pico AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("BuildScanResponse() error = %v", err)
	}
	if got[0] != 23 || got[1] != ADTypeCompleteLocalName {
		t.Errorf("header = %x, want 1709", got[:2])
	}
	if string(got[2:]) != "Pico AA:BB:CC:DD:EE:FF" {
		t.Errorf("name = %q", got[2:])
	}

	empty, err := BuildScanResponse("")
	if err != nil || empty != nil {
		t.Errorf("BuildScanResponse(\"\") = %x, %v; want nil, nil", empty, err)
	}
}

func TestParseAdvertisingPayloadRoundTrip(t *testing.T) {
	payload, err := BuildAdvertisingPayload("bike", [][]byte{nusServiceID, {0x0d, 0x18}}, true, false)
	if err != nil {
		t.Fatalf("BuildAdvertisingPayload() error = %v", err)
	}
	f, err := ParseAdvertisingPayload(payload)
	if err != nil {
		t.Fatalf("ParseAdvertisingPayload() error = %v", err)
	}
	if !f.HasFlags || f.Flags != 0x05 {
		t.Errorf("Flags = %#x (present %v), want 0x05", f.Flags, f.HasFlags)
	}
	if f.LocalName != "bike" {
		t.Errorf("LocalName = %q, want %q", f.LocalName, "bike")
	}
	if len(f.ServiceIDs) != 2 {
		t.Fatalf("got %d service ids, want 2", len(f.ServiceIDs))
	}
	if !bytes.Equal(f.ServiceIDs[0], nusServiceID) {
		t.Errorf("ServiceIDs[0] = %x, want %x", f.ServiceIDs[0], nusServiceID)
	}
}

func TestParseAdvertisingPayloadTruncated(t *testing.T) {
	_, err := ParseAdvertisingPayload([]byte{0x05, 0x09, 'a'})
	if err == nil {
		t.Error("expected error for truncated record")
	}
}
