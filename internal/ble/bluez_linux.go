//go:build linux

package ble

import (
	"bytes"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/bikenav/internal/ble/protocol"
)

// BlueZPeripheral wraps tinygo-org/bluetooth in the peripheral role on Linux.
// BlueZ does not expose connection handles, so handles are assigned here per
// central address, starting at 1.
type BlueZPeripheral struct {
	adapter *bluetooth.Adapter

	// mu protects everything below.
	mu         sync.Mutex
	handler    func(Event)
	chars      map[Endpoint]*bluetooth.Characteristic
	values     map[Endpoint][]byte
	conns      map[string]ConnHandle // keyed by central address
	nextConn   ConnHandle
	lastConn   ConnHandle
	adv        *bluetooth.Advertisement
	advPayload []byte // payload the advertisement was configured with
}

// NewBlueZPeripheral creates a peripheral on the default BlueZ adapter.
func NewBlueZPeripheral() (Peripheral, error) {
	return &BlueZPeripheral{
		adapter: bluetooth.DefaultAdapter,
		chars:   make(map[Endpoint]*bluetooth.Characteristic),
		values:  make(map[Endpoint][]byte),
		conns:   make(map[string]ConnHandle),
	}, nil
}

// Compile-time check that BlueZPeripheral implements Peripheral.
var _ Peripheral = (*BlueZPeripheral)(nil)

func (p *BlueZPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		return err
	}

	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := device.Address.String()

		p.mu.Lock()
		var ev Event
		if connected {
			p.nextConn++
			p.conns[addr] = p.nextConn
			p.lastConn = p.nextConn
			ev = ConnectEvent{Conn: p.nextConn}
		} else {
			// Zero for a central we never saw connect.
			conn := p.conns[addr]
			delete(p.conns, addr)
			ev = DisconnectEvent{Conn: conn}
		}
		handler := p.handler
		p.mu.Unlock()

		if handler != nil {
			handler(ev)
		}
	})
	return nil
}

func (p *BlueZPeripheral) SetEventHandler(handler func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *BlueZPeripheral) RegisterService(svc ServiceDefinition) (Endpoint, Endpoint, error) {
	svcUUID, err := bluetooth.ParseUUID(svc.UUID)
	if err != nil {
		return 0, 0, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	txUUID, err := bluetooth.ParseUUID(svc.TXUUID)
	if err != nil {
		return 0, 0, fmt.Errorf("ble: parse TX UUID: %w", err)
	}
	rxUUID, err := bluetooth.ParseUUID(svc.RXUUID)
	if err != nil {
		return 0, 0, fmt.Errorf("ble: parse RX UUID: %w", err)
	}

	const tx, rx Endpoint = 1, 2
	var txChar, rxChar bluetooth.Characteristic
	err = p.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &txChar,
				UUID:   txUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission | bluetooth.CharacteristicReadPermission,
			},
			{
				Handle: &rxChar,
				UUID:   rxUUID,
				Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
					p.onWrite(rx, value)
				},
			},
		},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("ble: add service: %w", err)
	}

	p.mu.Lock()
	p.chars[tx] = &txChar
	p.chars[rx] = &rxChar
	p.mu.Unlock()
	return tx, rx, nil
}

// onWrite stores the written value and reports it. BlueZ does not say which
// central wrote, so the most recent connection is reported.
func (p *BlueZPeripheral) onWrite(ep Endpoint, value []byte) {
	p.mu.Lock()
	p.values[ep] = bytes.Clone(value)
	handler := p.handler
	conn := p.lastConn
	p.mu.Unlock()

	if handler != nil {
		handler(WriteEvent{Conn: conn, Endpoint: ep})
	}
}

func (p *BlueZPeripheral) HardwareAddr() (net.HardwareAddr, error) {
	addr, err := p.adapter.Address()
	if err != nil {
		return nil, fmt.Errorf("ble: adapter address: %w", err)
	}
	// tinygo stores the MAC little-endian.
	mac := addr.MAC
	return net.HardwareAddr{mac[5], mac[4], mac[3], mac[2], mac[1], mac[0]}, nil
}

// Advertise configures advertising from the records in payload and
// scanResponse. BlueZ builds the on-air bytes itself, so the payloads are
// decoded back into advertisement options. The advertisement can only be
// configured once; later calls restart it with the same payload.
func (p *BlueZPeripheral) Advertise(interval time.Duration, payload, scanResponse []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adv != nil {
		if !bytes.Equal(p.advPayload, slices.Concat(payload, scanResponse)) {
			return fmt.Errorf("ble: advertising payload changed after configuration")
		}
		_ = p.adv.Stop()
		return p.adv.Start()
	}

	opts, err := advertisementOptions(interval, payload, scanResponse)
	if err != nil {
		return err
	}
	adv := p.adapter.DefaultAdvertisement()
	if err := adv.Configure(opts); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	p.adv = adv
	p.advPayload = slices.Concat(payload, scanResponse)
	return nil
}

func advertisementOptions(interval time.Duration, payload, scanResponse []byte) (bluetooth.AdvertisementOptions, error) {
	fields, err := protocol.ParseAdvertisingPayload(payload)
	if err != nil {
		return bluetooth.AdvertisementOptions{}, err
	}
	if len(scanResponse) > 0 {
		sr, err := protocol.ParseAdvertisingPayload(scanResponse)
		if err != nil {
			return bluetooth.AdvertisementOptions{}, err
		}
		if fields.LocalName == "" {
			fields.LocalName = sr.LocalName
		}
	}

	var uuids []bluetooth.UUID
	for _, id := range fields.ServiceIDs {
		switch len(id) {
		case 2:
			uuids = append(uuids, bluetooth.New16BitUUID(uint16(id[0])|uint16(id[1])<<8))
		case 16:
			var be [16]byte
			for i := range id {
				be[15-i] = id[i]
			}
			uuids = append(uuids, bluetooth.NewUUID(be))
		}
	}

	return bluetooth.AdvertisementOptions{
		LocalName:    fields.LocalName,
		ServiceUUIDs: uuids,
		Interval:     bluetooth.NewDuration(interval),
	}, nil
}

func (p *BlueZPeripheral) WriteValue(ep Endpoint, data []byte) error {
	p.mu.Lock()
	char, ok := p.chars[ep]
	if ok {
		p.values[ep] = bytes.Clone(data)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("ble: unknown endpoint %d", ep)
	}
	// BlueZ sends the new value to every subscribed central here.
	_, err := char.Write(data)
	return err
}

func (p *BlueZPeripheral) ReadValue(ep Endpoint) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.chars[ep]; !ok {
		return nil, fmt.Errorf("ble: unknown endpoint %d", ep)
	}
	return bytes.Clone(p.values[ep]), nil
}

// Notify only checks that conn is still connected: BlueZ already delivered
// the value to subscribed centrals in WriteValue and has no per-connection
// notification API.
func (p *BlueZPeripheral) Notify(conn ConnHandle, ep Endpoint, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.chars[ep]; !ok {
		return fmt.Errorf("ble: unknown endpoint %d", ep)
	}
	for _, c := range p.conns {
		if c == conn {
			return nil
		}
	}
	return ErrNotConnected
}
