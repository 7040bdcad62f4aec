// Package epd drives a Waveshare 7.5" B V2 (800x480, black/red) e-paper HAT
// over SPI.
package epd

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/thatsimonsguy/hass-dash/internal/panel"
)

const (
	Width  = 800
	Height = 480

	maxChunk    = 4096
	busyTimeout = 40 * time.Second
)

const (
	cmdPanelSetting    byte = 0x00
	cmdPowerSetting    byte = 0x01
	cmdPowerOff        byte = 0x02
	cmdPowerOn         byte = 0x04
	cmdBoosterStart    byte = 0x06
	cmdDeepSleep       byte = 0x07
	cmdDataBlack       byte = 0x10
	cmdDisplayRefresh  byte = 0x12
	cmdDataRed         byte = 0x13
	cmdDualSPI         byte = 0x15
	cmdVCOMInterval    byte = 0x50
	cmdTCONSetting     byte = 0x60
	cmdResolution      byte = 0x61
	cmdGateStart       byte = 0x65
	cmdGetStatus       byte = 0x71
	deepSleepCheckCode byte = 0xA5
)

var ErrBusyTimeout = errors.New("panel stayed busy")

type Pins struct {
	SPIPort string
	Reset   string
	DC      string
	Busy    string
	Power   string
}

// Conn is the part of spi.Conn the driver uses.
type Conn interface {
	Tx(w, r []byte) error
}

// Pin is the part of gpio.PinIO the driver uses.
type Pin interface {
	Out(l gpio.Level) error
	Read() gpio.Level
}

type Device struct {
	conn  Conn
	rst   Pin
	dc    Pin
	busy  Pin
	pwr   Pin
	close func() error
	sleep func(time.Duration)

	busyTimeout time.Duration
	asleep      bool
}

// Open initializes the host drivers, the SPI port and the control pins, then
// wakes the panel.
func Open(p Pins) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(p.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", p.SPIPort, err)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}

	pins := map[string]gpio.PinIO{}
	for _, name := range []string{p.Reset, p.DC, p.Busy, p.Power} {
		pin := gpioreg.ByName(name)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("gpio pin %q not found", name)
		}
		pins[name] = pin
	}
	if err := pins[p.Busy].In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("configure busy pin: %w", err)
	}

	d := newDevice(conn, pins[p.Reset], pins[p.DC], pins[p.Busy], pins[p.Power], port.Close)
	if err := d.pwr.Out(gpio.High); err != nil {
		port.Close()
		return nil, fmt.Errorf("power on: %w", err)
	}
	if err := d.Init(); err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

func newDevice(conn Conn, rst, dc, busy, pwr Pin, closeFn func() error) *Device {
	return &Device{
		conn:  conn,
		rst:   rst,
		dc:    dc,
		busy:  busy,
		pwr:   pwr,
		close: closeFn,
		sleep: time.Sleep,

		busyTimeout: busyTimeout,
	}
}

func (d *Device) reset() error {
	steps := []struct {
		level gpio.Level
		wait  time.Duration
	}{
		{gpio.High, 200 * time.Millisecond},
		{gpio.Low, 4 * time.Millisecond},
		{gpio.High, 200 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.rst.Out(s.level); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		d.sleep(s.wait)
	}
	return nil
}

func (d *Device) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.conn.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("command 0x%02x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	return d.data(data)
}

func (d *Device) data(buf []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(buf) > 0 {
		n := len(buf)
		if n > maxChunk {
			n = maxChunk
		}
		if err := d.conn.Tx(buf[:n], nil); err != nil {
			return fmt.Errorf("data: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

// waitIdle polls the status register until BUSY goes high.
func (d *Device) waitIdle() error {
	deadline := time.Now().Add(d.busyTimeout)
	for {
		if err := d.command(cmdGetStatus); err != nil {
			return err
		}
		if d.busy.Read() == gpio.High {
			break
		}
		if time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		d.sleep(5 * time.Millisecond)
	}
	d.sleep(200 * time.Millisecond)
	return nil
}

// Init resets the controller and loads the panel configuration.
func (d *Device) Init() error {
	if err := d.reset(); err != nil {
		return err
	}
	if err := d.command(cmdPowerSetting, 0x07, 0x07, 0x3f, 0x3f); err != nil {
		return err
	}
	if err := d.command(cmdBoosterStart, 0x17, 0x17, 0x28, 0x17); err != nil {
		return err
	}
	if err := d.command(cmdPowerOn); err != nil {
		return err
	}
	d.sleep(100 * time.Millisecond)
	if err := d.waitIdle(); err != nil {
		return err
	}

	seq := []struct {
		cmd  byte
		data []byte
	}{
		{cmdPanelSetting, []byte{0x0f}},
		{cmdResolution, []byte{byte(Width >> 8), byte(Width & 0xff), byte(Height >> 8), byte(Height & 0xff)}},
		{cmdDualSPI, []byte{0x00}},
		{cmdVCOMInterval, []byte{0x11, 0x07}},
		{cmdTCONSetting, []byte{0x22}},
		{cmdGateStart, []byte{0x00, 0x00, 0x00, 0x00}},
	}
	for _, s := range seq {
		if err := d.command(s.cmd, s.data...); err != nil {
			return err
		}
	}
	d.asleep = false
	log.Debug().Msg("E-paper panel initialized")
	return nil
}

func (d *Device) wake() error {
	if !d.asleep {
		return nil
	}
	return d.Init()
}

func (d *Device) refresh(black, red []byte) error {
	if err := d.command(cmdDataBlack); err != nil {
		return err
	}
	if err := d.data(black); err != nil {
		return err
	}
	if err := d.command(cmdDataRed); err != nil {
		return err
	}
	if err := d.data(red); err != nil {
		return err
	}
	if err := d.command(cmdDisplayRefresh); err != nil {
		return err
	}
	d.sleep(100 * time.Millisecond)
	return d.waitIdle()
}

func (d *Device) Clear() error {
	if err := d.wake(); err != nil {
		return err
	}
	size := Width / 8 * Height
	black := make([]byte, size)
	for i := range black {
		black[i] = 0xff
	}
	return d.refresh(black, make([]byte, size))
}

// Display writes both planes and triggers a full refresh. The red plane is
// sent inverted: the controller inks set bits.
func (d *Device) Display(primary, accent *image.Gray) error {
	if err := panel.CheckPlanes(primary, accent, Width, Height); err != nil {
		return err
	}
	if err := d.wake(); err != nil {
		return err
	}

	black := panel.Pack(primary)
	red := make([]byte, len(black))
	if accent != nil {
		for i, b := range panel.Pack(accent) {
			red[i] = ^b
		}
	}
	return d.refresh(black, red)
}

func (d *Device) Sleep() error {
	if d.asleep {
		return nil
	}
	if err := d.command(cmdPowerOff); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}
	if err := d.command(cmdDeepSleep, deepSleepCheckCode); err != nil {
		return err
	}
	d.asleep = true
	log.Debug().Msg("E-paper panel asleep")
	return nil
}

func (d *Device) Close() error {
	var errs []error
	if err := d.pwr.Out(gpio.Low); err != nil {
		errs = append(errs, err)
	}
	if d.close != nil {
		errs = append(errs, d.close())
	}
	return errors.Join(errs...)
}

var _ panel.Panel = (*Device)(nil)
