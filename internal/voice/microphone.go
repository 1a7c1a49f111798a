package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Microphone captures raw PCM from the default input device through
// miniaudio. The device is opened on Start and released on Stop/Abort so
// other programs can use it between turns.
type Microphone struct {
	sampleRate int
	channels   int
	log        *logger.Logger

	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	buf    []byte
}

var _ domain.Capturer = (*Microphone)(nil)

// NewMicrophone creates a capturer recording 16-bit PCM at the given
// format.
func NewMicrophone(sampleRate, channels int, log *logger.Logger) *Microphone {
	return &Microphone{
		sampleRate: sampleRate,
		channels:   channels,
		log:        log,
	}
}

// Start opens the capture device. Returns ErrDeviceUnavailable when the
// system has no input device or it cannot be opened.
func (m *Microphone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return domain.ErrAlreadyCapturing
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		m.log.Debug("miniaudio: %s", msg)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil || len(infos) == 0 {
		release(mctx)
		return fmt.Errorf("%w: no capture device found", domain.ErrDeviceUnavailable)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.channels)
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.PeriodSizeInMilliseconds = 20
	cfg.Alsa.NoMMap = 1

	m.buf = make([]byte, 0, m.sampleRate*m.channels*2*5)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			m.mu.Lock()
			m.buf = append(m.buf, raw...)
			m.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		release(mctx)
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		release(mctx)
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	m.mctx = mctx
	m.device = device
	m.log.Debug("microphone open (rate=%d, channels=%d, device=%s)", m.sampleRate, m.channels, infos[0].Name())
	return nil
}

// Stop closes the device and returns everything recorded since Start.
func (m *Microphone) Stop(_ context.Context) (domain.Clip, error) {
	device, mctx := m.detach()
	if device == nil {
		return domain.Clip{}, domain.ErrNotCapturing
	}
	closeDevice(device, mctx)

	m.mu.Lock()
	pcm := m.buf
	m.buf = nil
	m.mu.Unlock()

	// Drop a trailing half sample if the driver delivered one.
	pcm = pcm[:len(pcm)-len(pcm)%(2*m.channels)]
	m.log.Debug("microphone closed with %d bytes", len(pcm))
	return domain.Clip{PCM: pcm, SampleRate: m.sampleRate, Channels: m.channels}, nil
}

// Abort closes the device and discards the recording.
func (m *Microphone) Abort() {
	device, mctx := m.detach()
	if device == nil {
		return
	}
	closeDevice(device, mctx)

	m.mu.Lock()
	m.buf = nil
	m.mu.Unlock()
}

func (m *Microphone) detach() (*malgo.Device, *malgo.AllocatedContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, c := m.device, m.mctx
	m.device, m.mctx = nil, nil
	return d, c
}

// closeDevice must be called without m.mu held: Stop waits for the data
// callback, which takes the lock.
func closeDevice(device *malgo.Device, mctx *malgo.AllocatedContext) {
	_ = device.Stop()
	device.Uninit()
	release(mctx)
}

func release(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}
