package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// DeviceInfo describes one capture device for listing and selection.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// backendForPlatform returns the malgo backend for the current platform.
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("error", "unsupported operating system").
			Context("os", runtime.GOOS).
			Build()
	}
}

// EnumerateDevices lists the available capture devices.
func EnumerateDevices() ([]DeviceInfo, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Build()
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// The null backend's discard device is useless for capture.
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeDeviceID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectDevice picks the device matching name, or the system default when
// name is empty or "default".
func selectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
		return nil, noDeviceError(name)
	}

	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if decodeDeviceID(devices[i].ID.String()) == name {
			return &devices[i], nil
		}
	}
	return nil, noDeviceError(name)
}

func noDeviceError(name string) error {
	return errors.Newf("no capture device matching %q", name).
		Component(componentCapture).
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Build()
}

// decodeDeviceID turns malgo's hex-encoded device IDs back into readable
// ALSA-style names where possible.
func decodeDeviceID(id string) string {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return id
	}
	decoded := strings.TrimRight(string(raw), "\x00")
	for _, r := range decoded {
		if r < 32 || r > 126 {
			return id
		}
	}
	return decoded
}
