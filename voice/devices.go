package voice

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ListOutputDevices returns the devices that can play audio.
func ListOutputDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	outputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxOutputChannels > 0 {
			outputDevices = append(outputDevices, *device)
		}
	}

	return outputDevices, nil
}

// findOutputDevice looks up an output device by name. PortAudio must be
// initialized.
func findOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	for _, device := range devices {
		if device.Name == name && device.MaxOutputChannels > 0 {
			return device, nil
		}
	}
	return nil, fmt.Errorf("output device %q not found", name)
}
