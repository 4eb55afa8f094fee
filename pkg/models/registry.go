package models

import "fmt"

// DeviceRegistry is the validated, read-only set of configured devices.
// It is built once at startup and shared by all request handlers.
type DeviceRegistry struct {
	devices []Device
	byName  map[string]int
}

// NewDeviceRegistry creates a registry, rejecting duplicate names or endpoints
func NewDeviceRegistry(devices []Device) (*DeviceRegistry, error) {
	r := &DeviceRegistry{
		devices: make([]Device, 0, len(devices)),
		byName:  make(map[string]int, len(devices)),
	}
	endpoints := make(map[string]struct{}, len(devices))

	for _, d := range devices {
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate device name: %s", d.Name)
		}
		if _, exists := endpoints[d.Endpoint]; exists {
			return nil, fmt.Errorf("duplicate device endpoint: %s", d.Endpoint)
		}
		r.byName[d.Name] = len(r.devices)
		endpoints[d.Endpoint] = struct{}{}
		r.devices = append(r.devices, d)
	}

	return r, nil
}

// Devices returns a copy of all devices in configuration order
func (r *DeviceRegistry) Devices() []Device {
	result := make([]Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// Get returns a device by name
func (r *DeviceRegistry) Get(name string) (Device, bool) {
	i, exists := r.byName[name]
	if !exists {
		return Device{}, false
	}
	return r.devices[i], true
}

// Len returns the number of registered devices
func (r *DeviceRegistry) Len() int {
	return len(r.devices)
}
