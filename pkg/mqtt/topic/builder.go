package topic

import (
	"fmt"
)

// Constants defining the standard topic segments.
// These act as the protocol contract between the control side and the device.
// Changing these values will break compatibility with deployed agents.
const (
	// SuffixCommand is the downstream control feed (Control -> Device).
	// Structure: {root}/command/{deviceID}
	SuffixCommand = "command"

	// SuffixCommandAck is the upstream acknowledgment feed (Device -> Control).
	// By placing it under 'command/ack', we maintain logical grouping.
	// Structure: {root}/command/ack/{deviceID}
	SuffixCommandAck = "command/ack"

	// SuffixStatus is the upstream status/log feed (Device -> Control).
	// Structure: {root}/status/{deviceID}
	SuffixStatus = "status"

	// SuffixTelemetry is the upstream telemetry feed (Device -> Control).
	// Structure: {root}/telemetry/{deviceID}
	SuffixTelemetry = "telemetry"

	// SuffixOnline carries the retained presence flag, also used as the
	// Last Will topic so the broker flips it on an ungraceful disconnect.
	// Structure: {root}/online/{deviceID}
	SuffixOnline = "online"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
// It keeps the topic layout in one place so no component hand-assembles paths.
type Builder struct {
	// root is the base namespace for all topics (e.g., "station/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Command returns the control feed topic for a specific device.
// Direction: Control -> Device
func (b *Builder) Command(deviceID string) string {
	return b.build(SuffixCommand, deviceID)
}

// CommandAck returns the topic a device uses to report command outcomes.
// Direction: Device -> Control
func (b *Builder) CommandAck(deviceID string) string {
	return b.build(SuffixCommandAck, deviceID)
}

// Status returns the status feed topic for a specific device.
// Direction: Device -> Control
func (b *Builder) Status(deviceID string) string {
	return b.build(SuffixStatus, deviceID)
}

// Telemetry returns the telemetry feed topic for a specific device.
// Direction: Device -> Control
func (b *Builder) Telemetry(deviceID string) string {
	return b.build(SuffixTelemetry, deviceID)
}

// Online returns the retained presence topic for a specific device.
func (b *Builder) Online(deviceID string) string {
	return b.build(SuffixOnline, deviceID)
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
