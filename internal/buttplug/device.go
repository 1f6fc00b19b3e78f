package buttplug

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FrostySource/VAMLaunch/internal/jsonval"
)

// Default step-count resolution when a feature descriptor omits it.
const defaultStepCount = 20

// actuatorRotate is the actuator-type tag that marks a scalar feature as a
// rotation actuator on devices without a native rotate command.
const actuatorRotate = "Rotate"

// Feature is one independently addressable actuator within a device, for
// example a single vibration motor. Immutable once parsed.
type Feature struct {
	// Index addresses the feature in outbound commands.
	Index int

	// Descriptor is the server's human-readable description.
	Descriptor string

	// Actuator classifies what the feature physically does ("Vibrate",
	// "Rotate", "Constrict", ...). Free-form; compare with IsActuator.
	Actuator string

	// StepCount is the resolution hint for the feature's value range.
	StepCount int
}

// IsActuator reports whether the feature's actuator-type tag matches,
// compared case-insensitively.
func (f Feature) IsActuator(tag string) bool {
	return strings.EqualFold(f.Actuator, tag)
}

// Device describes one connected device and the features it exposes per
// command family. The index is assigned by the server and is not guaranteed
// stable across reconnects.
type Device struct {
	Index       int
	Name        string
	DisplayName string

	Linear []Feature
	Scalar []Feature
	Rotate []Feature
}

// Label returns the display name when the server provided one, otherwise
// the device name.
func (d Device) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// SupportsLinearCmd reports whether the device has linear features.
func (d Device) SupportsLinearCmd() bool {
	return len(d.Linear) > 0
}

// SupportsScalarCmd reports whether the device has scalar features.
func (d Device) SupportsScalarCmd() bool {
	return len(d.Scalar) > 0
}

// SupportsRotateCmd reports whether the device has native rotate features.
func (d Device) SupportsRotateCmd() bool {
	return len(d.Rotate) > 0
}

// HasRotateViaScalar reports whether any scalar feature is tagged as a
// rotation actuator.
func (d Device) HasRotateViaScalar() bool {
	for _, f := range d.Scalar {
		if f.IsActuator(actuatorRotate) {
			return true
		}
	}
	return false
}

// CanRotate reports whether the device can rotate at all, natively or
// through a rotation-tagged scalar feature.
func (d Device) CanRotate() bool {
	return d.SupportsRotateCmd() || d.HasRotateViaScalar()
}

// HasAnyFeature reports whether the device exposes at least one feature.
func (d Device) HasAnyFeature() bool {
	return len(d.Linear) > 0 || len(d.Scalar) > 0 || len(d.Rotate) > 0
}

// RotateScalarFeatures returns the scalar features tagged as rotation
// actuators, for driving rotation on devices without a native rotate
// command.
func (d Device) RotateScalarFeatures() []Feature {
	var out []Feature
	for _, f := range d.Scalar {
		if f.IsActuator(actuatorRotate) {
			out = append(out, f)
		}
	}
	return out
}

// summary returns a short capability description like "Launch [linear]".
func (d Device) summary() string {
	var caps []string
	if d.SupportsLinearCmd() {
		caps = append(caps, "linear")
	}
	if d.SupportsScalarCmd() {
		caps = append(caps, "scalar")
	}
	if d.SupportsRotateCmd() {
		caps = append(caps, "rotate")
	}
	if len(caps) == 0 {
		return d.Label() + " [none]"
	}
	return fmt.Sprintf("%s [%s]", d.Label(), strings.Join(caps, ","))
}

// parseDeviceDescriptor builds a Device from one parsed descriptor object,
// as found in a device-list entry or a device-added notification.
func parseDeviceDescriptor(obj map[string]any) Device {
	d := Device{}
	d.Index, _ = jsonval.AsInt(obj["DeviceIndex"])
	d.Name, _ = jsonval.AsString(obj["DeviceName"])
	d.DisplayName, _ = jsonval.AsString(obj["DeviceDisplayName"])

	msgs, _ := jsonval.AsObject(obj["DeviceMessages"])
	d.Linear = parseFeatureFamily(msgs[msgLinearCmd], msgLinearCmd)
	d.Scalar = parseFeatureFamily(msgs[msgScalarCmd], msgScalarCmd)
	d.Rotate = parseFeatureFamily(msgs[msgRotateCmd], msgRotateCmd)

	return d
}

// parseFeatureFamily parses the capability-map value for one command
// family. Current servers send an array of feature descriptors; older ones
// send an object carrying a feature count and a parallel step-count array.
func parseFeatureFamily(v any, family string) []Feature {
	if arr, ok := jsonval.AsArray(v); ok {
		features := make([]Feature, 0, len(arr))
		for i, entry := range arr {
			obj, ok := jsonval.AsObject(entry)
			if !ok {
				continue
			}

			f := Feature{Index: i, StepCount: defaultStepCount}
			if idx, ok := jsonval.AsInt(obj["Index"]); ok {
				f.Index = idx
			}
			f.Descriptor, _ = jsonval.AsString(obj["FeatureDescriptor"])
			if actuator, ok := jsonval.AsString(obj["ActuatorType"]); ok {
				f.Actuator = actuator
			} else {
				f.Actuator = f.Descriptor
			}
			if steps, ok := jsonval.AsInt(obj["StepCount"]); ok {
				f.StepCount = steps
			}

			features = append(features, f)
		}
		return features
	}

	if obj, ok := jsonval.AsObject(v); ok {
		count, ok := jsonval.AsInt(obj["FeatureCount"])
		if !ok || count <= 0 {
			return nil
		}

		steps, _ := jsonval.AsArray(obj["StepCount"])
		base := strings.TrimSuffix(family, "Cmd")

		features := make([]Feature, 0, count)
		for i := 0; i < count; i++ {
			f := Feature{
				Index:      i,
				Descriptor: base,
				Actuator:   base,
				StepCount:  defaultStepCount,
			}
			if i < len(steps) {
				if n, ok := jsonval.AsInt(steps[i]); ok {
					f.StepCount = n
				}
			}
			features = append(features, f)
		}
		return features
	}

	return nil
}

// sortedDevices returns the registry's devices ordered by index.
func sortedDevices(registry map[int]Device) []Device {
	out := make([]Device, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
