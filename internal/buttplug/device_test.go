package buttplug

import (
	"testing"

	"github.com/FrostySource/VAMLaunch/internal/jsonval"
)

func parseDescriptor(t *testing.T, src string) Device {
	t.Helper()
	obj, ok := jsonval.AsObject(jsonval.Parse(src))
	if !ok {
		t.Fatalf("descriptor did not parse to an object: %s", src)
	}
	return parseDeviceDescriptor(obj)
}

func TestParseDeviceDescriptor(t *testing.T) {
	d := parseDescriptor(t, `{
		"DeviceIndex": 3,
		"DeviceName": "Launch",
		"DeviceDisplayName": "My Launch",
		"DeviceMessages": {
			"LinearCmd": [
				{"FeatureDescriptor": "Stroker", "ActuatorType": "Position", "StepCount": 100}
			],
			"ScalarCmd": [
				{"FeatureDescriptor": "Motor A", "ActuatorType": "Vibrate", "StepCount": 20},
				{"FeatureDescriptor": "Ring", "ActuatorType": "Constrict"}
			]
		}
	}`)

	if d.Index != 3 {
		t.Errorf("Index = %d, want 3", d.Index)
	}
	if d.Name != "Launch" || d.DisplayName != "My Launch" {
		t.Errorf("names = %q/%q", d.Name, d.DisplayName)
	}
	if d.Label() != "My Launch" {
		t.Errorf("Label() = %q, want display name", d.Label())
	}

	if len(d.Linear) != 1 || len(d.Scalar) != 2 || len(d.Rotate) != 0 {
		t.Fatalf("feature counts = %d/%d/%d, want 1/2/0", len(d.Linear), len(d.Scalar), len(d.Rotate))
	}

	if got := d.Linear[0]; got.Index != 0 || got.StepCount != 100 || got.Actuator != "Position" {
		t.Errorf("linear feature = %+v", got)
	}

	// Step count defaults to 20, index defaults to array position.
	if got := d.Scalar[1]; got.Index != 1 || got.StepCount != defaultStepCount {
		t.Errorf("scalar feature defaults = %+v", got)
	}
}

func TestParseDeviceDescriptorDefaults(t *testing.T) {
	d := parseDescriptor(t, `{
		"DeviceIndex": 0,
		"DeviceName": "Hush",
		"DeviceMessages": {
			"ScalarCmd": [{"FeatureDescriptor": "Vibrate"}]
		}
	}`)

	if d.Label() != "Hush" {
		t.Errorf("Label() = %q, want device name when display name absent", d.Label())
	}

	f := d.Scalar[0]
	// Actuator type defaults to the descriptor string.
	if f.Actuator != "Vibrate" {
		t.Errorf("Actuator = %q, want descriptor fallback", f.Actuator)
	}
	if f.StepCount != defaultStepCount {
		t.Errorf("StepCount = %d, want %d", f.StepCount, defaultStepCount)
	}
}

func TestParseLegacyFeatureShape(t *testing.T) {
	d := parseDescriptor(t, `{
		"DeviceIndex": 1,
		"DeviceName": "Nora",
		"DeviceMessages": {
			"RotateCmd": {"FeatureCount": 2, "StepCount": [40]}
		}
	}`)

	if len(d.Rotate) != 2 {
		t.Fatalf("rotate features = %d, want 2", len(d.Rotate))
	}

	if got := d.Rotate[0]; got.Index != 0 || got.StepCount != 40 || got.Actuator != "Rotate" {
		t.Errorf("rotate[0] = %+v", got)
	}
	// Step count array is shorter than the feature count: defaults apply.
	if got := d.Rotate[1]; got.Index != 1 || got.StepCount != defaultStepCount {
		t.Errorf("rotate[1] = %+v", got)
	}
}

func TestCapabilityPredicates(t *testing.T) {
	tests := []struct {
		name              string
		device            Device
		supportsRotateCmd bool
		canRotate         bool
		hasAny            bool
	}{
		{
			name:   "empty device",
			device: Device{},
		},
		{
			name:              "native rotate",
			device:            Device{Rotate: []Feature{{Actuator: "Rotate"}}},
			supportsRotateCmd: true,
			canRotate:         true,
			hasAny:            true,
		},
		{
			name:      "rotate via scalar, case-insensitive",
			device:    Device{Scalar: []Feature{{Actuator: "ROTATE"}}},
			canRotate: true,
			hasAny:    true,
		},
		{
			name:   "vibrate only cannot rotate",
			device: Device{Scalar: []Feature{{Actuator: "Vibrate"}}},
			hasAny: true,
		},
		{
			name:   "linear only",
			device: Device{Linear: []Feature{{Actuator: "Position"}}},
			hasAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.SupportsRotateCmd(); got != tt.supportsRotateCmd {
				t.Errorf("SupportsRotateCmd() = %v, want %v", got, tt.supportsRotateCmd)
			}
			if got := tt.device.CanRotate(); got != tt.canRotate {
				t.Errorf("CanRotate() = %v, want %v", got, tt.canRotate)
			}
			if got := tt.device.HasAnyFeature(); got != tt.hasAny {
				t.Errorf("HasAnyFeature() = %v, want %v", got, tt.hasAny)
			}
		})
	}
}

func TestRotateScalarFeatures(t *testing.T) {
	d := Device{Scalar: []Feature{
		{Index: 0, Actuator: "Vibrate"},
		{Index: 1, Actuator: "rotate"},
		{Index: 2, Actuator: "Rotate"},
	}}

	got := d.RotateScalarFeatures()
	if len(got) != 2 {
		t.Fatalf("RotateScalarFeatures() len = %d, want 2", len(got))
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("RotateScalarFeatures() indices = %d,%d want 1,2", got[0].Index, got[1].Index)
	}
}
