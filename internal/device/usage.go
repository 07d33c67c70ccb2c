package device

import "sort"

// Usage is one named feature a device reports.
type Usage struct {
	Name string
	Kind Kind
}

// Well-known feature names.
const (
	UsageDeviceRotation        = "DeviceRotation"
	UsageCenterEyeRotation     = "CenterEyeRotation"
	UsageLeftEyeRotation       = "LeftEyeRotation"
	UsageRightEyeRotation      = "RightEyeRotation"
	UsageColorCameraRotation   = "ColorCameraRotation"
	UsagePointerRotation       = "PointerRotation"
	UsageDevicePosition        = "DevicePosition"
	UsageDeviceVelocity        = "DeviceVelocity"
	UsageDeviceAngularVelocity = "DeviceAngularVelocity"
	UsageDeviceAcceleration    = "DeviceAcceleration"
	UsageCenterEyePosition     = "CenterEyePosition"
	UsageLeftEyePosition       = "LeftEyePosition"
	UsageRightEyePosition      = "RightEyePosition"
	UsageColorCameraPosition   = "ColorCameraPosition"
	UsagePointerPosition       = "PointerPosition"
	UsagePrimary2DAxis         = "Primary2DAxis"
	UsageSecondary2DAxis       = "Secondary2DAxis"
	UsageTrigger               = "Trigger"
	UsageGrip                  = "Grip"
	UsageBatteryLevel          = "BatteryLevel"
	UsageIsTracked             = "IsTracked"
	UsagePrimaryButton         = "PrimaryButton"
	UsagePrimaryTouch          = "PrimaryTouch"
	UsageSecondaryButton       = "SecondaryButton"
	UsageSecondaryTouch        = "SecondaryTouch"
	UsageGripButton            = "GripButton"
	UsageTriggerButton         = "TriggerButton"
	UsageMenuButton            = "MenuButton"
	UsagePrimary2DAxisClick    = "Primary2DAxisClick"
	UsagePrimary2DAxisTouch    = "Primary2DAxisTouch"
	UsageSecondary2DAxisClick  = "Secondary2DAxisClick"
	UsageSecondary2DAxisTouch  = "Secondary2DAxisTouch"
	UsageUserPresence          = "UserPresence"
	UsageTrackingState         = "TrackingState"
)

var catalog = map[string]Kind{
	UsageDeviceRotation:        KindQuaternion,
	UsageCenterEyeRotation:     KindQuaternion,
	UsageLeftEyeRotation:       KindQuaternion,
	UsageRightEyeRotation:      KindQuaternion,
	UsageColorCameraRotation:   KindQuaternion,
	UsagePointerRotation:       KindQuaternion,
	UsageDevicePosition:        KindVector3,
	UsageDeviceVelocity:        KindVector3,
	UsageDeviceAngularVelocity: KindVector3,
	UsageDeviceAcceleration:    KindVector3,
	UsageCenterEyePosition:     KindVector3,
	UsageLeftEyePosition:       KindVector3,
	UsageRightEyePosition:      KindVector3,
	UsageColorCameraPosition:   KindVector3,
	UsagePointerPosition:       KindVector3,
	UsagePrimary2DAxis:         KindVector2,
	UsageSecondary2DAxis:       KindVector2,
	UsageTrigger:               KindFloat,
	UsageGrip:                  KindFloat,
	UsageBatteryLevel:          KindFloat,
	UsageIsTracked:             KindBool,
	UsagePrimaryButton:         KindBool,
	UsagePrimaryTouch:          KindBool,
	UsageSecondaryButton:       KindBool,
	UsageSecondaryTouch:        KindBool,
	UsageGripButton:            KindBool,
	UsageTriggerButton:         KindBool,
	UsageMenuButton:            KindBool,
	UsagePrimary2DAxisClick:    KindBool,
	UsagePrimary2DAxisTouch:    KindBool,
	UsageSecondary2DAxisClick:  KindBool,
	UsageSecondary2DAxisTouch:  KindBool,
	UsageUserPresence:          KindBool,
	UsageTrackingState:         KindUint,
}

// KnownUsage reports the kind of a well-known feature name.
func KnownUsage(name string) (Kind, bool) {
	k, ok := catalog[name]
	return k, ok
}

// CommonUsages returns the catalog ordered by kind, then name.
func CommonUsages() []Usage {
	out := make([]Usage, 0, len(catalog))
	for name, kind := range catalog {
		out = append(out, Usage{Name: name, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
