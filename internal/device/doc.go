// Package device maps a device's runtime-discovered named features onto
// dense typed arrays and moves those arrays on and off the wire.
//
// Discovery happens once per device instance (BuildSchema); every per-tick
// access afterwards is an indexed lookup guarded by an availability flag.
package device
