// Package reading defines the unit of data tempsense moves around: one
// temperature observation for one device at one second.
//
// A Reading is identified by (DeviceID, Timestamp). Persisting the same pair
// twice overwrites the earlier value. Temperatures are held as fixed-precision
// decimals rounded to two places and are never converted to float on the wire
// or in storage.
//
// # Wire format
//
// The MQTT payload is a JSON object with the temperature encoded as a decimal
// string:
//
//	{"deviceId":"sensor-01","temperature":"22.5","timestamp":1700000000}
package reading
