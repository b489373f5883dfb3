// Package tomlutil holds small TOML-facing helper types shared by the
// per-service Config structs, kept as a leaf package (no internal
// imports of its own) so that every services/* config.go can depend on
// it without risking an import cycle back through internal/config.
package tomlutil

import "time"

// Duration is a time.Duration that round-trips through TOML as a
// Go-syntax string ("10s", "1h30m") instead of a bare integer of
// nanoseconds, the same convention the service configs
// files use via influxdb/toml.Duration. Reimplemented locally since that
// package isn't part of this tree.
type Duration time.Duration

// UnmarshalText parses a duration string using time.ParseDuration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats d using time.Duration's String method.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
