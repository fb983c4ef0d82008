// Package stsjog jogs and inspects Feetech STS3215 serial bus servos.
//
// A session controller owns one serial bus and serializes every operation
// on it: scanning for motors, moving them, reading telemetry, toggling
// torque and changing bus IDs.
//
// # Installation
//
//	go install github.com/gwillem/stsjog/cmd/stsjog@latest
//
// # Usage
//
// Pick the port the bus adapter is on and write stsjog.json:
//
//	stsjog init
//
// Find motors, then move one or open the interactive jog screen:
//
//	stsjog scan
//	stsjog move 1 2048 --speed 500
//	stsjog jog
//
// Every command runs against a simulated bus with --sim:
//
//	stsjog --sim 1-6 jog
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/stsjog: CLI with scan, move, status, set-id and jog commands
//   - pkg/session: Controller serializing operations on one bus
//   - pkg/servo: Driver interface, feetech driver, simulated bus and limits
//   - pkg/telemetry: Status poller
//   - pkg/config: Configuration file
//   - pkg/ports: Serial port listing
package stsjog
