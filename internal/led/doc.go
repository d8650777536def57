// Package led drives the node's status indicator.
//
// Backends:
//   - sysfs: an LED class device, /sys/class/leds/<name>/brightness
//   - gpio: a legacy sysfs GPIO line (pin 2 by default), exported on open
//   - log: no hardware, state changes are logged at debug level
//   - none: does nothing
//
// The agent toggles the indicator through a Blinker once per blink
// interval, so a steady blink means the loop is alive.
package led
