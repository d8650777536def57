// Package agent runs the node's super-loop.
//
// Setup brings WiFi up, connects to the broker and subscribes to the inbound
// topic. After that every poll runs one Step, strictly in order:
//
//  1. reconnect check: WiFi first, then the broker session
//  2. blink: toggle the status LED when its interval is due
//  3. relay: log and journal inbound messages queued since the last step
//  4. heartbeat: publish the fixed payload when its interval is due
//
// Intervals are measured on a wrapping 32-bit millisecond counter, the same
// arithmetic a microcontroller's millis() uses, so elapsed-time checks stay
// correct when the counter rolls over after about 49.7 days.
//
// WiFi is retried forever with a fixed delay. The broker gets a bounded
// number of attempts; when they run out the agent asks its Restarter for a
// restart and Run returns ErrRestartRequired.
package agent
