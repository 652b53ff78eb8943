/*

Package device implements the LoRaWAN 1.0.x Class A / Class C MAC layer for
end-devices: the join procedure, uplink / receive-window exchanges, downlink
demultiplexing, mac-command handling and session state.

The MAC state machine is described by a single transition table (see
Transition) and is driven in two ways: Device exposes blocking operations
for callers that can suspend at the radio and timer boundaries, EventDevice
exposes a non-blocking HandleEvent for callers that drive radio interrupts
and timer expirations in themselves.

*/
package device
