// Package wiremux dispatches typed messages between the two endpoints of a
// duplex byte channel.
//
// Message types are declared once per process against a Registry, keyed by a
// string channel tag. A Manager pairs the registry with a Codec and a
// transport Transmitter: outbound messages are tagged, encoded, and
// transmitted, or buffered until the transport reports Ready; inbound frames
// are decoded, validated, converted to their registered type, and handed to
// standing listeners or one-shot awaiters. Send-side faults surface as
// errors; receive-side faults are logged and the frame is dropped, so a
// misbehaving peer cannot crash its counterpart.
package wiremux
