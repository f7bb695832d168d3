// Package namerace claims a name at the instant it becomes available.
//
// A Client resolves the release instant, guards it against the credential
// lifetime, optionally calibrates the network latency to the profile
// service and then runs a race: several TLS connections are opened and
// primed with all of a request except its final bytes, and each is
// completed at a staggered flush instant around the release.
//
// Subpackages carry the pieces: schedule computes instants, wire builds and
// parses the raw HTTP/1.1 bytes, transport dials, calibrate measures latency,
// race runs attempts, resolve looks up release instants and telemetry keeps
// the event log and latency statistics for the run report.
package namerace
