package types

// Version is the canonical project version.
// The CLI, daemon, and client library share this version per the
// lockstep versioning policy.
//
// This version is authoritative.
const Version = "0.3.0"
