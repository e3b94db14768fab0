// Package version holds the release version of the referrals binary.
package version

// Current is overridden at build time with -ldflags "-X ...version.Current=...".
var Current = "0.1.0"
