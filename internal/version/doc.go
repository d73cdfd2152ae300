// Package version decides whether two cooperating AVX controllers can talk
// to each other.
//
// Every controller publishes a semantic version. Before a master adds a
// slave, or before a client uses a controller connection, it fetches the
// remote version and runs it through Compatible:
//
//   - 0.x releases break at every minor bump, so the minors must match exactly.
//   - From 1.0 onwards the remote must be in the same major line and at least
//     as new (by minor) as the local side.
//
// Partial versions ("1", "1.4") are accepted. A missing component is treated
// as absent rather than zero: an absent minor only equals another absent
// minor and orders below every present one.
//
// # Usage
//
//	if err := version.Check(remoteVersion, localVersion); err != nil {
//	    if errors.Is(err, version.ErrVersionMismatch) {
//	        // refuse the link
//	    }
//	    return err
//	}
package version
