package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidVersion is returned when a version string is not a semantic version.
	ErrInvalidVersion = errors.New("version: invalid semantic version")

	// ErrVersionMismatch is returned when a remote controller is not compatible
	// with the local one.
	ErrVersionMismatch = errors.New("version: incompatible controller version")
)

// MismatchError describes an incompatible remote controller.
// It matches ErrVersionMismatch with errors.Is.
type MismatchError struct {
	Remote string
	Local  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("controller is version %s but this side is written for version %s; check your installation and try again",
		e.Remote, e.Local)
}

// Unwrap allows errors.Is(err, ErrVersionMismatch).
func (e *MismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// SemVer is a parsed semantic version whose minor and patch components may be absent.
type SemVer struct {
	Major    uint64
	Minor    uint64
	Patch    uint64
	HasMinor bool
	HasPatch bool

	// Raw is the string the version was parsed from.
	Raw string
}

// String returns the version in its shortest form ("1", "1.2" or "1.2.3").
func (v SemVer) String() string {
	switch {
	case !v.HasMinor:
		return fmt.Sprintf("%d", v.Major)
	case !v.HasPatch:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	default:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
}

// Parse parses a full or partial semantic version.
//
// Accepted forms include "1", "1.2", "1.2.3", "v1.2.3" and versions with
// pre-release or build metadata ("0.4.0-rc.1+abc"). Validation is delegated
// to Masterminds/semver; the component count of the original string decides
// which of minor and patch are present.
//
// Parameters:
//   - s: Version string
//
// Returns:
//   - SemVer: Parsed version
//   - error: ErrInvalidVersion (wrapped) if s is not a semantic version
func Parse(s string) (SemVer, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return SemVer{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	parsed, err := semver.NewVersion(raw)
	if err != nil {
		return SemVer{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}

	parts := coreComponents(raw)
	return SemVer{
		Major:    parsed.Major(),
		Minor:    parsed.Minor(),
		Patch:    parsed.Patch(),
		HasMinor: parts >= 2,
		HasPatch: parts >= 3,
		Raw:      raw,
	}, nil
}

// coreComponents counts the dot-separated numeric components before any
// pre-release or build suffix.
func coreComponents(raw string) int {
	core := strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return len(strings.Split(core, "."))
}

// Compatible reports whether a remote controller at version remote can be
// used by a local side at version local.
//
// Pre-1.0 remotes must match major and minor exactly. From 1.0 onwards the
// remote must share the major and have a minor greater than or equal to the
// local minor.
//
// Returns:
//   - bool: true if the versions are compatible
//   - error: ErrInvalidVersion if either string fails to parse
func Compatible(remote, local string) (bool, error) {
	rv, err := Parse(remote)
	if err != nil {
		return false, fmt.Errorf("remote: %w", err)
	}
	lv, err := Parse(local)
	if err != nil {
		return false, fmt.Errorf("local: %w", err)
	}
	return CompatibleVersions(rv, lv), nil
}

// CompatibleVersions applies the compatibility rule to already parsed versions.
func CompatibleVersions(remote, local SemVer) bool {
	if remote.Major == 0 {
		return remote.Major == local.Major && minorEqual(remote, local)
	}
	return remote.Major == local.Major && minorAtLeast(remote, local)
}

// Check is Compatible expressed as an error.
// It returns nil when compatible, a *MismatchError when not, and a parse
// error when either version is invalid.
func Check(remote, local string) error {
	ok, err := Compatible(remote, local)
	if err != nil {
		return err
	}
	if !ok {
		return &MismatchError{Remote: remote, Local: local}
	}
	return nil
}

func minorEqual(a, b SemVer) bool {
	if a.HasMinor != b.HasMinor {
		return false
	}
	return !a.HasMinor || a.Minor == b.Minor
}

// minorAtLeast reports a.minor >= b.minor with absent ordering below present.
func minorAtLeast(a, b SemVer) bool {
	switch {
	case !b.HasMinor:
		return true
	case !a.HasMinor:
		return false
	default:
		return a.Minor >= b.Minor
	}
}
