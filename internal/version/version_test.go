package version

import (
	"errors"
	"testing"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		local  string
		want   bool
	}{
		{name: "pre-1.0 same minor newer patch", remote: "0.3.1", local: "0.3.0", want: true},
		{name: "pre-1.0 same minor older patch", remote: "0.3.0", local: "0.3.5", want: true},
		{name: "pre-1.0 older minor", remote: "0.3.0", local: "0.4.0", want: false},
		{name: "pre-1.0 newer minor", remote: "0.5.0", local: "0.4.0", want: false},
		{name: "pre-1.0 against 1.x", remote: "0.9.0", local: "1.0.0", want: false},
		{name: "post-1.0 newer minor", remote: "1.4.0", local: "1.2.0", want: true},
		{name: "post-1.0 equal minor", remote: "1.2.7", local: "1.2.0", want: true},
		{name: "post-1.0 older minor", remote: "1.1.0", local: "1.2.0", want: false},
		{name: "post-1.0 newer major", remote: "2.0.0", local: "1.9.0", want: false},
		{name: "post-1.0 older major", remote: "1.9.0", local: "2.0.0", want: false},
		{name: "partial equal", remote: "1.4", local: "1.4.2", want: true},
		{name: "v prefix", remote: "v1.4.0", local: "1.3.0", want: true},
		{name: "pre-release suffix", remote: "0.3.0-rc.1", local: "0.3.0", want: true},
		{name: "absent remote minor vs present local", remote: "1", local: "1.0", want: false},
		{name: "present remote minor vs absent local", remote: "1.3", local: "1", want: true},
		{name: "both minors absent", remote: "0", local: "0", want: true},
		{name: "pre-1.0 absent vs present minor", remote: "0", local: "0.1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compatible(tt.remote, tt.local)
			if err != nil {
				t.Fatalf("Compatible(%q, %q) error = %v", tt.remote, tt.local, err)
			}
			if got != tt.want {
				t.Errorf("Compatible(%q, %q) = %v, want %v", tt.remote, tt.local, got, tt.want)
			}
		})
	}
}

func TestCompatible_PreOneRequiresExactMinor(t *testing.T) {
	for minor := 0; minor < 5; minor++ {
		for localMinor := 0; localMinor < 5; localMinor++ {
			remote := SemVer{Major: 0, Minor: uint64(minor), HasMinor: true}
			local := SemVer{Major: 0, Minor: uint64(localMinor), HasMinor: true}
			got := CompatibleVersions(remote, local)
			want := minor == localMinor
			if got != want {
				t.Errorf("CompatibleVersions(0.%d, 0.%d) = %v, want %v", minor, localMinor, got, want)
			}
		}
	}
}

func TestCompatible_InvalidVersion(t *testing.T) {
	tests := []struct {
		remote string
		local  string
	}{
		{remote: "not-a-version", local: "1.0.0"},
		{remote: "1.0.0", local: "dev"},
		{remote: "", local: "1.0.0"},
	}

	for _, tt := range tests {
		_, err := Compatible(tt.remote, tt.local)
		if !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("Compatible(%q, %q) error = %v, want ErrInvalidVersion", tt.remote, tt.local, err)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := Check("1.4.0", "1.2.0"); err != nil {
		t.Errorf("Check() error = %v, want nil", err)
	}

	err := Check("1.1.0", "1.2.0")
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Check() error = %v, want ErrVersionMismatch", err)
	}

	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Check() error type = %T, want *MismatchError", err)
	}
	if mismatch.Remote != "1.1.0" || mismatch.Local != "1.2.0" {
		t.Errorf("MismatchError = %+v, want remote 1.1.0 local 1.2.0", mismatch)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		want     string
		hasMinor bool
		hasPatch bool
	}{
		{input: "1", want: "1", hasMinor: false, hasPatch: false},
		{input: "1.2", want: "1.2", hasMinor: true, hasPatch: false},
		{input: "1.2.3", want: "1.2.3", hasMinor: true, hasPatch: true},
		{input: "v0.4.1-beta+build.7", want: "0.4.1", hasMinor: true, hasPatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if v.String() != tt.want {
				t.Errorf("Parse(%q).String() = %q, want %q", tt.input, v.String(), tt.want)
			}
			if v.HasMinor != tt.hasMinor || v.HasPatch != tt.hasPatch {
				t.Errorf("Parse(%q) HasMinor=%v HasPatch=%v, want %v %v",
					tt.input, v.HasMinor, v.HasPatch, tt.hasMinor, tt.hasPatch)
			}
		})
	}
}
