package descriptor

import "errors"

var (
	// ErrMalformedDescriptor is returned when a descriptor cannot be parsed,
	// misses a required field, or breaks a structural rule.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrChecksumFormat is returned when a checksum is not a 64 character
	// hexadecimal sha256 digest.
	ErrChecksumFormat = errors.New("invalid checksum format")
)
