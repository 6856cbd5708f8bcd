package pik

import "errors"

// Decode and encode failures. All are terminal for the header being
// processed: the framework never retries, and a partially decoded header
// must not be used after a failure.
var (
	// ErrSignatureMismatch is returned when the leading container
	// signature is not present. At the very top of a stream this usually
	// means "not this format" rather than corruption.
	ErrSignatureMismatch = errors.New("pik: container signature mismatch")

	// ErrTruncatedStream is returned when the bit cursor is exhausted in
	// the middle of a field.
	ErrTruncatedStream = errors.New("pik: truncated bitstream")

	// ErrInvalidEnumValue is returned when a decoded enum field is
	// outside the enum's declared value set.
	ErrInvalidEnumValue = errors.New("pik: invalid enum value")

	// ErrExtensionMismatch is returned when the declared extension bit
	// count disagrees with the bits actually consumed.
	ErrExtensionMismatch = errors.New("pik: extension length mismatch")

	// ErrUnrepresentableValue is returned by the encode-side dry run when
	// a field value fits no alternative of its distribution table.
	ErrUnrepresentableValue = errors.New("pik: field value not representable")

	// ErrFieldCountMismatch is returned when the length of an
	// externally-sized field does not match the caller-supplied count.
	ErrFieldCountMismatch = errors.New("pik: field count mismatch")

	// ErrInvalidPassSize is returned when a pass header's size field
	// cannot cover its own header or runs past the end of the container.
	ErrInvalidPassSize = errors.New("pik: invalid pass size")
)
