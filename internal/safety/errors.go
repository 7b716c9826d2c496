package safety

import "errors"

var (
	// ErrNoHomepage is returned when a request names neither a homepage nor
	// a seed. The accompanying report still carries an explanatory record.
	ErrNoHomepage = errors.New("no homepage provided")

	// ErrUnknownBroker is returned when no fact sheet exists for a broker id.
	ErrUnknownBroker = errors.New("unknown broker")

	// ErrInvalidFactSheet is returned when an embedded fact sheet is malformed.
	ErrInvalidFactSheet = errors.New("invalid fact sheet")
)
