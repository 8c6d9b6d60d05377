package booking

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"github.com/tabletime/bookingd/internal/models"
)

const (
	referencePrefix   = "TT"
	referenceSuffix   = 4
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ReferencePattern matches a well-formed booking reference,
// e.g. TT0922-AB3F.
var ReferencePattern = regexp.MustCompile(`^TT\d{4}-[A-Z0-9]{4}$`)

// NewReference builds a booking reference for the appointment date:
// prefix, month and day digits, hyphen, random uppercase alphanumeric
// suffix. Callers retry on collision.
func NewReference(date string) (string, error) {
	d, err := time.Parse(models.DateFormat, date)
	if err != nil {
		return "", fmt.Errorf("%w: bad date %q", ErrInvalidInput, date)
	}

	buf := make([]byte, referenceSuffix)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}

	return fmt.Sprintf("%s%02d%02d-%s", referencePrefix, int(d.Month()), d.Day(), buf), nil
}
