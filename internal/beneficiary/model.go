package beneficiary

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the beneficiary does not exist.
	ErrNotFound = errors.New("beneficiary not found")

	// ErrForbidden indicates the beneficiary belongs to another business.
	ErrForbidden = errors.New("beneficiary belongs to another business")

	// ErrInactive indicates the beneficiary cannot currently receive transfers.
	ErrInactive = errors.New("beneficiary is inactive")
)

// Beneficiary is a foreign recipient a business can send transfers to. The
// destination address is where the stable asset is delivered on-chain.
type Beneficiary struct {
	ID                 uuid.UUID
	BusinessID         uuid.UUID
	Name               string
	Country            string
	Currency           string
	DestinationAddress string
	IsActive           bool
	CreatedAt          time.Time
}
