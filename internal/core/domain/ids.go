package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	TransactionIDPrefix = "wt_"
	RefundIDPrefix      = "ref_"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewTransactionID returns a time-sortable wallet transaction id.
func NewTransactionID() string {
	return TransactionIDPrefix + newULID()
}

// NewRefundID returns a time-sortable refund request id.
func NewRefundID() string {
	return RefundIDPrefix + newULID()
}

func newULID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}
