package wallet

import (
	"context"
)

// TransferRequest describes a single funds movement in base units
// (1e6 base units = one display unit of the asset).
type TransferRequest struct {
	Network string
	Asset   string
	PayTo   string
	Amount  int64
}

// TransferResult reports the chain reference of a completed transfer.
type TransferResult struct {
	TxRef   string
	Network string
	Amount  int64
}

// Adapter is the abstract transfer capability. Implementations execute the
// transfer exactly once per call and surface failures without retrying; a
// stalled call blocks only the caller that issued it.
type Adapter interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Balance(ctx context.Context, account, asset string) (int64, error)
	Close()
}
