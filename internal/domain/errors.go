package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDataUnavailable = errors.New("data source unavailable")
	ErrRateLimited     = errors.New("rate limited")
	ErrNoEngines       = errors.New("no engine produced an estimate")
)

// WalletError ties an error to the wallet whose computation produced it, so
// batch callers can report per-slot failures.
type WalletError struct {
	Wallet string
	Err    error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet %s: %v", e.Wallet, e.Err)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewWalletError wraps err with the owning wallet address.
func NewWalletError(wallet string, err error) *WalletError {
	return &WalletError{Wallet: NormalizeWallet(wallet), Err: err}
}
