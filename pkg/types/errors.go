package types

import "errors"

// Error kinds shared by the mining and submission pipeline
var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrWorkerFailure       = errors.New("search worker failed")
	ErrNetwork             = errors.New("network error")
	ErrExpired             = errors.New("blockhash expired before confirmation")
	ErrBlockhashNotFound   = errors.New("blockhash not found by ledger")
	ErrRejected            = errors.New("transaction rejected by ledger")
	ErrInsufficientBalance = errors.New("insufficient claimable balance")
	ErrNotFound            = errors.New("account not found")
)
