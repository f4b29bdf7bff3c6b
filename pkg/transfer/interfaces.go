//go:generate mockgen -destination=mocks/transfer.go . Starter,Handle
package transfer

import (
	"context"
	"net/http"
)

// ProgressFunc receives the number of bytes on disk and the expected total.
// total is zero while the server has not announced a length.
type ProgressFunc func(done, total int64)

// Starter opens resumable transfers.
type Starter interface {
	// Begin starts a fresh transfer of url into dest, discarding any partial data.
	Begin(ctx context.Context, url, dest string, onProgress ProgressFunc) (Handle, error)

	// Restore continues a transfer from a token produced by Handle.Pause or Handle.Token.
	// dest overrides the destination recorded in the token when it is not empty.
	Restore(ctx context.Context, token []byte, dest string, onProgress ProgressFunc) (Handle, error)
}

// Handle is one running transfer.
type Handle interface {
	// Wait blocks until the transfer ends. A paused transfer returns ErrTransferPaused.
	Wait(ctx context.Context) (Result, error)

	// Pause suspends the transfer and returns its resume token. Pausing a transfer
	// that already succeeded returns ErrTransferFinished.
	Pause(ctx context.Context) ([]byte, error)

	// Token serializes the current resumable state without stopping the transfer.
	Token() ([]byte, error)
}

// Result describes how a transfer ended.
type Result struct {
	StatusCode int
	Path       string
	Bytes      int64
}

// Success reports whether the server delivered the full or the remaining content.
func (r Result) Success() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusPartialContent
}
