package download

import (
	"fmt"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
	"github.com/glorpus-work/modelkeep/pkg/model"
)

// ErrBusy is returned when a transfer is already active in the controller's scope.
var ErrBusy = fmt.Errorf("%w: another transfer owns this scope", errutils.ErrTransferInProgress)

// Outcome describes how Start or Resume ended when no error is returned.
type Outcome int

const (
	// OutcomeNone means nothing happened, e.g. Resume without a resume token.
	OutcomeNone Outcome = iota
	// OutcomeUpToDate means the target artifact is already complete.
	OutcomeUpToDate
	// OutcomeCompleted means a transfer ran to completion.
	OutcomeCompleted
	// OutcomePaused means the transfer was suspended by Pause.
	OutcomePaused
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpToDate:
		return "up_to_date"
	case OutcomeCompleted:
		return "completed"
	case OutcomePaused:
		return "paused"
	default:
		return "none"
	}
}

// StartRequest names the artifact a Start call should bring onto the device.
type StartRequest struct {
	Descriptor model.Descriptor
	CatalogID  string
	Version    string
	// Restart discards the existing file and any transfer state first.
	Restart bool
}
