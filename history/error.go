package history

import (
	"fmt"
	"time"

	"github.com/canopy-network/dualledger/lib"
)

func ErrHistoryClosed() lib.ErrorI {
	return lib.NewError(lib.CodeHistoryClosed, lib.HistoryModule, "history writer is closed")
}

func ErrHistoryTimeout(timeout time.Duration) lib.ErrorI {
	return lib.NewError(lib.CodeHistoryWrite, lib.HistoryModule, fmt.Sprintf("history sync timed out after %s", timeout))
}
