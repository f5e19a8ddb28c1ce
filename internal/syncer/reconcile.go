package syncer

import (
	"time"

	"tutorledger/internal/ledger"
)

// Winner names the replica that survived reconciliation.
type Winner string

const (
	WinnerNone   Winner = ""
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Reconcile picks one whole snapshot: the remote copy only when its
// LastUpdated is strictly later, otherwise the local one. The result is
// normalized and stamped with now. Edits on the losing side are discarded.
func Reconcile(local ledger.Snapshot, remote *ledger.Snapshot, now time.Time) (ledger.Snapshot, Winner) {
	out, winner := local, WinnerLocal
	if remote != nil && remote.LastUpdated.After(local.LastUpdated) {
		out, winner = *remote, WinnerRemote
	}
	out.Normalize(now)
	return out, winner
}
