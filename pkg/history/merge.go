package history

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"bltm-swap/pkg/ledger"
)

// Entry is one line of the combined history. Journal is set for
// transactions this client submitted, Event for pool events; both are set
// when a journaled transaction emitted the event.
type Entry struct {
	Hash    common.Hash       `json:"hash"`
	Block   uint64            `json:"block,omitempty"`
	Journal *Record           `json:"journal,omitempty"`
	Event   *ledger.PoolEvent `json:"event,omitempty"`
}

// Action names what the entry did
func (e Entry) Action() string {
	if e.Journal != nil {
		return string(e.Journal.Kind)
	}
	if e.Event != nil {
		return string(e.Event.Action)
	}
	return ""
}

// Merge joins journal records with pool events by transaction hash. Entries
// without a block (pending or never mined) come first, the rest by block,
// newest first.
func Merge(records []*Record, events []ledger.PoolEvent) []Entry {
	byHash := make(map[common.Hash]int)
	entries := make([]Entry, 0, len(records)+len(events))

	for _, r := range records {
		e := Entry{Hash: r.Hash, Block: r.BlockNumber, Journal: r}
		if r.Hash != (common.Hash{}) {
			byHash[r.Hash] = len(entries)
		}
		entries = append(entries, e)
	}

	for i := range events {
		ev := events[i]
		if idx, ok := byHash[ev.TxHash]; ok && entries[idx].Event == nil {
			entries[idx].Event = &ev
			entries[idx].Block = ev.BlockNumber
			continue
		}
		entries = append(entries, Entry{Hash: ev.TxHash, Block: ev.BlockNumber, Event: &ev})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		ba, bb := entries[a].Block, entries[b].Block
		switch {
		case ba == 0 && bb != 0:
			return true
		case bb == 0 && ba != 0:
			return false
		}
		return ba > bb
	})
	return entries
}
