package controller

import (
	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
)

// Status is the snapshot written to the data directory at every Commit
type Status struct {
	Height                int64        `json:"height"`
	NativeRoot            lib.HexBytes `json:"nativeRoot"`
	EVMRoot               lib.HexBytes `json:"evmRoot"`
	AppHash               lib.HexBytes `json:"appHash"`
	BlockCount            uint64       `json:"blockCount"`
	DisableEVMBlockHeight int64        `json:"disableEVMBlockHeight"`
	EnableEVMBlockHeight  int64        `json:"enableEVMBlockHeight"`
}

// write() atomically replaces the status file
func (s *Status) write(dataDirPath string) lib.ErrorI {
	if err := lib.SaveJSONToFile(s, dataDirPath, lib.StatusFilePath); err != nil {
		return ErrStatusWrite(err)
	}
	return nil
}

// LoadStatus() reads the status file from the data directory
func LoadStatus(dataDirPath string) (*Status, lib.ErrorI) {
	s := new(Status)
	if err := lib.NewJSONFromFile(s, dataDirPath, lib.StatusFilePath); err != nil {
		return nil, err
	}
	return s, nil
}

// event types attached to delivered transactions when history is kept
const (
	EventTypeNativeTx = "native_tx"
	EventTypeConvert  = "convert_account"
)

// txEvents() tags a native transaction's operations, owners and conversion receivers for indexing
func txEvents(tx *ledger.Transaction) []lib.Event {
	event := lib.Event{Type: EventTypeNativeTx}
	event.Attributes = append(event.Attributes, lib.EventAttribute{Key: "hash", Value: lib.BytesToString(tx.Hash()), Index: true})
	events := []lib.Event{}
	for _, o := range tx.Body.Operations {
		event.Attributes = append(event.Attributes, lib.EventAttribute{Key: "operation", Value: string(o.Type)})
		for _, out := range o.Outputs {
			event.Attributes = append(event.Attributes, lib.EventAttribute{Key: "owner", Value: out.Owner.String(), Index: true})
		}
		if o.Type == ledger.OpConvertAccount {
			events = append(events, lib.Event{Type: EventTypeConvert, Attributes: []lib.EventAttribute{
				{Key: "receiver", Value: o.Receiver.String(), Index: true},
				{Key: "asset", Value: o.Asset},
			}})
		}
	}
	return append([]lib.Event{event}, events...)
}
