package ir

// Event is a typed record emitted by a contract during an operation.
type Event interface {
	// Name is the event type, e.g. "TokensPurchased".
	Name() string

	// Fields is the event payload. Amounts are decimal strings,
	// addresses are hex strings.
	Fields() Object
}

// EventRecord is an event as committed by the host: stamped with the
// transaction that produced it, its position and the emitting contract.
type EventRecord struct {
	ID      string  `json:"id"`
	TxID    string  `json:"tx_id"`
	Seq     int64   `json:"seq"`
	Height  uint64  `json:"height"`
	Emitter Address `json:"emitter"`
	Name    string  `json:"name"`
	Fields  Object  `json:"fields"`
}

// NewEventRecord stamps ev and computes its content-addressed ID.
func NewEventRecord(txID string, seq int64, height uint64, emitter Address, ev Event) (EventRecord, error) {
	fields := ev.Fields()
	id, err := EventID(txID, seq, emitter, ev.Name(), fields)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		ID:      id,
		TxID:    txID,
		Seq:     seq,
		Height:  height,
		Emitter: emitter,
		Name:    ev.Name(),
		Fields:  fields,
	}, nil
}
