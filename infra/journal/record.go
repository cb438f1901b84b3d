package journal

import "time"

// RecordType tags one accepted mutating command.
type RecordType uint8

const (
	RecordRegister RecordType = iota
	RecordDeposit
	RecordWithdraw
	RecordTokenDeposit
	RecordTokenWithdraw
	RecordSell
	RecordReducePrice
	RecordSellWithdraw
	RecordBid
	RecordReveal
	RecordBidWithdraw
	RecordMatch
)

// Record is one journal entry. Payload encoding is the writer's
// business; the journal frames and checksums it.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, data []byte) *Record {
	return &Record{
		Type: t,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
