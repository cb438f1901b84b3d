// Package journal is the exchange's segmented command log. Every
// accepted mutating command is framed, checksummed and appended
// before its effects are considered durable; startup replays the
// whole directory to rebuild state.
package journal

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

type Journal struct {
	dir        string
	segSize    int64
	current    *segment
	segIndex   int
	seq        uint64
	lastRotate time.Time
}

func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "journal: create dir")
	}

	idx, err := lastSegmentIndex(cfg.Dir)
	if err != nil {
		return nil, err
	}
	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		current:    seg,
		segIndex:   idx,
		lastRotate: time.Now(),
	}, nil
}

// Append assigns the next sequence number, frames the record and
// writes it to the current segment.
//
// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
func (j *Journal) Append(r *Record) error {
	j.seq++
	r.Seq = j.seq

	payloadLen := uint32(len(r.Data))
	buf := make([]byte, 1+8+8+4+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := j.current.append(buf); err != nil {
		return errors.Wrap(err, "journal: append")
	}

	if j.current.offset >= j.segSize {
		return j.rotate()
	}
	return nil
}

// Seq returns the last assigned sequence number.
func (j *Journal) Seq() uint64 {
	return j.seq
}

// ResumeAt sets the sequence counter after replay so fresh records
// continue the replayed numbering.
func (j *Journal) ResumeAt(seq uint64) {
	j.seq = seq
}

func (j *Journal) rotate() error {
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}

	j.current = seg
	j.lastRotate = time.Now()
	return nil
}

func (j *Journal) Close() error {
	return j.current.close()
}
