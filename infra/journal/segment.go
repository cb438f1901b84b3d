package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

type segment struct {
	file   *os.File
	offset int64
}

func openSegment(dir string, index int) (*segment, error) {
	path := filepath.Join(dir, fmt.Sprintf("segment-%06d.jrnl", index))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open segment")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "journal: stat segment")
	}
	return &segment{file: f, offset: info.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		return err
	}
	s.offset += int64(n)
	return nil
}

func (s *segment) close() error {
	return s.file.Close()
}

// lastSegmentIndex finds the highest existing segment index so a
// reopened journal keeps appending where it left off.
func lastSegmentIndex(dir string) (int, error) {
	files, err := segmentFiles(dir)
	if err != nil || len(files) == 0 {
		return 0, err
	}
	var idx int
	_, err = fmt.Sscanf(filepath.Base(files[len(files)-1]), "segment-%06d.jrnl", &idx)
	if err != nil {
		return 0, errors.Wrap(err, "journal: parse segment name")
	}
	return idx, nil
}

func segmentFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.jrnl"))
	if err != nil {
		return nil, errors.Wrap(err, "journal: list segments")
	}
	sort.Strings(files)
	return files, nil
}
