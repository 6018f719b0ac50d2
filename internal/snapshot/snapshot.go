// Package snapshot persists the sample history between runs.
package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"codeberg.org/mutker/thermotrend/internal/errors"
)

const (
	magic   = "TTSN"
	version = uint16(1)
)

// Snapshot is the persisted pair of parallel sequences.
type Snapshot struct {
	Timestamps []float64
	Values     []float64
}

// FileStore keeps one snapshot in a file. Writes go to a temp file in the
// same directory which then replaces the snapshot, so a failed write leaves
// the previous snapshot intact.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) tempPath() string {
	return filepath.Join(filepath.Dir(s.path), "temp."+filepath.Base(s.path))
}

// Save replaces the stored snapshot.
func (s *FileStore) Save(ctx context.Context, timestamps, values []float64) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrPersist, err)
	}
	if len(timestamps) != len(values) {
		return errFactory.WithData(errors.ErrShapeMismatch, struct {
			Timestamps int
			Values     int
		}{
			Timestamps: len(timestamps),
			Values:     len(values),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	// bytes.Buffer writes cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, version)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(timestamps)))
	_ = binary.Write(&buf, binary.LittleEndian, timestamps)
	_ = binary.Write(&buf, binary.LittleEndian, values)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrPersist, err)
	}

	tmp := s.tempPath()
	if err := writeFile(tmp, buf.Bytes()); err != nil {
		os.Remove(tmp)
		return errFactory.Wrap(errors.ErrPersist, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errFactory.Wrap(errors.ErrPersist, err)
	}

	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Load reads the stored snapshot. found is false, with a nil error, when no
// snapshot has been written yet.
func (s *FileStore) Load(ctx context.Context) (snap Snapshot, found bool, err error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, errFactory.Wrap(errors.ErrRestore, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errFactory.Wrap(errors.ErrRestore, err)
	}

	snap, err = decode(data)
	if err != nil {
		return Snapshot{}, false, errFactory.Wrap(errors.ErrRestore, err)
	}

	return snap, true, nil
}

func decode(data []byte) (Snapshot, error) {
	errFactory := errors.New()

	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return Snapshot{}, errFactory.WithMessage(errors.ErrInvalidArgument, "not a snapshot file")
	}
	r := bytes.NewReader(data[len(magic):])

	var header struct {
		Version uint16
		Length  uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Snapshot{}, err
	}
	if header.Version != version {
		return Snapshot{}, errFactory.WithData(errors.ErrInvalidArgument, struct {
			Version uint16
		}{
			Version: header.Version,
		})
	}
	if int64(header.Length)*16 != int64(r.Len()) {
		return Snapshot{}, io.ErrUnexpectedEOF
	}

	snap := Snapshot{
		Timestamps: make([]float64, header.Length),
		Values:     make([]float64, header.Length),
	}
	if err := binary.Read(r, binary.LittleEndian, snap.Timestamps); err != nil {
		return Snapshot{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, snap.Values); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}
