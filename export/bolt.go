package export

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/internal/parallel"
)

// ErrNotFound is returned when a store holds no array of the given name.
var ErrNotFound = errors.New("export: array not found")

var metaKey = []byte("meta")

// Store keeps arrays in a bbolt database, one bucket per array and one
// snappy-compressed record per row partition.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteArray forces the partitions of a and stores them under name,
// replacing any array stored there before.
func (s *Store) WriteArray(ctx context.Context, name string, a *darray.Array) error {
	parts, err := a.Partitions(ctx)
	if err != nil {
		return err
	}
	rows, cols := a.Dims()
	dtype := a.DType()

	records := make([][]byte, len(parts))
	err = parallel.ForErr(0, len(parts), parallel.NumWorkers(), func(i int) error {
		v, err := parts[i].Future.Result(ctx)
		if err != nil {
			return err
		}
		records[i] = snappy.Encode(nil, encodeBlock(v.(*mat.Dense), dtype))
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) != nil {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket([]byte(name))
		if err != nil {
			return err
		}

		meta := make([]byte, 25)
		binary.LittleEndian.PutUint64(meta[0:], uint64(rows))
		binary.LittleEndian.PutUint64(meta[8:], uint64(cols))
		binary.LittleEndian.PutUint64(meta[16:], uint64(len(parts)))
		meta[24] = byte(dtype)
		if err := b.Put(metaKey, meta); err != nil {
			return err
		}
		for i, rec := range records {
			if err := b.Put(partKey(i), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadArray loads the array stored under name.
func (s *Store) ReadArray(name string) (*mat.Dense, darray.DType, error) {
	var out *mat.Dense
	var dtype darray.DType

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return errors.Wrapf(ErrNotFound, "%q", name)
		}
		meta := b.Get(metaKey)
		if len(meta) != 25 {
			return errors.Errorf("export: %q: corrupt metadata", name)
		}
		rows := int(binary.LittleEndian.Uint64(meta[0:]))
		cols := int(binary.LittleEndian.Uint64(meta[8:]))
		nParts := int(binary.LittleEndian.Uint64(meta[16:]))
		dtype = darray.DType(meta[24])

		out = mat.NewDense(rows, cols, nil)
		off := 0
		for i := range nParts {
			raw, err := snappy.Decode(nil, b.Get(partKey(i)))
			if err != nil {
				return errors.Wrapf(err, "%q: partition %d", name, i)
			}
			m, err := decodeBlock(raw, dtype)
			if err != nil {
				return errors.WithMessagef(err, "%q: partition %d", name, i)
			}
			r, c := m.Dims()
			if c != cols {
				return errors.Errorf("export: %q: corrupt partition %d, %d columns, want %d", name, i, c, cols)
			}
			if off+r > rows {
				return errors.Errorf("export: %q: partitions exceed %d rows", name, rows)
			}
			out.Slice(off, off+r, 0, cols).(*mat.Dense).Copy(m)
			off += r
		}
		if off != rows {
			return errors.Errorf("export: %q: partitions hold %d of %d rows", name, off, rows)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, dtype, nil
}

// Arrays lists the stored array names.
func (s *Store) Arrays() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func partKey(i int) []byte {
	return []byte(fmt.Sprintf("part/%08d", i))
}

// encodeBlock lays out rows, cols and the values at dtype width, little
// endian and row-major.
func encodeBlock(m *mat.Dense, dtype darray.DType) []byte {
	r, c := m.Dims()
	width := int(dtype.ItemSize())
	buf := make([]byte, 8+r*c*width)
	binary.LittleEndian.PutUint32(buf[0:], uint32(r))
	binary.LittleEndian.PutUint32(buf[4:], uint32(c))

	p := buf[8:]
	for i := range r {
		for _, v := range m.RawRowView(i) {
			if width == 4 {
				binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
			} else {
				binary.LittleEndian.PutUint64(p, math.Float64bits(v))
			}
			p = p[width:]
		}
	}
	return buf
}

func decodeBlock(buf []byte, dtype darray.DType) (*mat.Dense, error) {
	if len(buf) < 8 {
		return nil, errors.New("export: short block")
	}
	r := int(binary.LittleEndian.Uint32(buf[0:]))
	c := int(binary.LittleEndian.Uint32(buf[4:]))
	width := int(dtype.ItemSize())
	if r == 0 || c == 0 || (len(buf)-8)/width/r < c {
		return nil, errors.Errorf("export: block of %d bytes for %dx%d %s", len(buf), r, c, dtype)
	}
	if len(buf) != 8+r*c*width {
		return nil, errors.Errorf("export: block of %d bytes for %dx%d %s", len(buf), r, c, dtype)
	}

	data := make([]float64, r*c)
	p := buf[8:]
	for k := range data {
		if width == 4 {
			data[k] = float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
		} else {
			data[k] = math.Float64frombits(binary.LittleEndian.Uint64(p))
		}
		p = p[width:]
	}
	return mat.NewDense(r, c, data), nil
}
