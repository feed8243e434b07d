package datasets

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nozzle/datasets/internal/rand"
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceSeed
	sourceGenerator
	sourceStream
)

// RandomState selects where a generation call takes its randomness from.
// Build one with Seed, FromGenerator or FromStream. The zero value draws a
// fresh seed on every call.
type RandomState struct {
	kind   sourceKind
	seed   int64
	gen    *Generator
	stream *Stream
}

// Seed returns a random state seeded with seed, which must fit in 32
// unsigned bits.
func Seed(seed int64) RandomState {
	return RandomState{kind: sourceSeed, seed: seed}
}

// FromGenerator draws from an existing single-machine generator. Seeds are
// taken from g, so g advances with every derivation.
func FromGenerator(g *Generator) RandomState {
	return RandomState{kind: sourceGenerator, gen: g}
}

// FromStream reuses a logical stream across calls.
func FromStream(s *Stream) RandomState {
	return RandomState{kind: sourceStream, stream: s}
}

func (rs RandomState) String() string {
	switch rs.kind {
	case sourceNone:
		return "none"
	case sourceSeed:
		return fmt.Sprintf("seed(%d)", rs.seed)
	case sourceGenerator:
		return "generator"
	case sourceStream:
		return "stream"
	}
	return "invalid"
}

// resolve returns the stream the state stands for.
func (rs RandomState) resolve(log logrus.FieldLogger) (*Stream, error) {
	switch rs.kind {
	case sourceNone:
		u := uuid.New()
		seed := binary.LittleEndian.Uint32(u[:4])
		log.WithField("seed", seed).Debug("random state not set, drew a seed")
		return NewStream(seed), nil

	case sourceSeed:
		if rs.seed < 0 || rs.seed > math.MaxUint32 {
			return nil, errors.Wrapf(ErrConfiguration, "seed %d outside [0, 2^32)", rs.seed)
		}
		return NewStream(uint32(rs.seed)), nil

	case sourceGenerator:
		if rs.gen == nil {
			return nil, errors.Wrap(ErrConfiguration, "nil generator")
		}
		if rs.gen.mt == nil {
			return nil, errors.Wrap(ErrConfiguration, "uninitialized generator, use NewGenerator")
		}
		return &Stream{mt: rs.gen.mt, mu: &rs.gen.mu}, nil

	case sourceStream:
		if rs.stream == nil {
			return nil, errors.Wrap(ErrConfiguration, "nil stream")
		}
		return rs.stream, nil
	}
	return nil, errors.Wrapf(ErrConfiguration, "unknown random state kind %d", rs.kind)
}

// Generator is a single-machine generator that can seed a stream. Create
// one with NewGenerator; a random state built from the zero value is
// rejected with ErrConfiguration.
type Generator struct {
	mu sync.Mutex
	mt *rand.MT19937
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint32) *Generator {
	return &Generator{mt: rand.NewMT19937(seed)}
}

// Stream is the logical random stream a generation call derives every
// chunk seed from. NextSeeds is its only mutator. It is safe for
// concurrent use.
type Stream struct {
	mu  *sync.Mutex
	mt  *rand.MT19937
	pos int
}

// NewStream returns a stream seeded with seed.
func NewStream(seed uint32) *Stream {
	return &Stream{mu: new(sync.Mutex), mt: rand.NewMT19937(seed)}
}

// NextSeeds derives n distinct seeds and advances the stream. The seeds
// are a random 32-bit base offset by a random permutation of [0, n), so
// they depend only on the stream position and n.
func (s *Stream) NextSeeds(n int) []uint32 {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.mt.Uint32()
	perm := s.mt.Permutation(n)
	seeds := make([]uint32, n)
	for i, p := range perm {
		seeds[i] = base + uint32(p)
	}
	s.pos++
	return seeds
}

// Position returns the number of NextSeeds calls made so far.
func (s *Stream) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
