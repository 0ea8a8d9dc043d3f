package motion

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Foreign buffer layout, little-endian:
//
//	0   step  u64
//	8   location x, y, z  f64
//	32  rotation w, x, y, z  f64
const bufferSize = 64

// Snapshot is one published location and rotation pair.
type Snapshot struct {
	Rotation mgl64.Quat
	Location mgl64.Vec3
	// Step counts publications; 0 means nothing was published yet.
	Step uint64
}

func (s *Snapshot) encode(buf *[bufferSize]byte) {
	le := binary.LittleEndian
	le.PutUint64(buf[0:], s.Step)
	le.PutUint64(buf[8:], math.Float64bits(s.Location[0]))
	le.PutUint64(buf[16:], math.Float64bits(s.Location[1]))
	le.PutUint64(buf[24:], math.Float64bits(s.Location[2]))
	le.PutUint64(buf[32:], math.Float64bits(s.Rotation.W))
	le.PutUint64(buf[40:], math.Float64bits(s.Rotation.V[0]))
	le.PutUint64(buf[48:], math.Float64bits(s.Rotation.V[1]))
	le.PutUint64(buf[56:], math.Float64bits(s.Rotation.V[2]))
}

func (s *Snapshot) decode(buf *[bufferSize]byte) {
	le := binary.LittleEndian
	f := func(off int) float64 { return math.Float64frombits(le.Uint64(buf[off:])) }
	s.Step = le.Uint64(buf[0:])
	s.Location = mgl64.Vec3{f(8), f(16), f(24)}
	s.Rotation = mgl64.Quat{W: f(32), V: mgl64.Vec3{f(40), f(48), f(56)}}
}
