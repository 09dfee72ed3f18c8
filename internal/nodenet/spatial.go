package nodenet

import "math"

const bucketSize = 100

// Position is a node or nodespace location on the editor canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type bucket struct{ x, y int }

func bucketOf(p Position) bucket {
	return bucket{
		x: int(math.Floor(p.X/bucketSize)) * bucketSize,
		y: int(math.Floor(p.Y/bucketSize)) * bucketSize,
	}
}

// spatialIndex buckets node uids by coordinates for viewport queries.
type spatialIndex struct {
	buckets map[bucket][]string
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{buckets: make(map[bucket][]string)}
}

func (s *spatialIndex) add(uid string, p Position) {
	b := bucketOf(p)
	s.buckets[b] = append(s.buckets[b], uid)
}

func (s *spatialIndex) remove(uid string, p Position) {
	b := bucketOf(p)
	uids := s.buckets[b]
	for i, u := range uids {
		if u == uid {
			uids = append(uids[:i], uids[i+1:]...)
			break
		}
	}
	if len(uids) == 0 {
		delete(s.buckets, b)
		return
	}
	s.buckets[b] = uids
}

func (s *spatialIndex) move(uid string, from, to Position) {
	if bucketOf(from) == bucketOf(to) {
		return
	}
	s.remove(uid, from)
	s.add(uid, to)
}

// area returns the uids in every occupied bucket overlapping the rectangle.
// Its cost follows the number of occupied buckets, not the rectangle size.
func (s *spatialIndex) area(x1, x2, y1, y2 float64) []string {
	var out []string
	for b, uids := range s.buckets {
		bx, by := float64(b.x), float64(b.y)
		if bx+bucketSize > x1 && bx <= x2 && by+bucketSize > y1 && by <= y2 {
			out = append(out, uids...)
		}
	}
	return out
}

// maxCoords returns the largest occupied bucket origin on each axis.
func (s *spatialIndex) maxCoords() Position {
	var m Position
	for b := range s.buckets {
		m.X = math.Max(m.X, float64(b.x))
		m.Y = math.Max(m.Y, float64(b.y))
	}
	return m
}
