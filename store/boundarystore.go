// Package store implements the TrackBoundaryStore contract: persistence
// and lookup for built track boundaries, plus the little-endian binary
// encoding used when a boundary is written to or read from a backing file.
package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/trackside/telemetry-core/models"
)

// BoundaryStore looks up previously built track boundaries by track and
// configuration.
type BoundaryStore interface {
	GetBoundary(trackID int32, trackConfig string) (models.TrackBoundary, bool)
	ListBoundaries() []models.TrackBoundary
}

type boundaryKey struct {
	trackID int32
	config  string
}

// MemoryStore is an in-process BoundaryStore, safe for concurrent use; a
// read-write lock keeps lookups from blocking on one another.
type MemoryStore struct {
	mu         sync.RWMutex
	boundaries map[boundaryKey]models.TrackBoundary
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boundaries: make(map[boundaryKey]models.TrackBoundary)}
}

// Put registers or replaces the boundary for its (track_id, config) key.
func (s *MemoryStore) Put(b models.TrackBoundary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundaries[boundaryKey{trackID: b.TrackID, config: b.TrackConfig}] = b
}

// GetBoundary implements BoundaryStore.
func (s *MemoryStore) GetBoundary(trackID int32, trackConfig string) (models.TrackBoundary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boundaries[boundaryKey{trackID: trackID, config: trackConfig}]
	return b, ok
}

// ListBoundaries implements BoundaryStore.
func (s *MemoryStore) ListBoundaries() []models.TrackBoundary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrackBoundary, 0, len(s.boundaries))
	for _, b := range s.boundaries {
		out = append(out, b)
	}
	return out
}

// EncodeBoundary writes b to w as: header {track_id int32, config_len
// uint16, config utf8, grid_size uint32} followed by 5*grid_size IEEE-754
// doubles ordered left-lat, left-lon, right-lat, right-lon,
// grid-distance-pct, all little-endian.
func EncodeBoundary(w io.Writer, b models.TrackBoundary) error {
	gridSize := b.GridSize()
	if len(b.Left) != gridSize || len(b.Right) != gridSize || len(b.GridDistancePct) != gridSize {
		return fmt.Errorf("store: boundary arrays disagree on grid size")
	}

	if err := binary.Write(w, binary.LittleEndian, b.TrackID); err != nil {
		return err
	}
	configBytes := []byte(b.TrackConfig)
	if len(configBytes) > 0xFFFF {
		return fmt.Errorf("store: track config too long to encode (%d bytes)", len(configBytes))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(configBytes))); err != nil {
		return err
	}
	if _, err := w.Write(configBytes); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(gridSize)); err != nil {
		return err
	}
	for i := 0; i < gridSize; i++ {
		vals := [5]float64{b.Left[i].Lat, b.Left[i].Lon, b.Right[i].Lat, b.Right[i].Lon, b.GridDistancePct[i]}
		if err := binary.Write(w, binary.LittleEndian, vals); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBoundary reads a boundary written by EncodeBoundary. LeftSourceFrames
// and RightSourceFrames are not part of the wire format and are left zero.
func DecodeBoundary(r io.Reader) (models.TrackBoundary, error) {
	var b models.TrackBoundary

	if err := binary.Read(r, binary.LittleEndian, &b.TrackID); err != nil {
		return b, err
	}
	var configLen uint16
	if err := binary.Read(r, binary.LittleEndian, &configLen); err != nil {
		return b, err
	}
	configBytes := make([]byte, configLen)
	if _, err := io.ReadFull(r, configBytes); err != nil {
		return b, err
	}
	b.TrackConfig = string(configBytes)

	var gridSize uint32
	if err := binary.Read(r, binary.LittleEndian, &gridSize); err != nil {
		return b, err
	}
	b.Left = make([]models.LatLon, gridSize)
	b.Right = make([]models.LatLon, gridSize)
	b.GridDistancePct = make([]float64, gridSize)
	for i := 0; i < int(gridSize); i++ {
		var vals [5]float64
		if err := binary.Read(r, binary.LittleEndian, &vals); err != nil {
			return b, err
		}
		b.Left[i] = models.LatLon{Lat: vals[0], Lon: vals[1]}
		b.Right[i] = models.LatLon{Lat: vals[2], Lon: vals[3]}
		b.GridDistancePct[i] = vals[4]
	}
	return b, nil
}
