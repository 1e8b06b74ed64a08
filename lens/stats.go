package lens

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
	"time"
)

// Stats counts what the collector received during a session. Updates go through its methods, it is safe
// for concurrent use by the connection handlers.
type Stats struct {
	mu           sync.Mutex
	started      time.Time
	last         time.Time
	connections  uint64
	decodeErrors uint64
	packets      map[PacketKind]uint64
	bytes        map[PacketKind]uint64
	processes    map[int]uint64
}

func NewStats() *Stats {
	return &Stats{
		started:   time.Now(),
		packets:   make(map[PacketKind]uint64),
		bytes:     make(map[PacketKind]uint64),
		processes: make(map[int]uint64),
	}
}

// RecordPacket counts a received packet and the size of its rendered text.
func (s *Stats) RecordPacket(p *Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packets[p.Kind]++
	s.bytes[p.Kind] += uint64(len(p.Text))
	s.processes[p.PID]++
	s.last = time.Now()
}

func (s *Stats) RecordConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections++
}

// RecordDecodeError counts a frame or connection that could not be decoded.
func (s *Stats) RecordDecodeError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decodeErrors++
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Started:      s.started,
		LastPacket:   s.last,
		DurationMs:   time.Since(s.started).Milliseconds(),
		Connections:  s.connections,
		DecodeErrors: s.decodeErrors,
		Packets:      make(map[string]uint64, len(s.packets)),
		Bytes:        make(map[string]uint64, len(s.bytes)),
		Processes:    maps.Clone(s.processes),
	}
	for k, v := range s.packets {
		snap.Packets[k.String()] = v
	}
	for k, v := range s.bytes {
		snap.Bytes[k.String()] = v
	}
	return snap
}

// StatsSnapshot is the serializable form of Stats.
type StatsSnapshot struct {
	Started      time.Time         `json:"started"`
	LastPacket   time.Time         `json:"last_packet"`
	DurationMs   int64             `json:"duration_ms"`
	Connections  uint64            `json:"connections"`
	DecodeErrors uint64            `json:"decode_errors"`
	Packets      map[string]uint64 `json:"packets"` // by kind name
	Bytes        map[string]uint64 `json:"bytes"`   // rendered text bytes by kind name
	Processes    map[int]uint64    `json:"processes"`
}

// TotalPackets sums the packets of every kind.
func (s StatsSnapshot) TotalPackets() uint64 {
	var total uint64
	for _, v := range s.Packets {
		total += v
	}
	return total
}

// ProcessIDs returns the reporting process ids, ordered by packet count, highest first.
func (s StatsSnapshot) ProcessIDs() []int {
	pids := slices.Collect(maps.Keys(s.Processes))
	slices.SortFunc(pids, func(a, b int) int {
		if s.Processes[a] != s.Processes[b] {
			if s.Processes[a] > s.Processes[b] {
				return -1
			}
			return 1
		}
		return a - b
	})
	return pids
}

// WriteToFile writes the snapshot as JSON, an empty path is ignored.
func (s StatsSnapshot) WriteToFile(path string) error {
	if path == "" {
		return nil
	}

	encoded, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats failed: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("write stats file failed: %w", err)
	}
	return nil
}

// LoadStatsSnapshot reads a snapshot written by WriteToFile.
func LoadStatsSnapshot(path string) (StatsSnapshot, error) {
	var s StatsSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read stats file failed: %w", err)
	} else if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("unmarshal stats failed: %w", err)
	}
	return s, nil
}
