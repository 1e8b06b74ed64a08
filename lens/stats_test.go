package lens

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()

	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordPacket(&Packet{Kind: PacketDump, PID: 1, Text: "abc"})
		}()
	}
	wg.Wait()
	s.RecordPacket(&Packet{Kind: PacketError, PID: 2, Text: "x"})
	s.RecordPacket(&Packet{Kind: PacketError, PID: 3})
	s.RecordPacket(&Packet{Kind: PacketError, PID: 3})
	s.RecordConnection()
	s.RecordDecodeError()

	snap := s.Snapshot()
	assert.Equal(t, uint64(13), snap.TotalPackets())
	assert.Equal(t, map[string]uint64{"dump": 10, "error": 3}, snap.Packets)
	assert.Equal(t, map[string]uint64{"dump": 30, "error": 1}, snap.Bytes)
	assert.Equal(t, []int{1, 3, 2}, snap.ProcessIDs())
	assert.Equal(t, uint64(1), snap.Connections)
	assert.Equal(t, uint64(1), snap.DecodeErrors)
	assert.False(t, snap.LastPacket.Before(snap.Started))

	// snapshots are copies
	snap.Processes[1] = 0
	assert.Equal(t, uint64(10), s.Snapshot().Processes[1])
}

func TestStatsSnapshotFile(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.RecordPacket(&Packet{Kind: PacketTable, PID: 5, Text: "| a |"})
	snap := s.Snapshot()

	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, snap.WriteToFile(path))
	loaded, err := LoadStatsSnapshot(path)
	require.NoError(t, err)

	assert.True(t, snap.Started.Equal(loaded.Started))
	assert.Equal(t, snap.Packets, loaded.Packets)
	assert.Equal(t, snap.Bytes, loaded.Bytes)
	assert.Equal(t, snap.Processes, loaded.Processes)
	assert.Equal(t, snap.DurationMs, loaded.DurationMs)

	assert.NoError(t, StatsSnapshot{}.WriteToFile(""))
	_, err = LoadStatsSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
