package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/require"
)

func TestBeaconRoundTrip(t *testing.T) {
	id := uuid.NewRandom()
	frame := encodeBeacon(id, 9000)

	gotID, gotPort, err := decodeBeacon(frame)
	require.NoError(t, err)
	require.Equal(t, id.String(), gotID.String())
	require.Equal(t, uint16(9000), gotPort)
}

func TestDecodeBeaconRejectsWrongMagic(t *testing.T) {
	frame := encodeBeacon(uuid.NewRandom(), 1)
	frame[0] = 'X'
	_, _, err := decodeBeacon(frame)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestDecodeBeaconRejectsWrongVersion(t *testing.T) {
	frame := encodeBeacon(uuid.NewRandom(), 1)
	frame[3] = 9
	_, _, err := decodeBeacon(frame)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestDecodeBeaconRejectsWrongLength(t *testing.T) {
	_, _, err := decodeBeacon([]byte{'Z', 'R', 'E'})
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestHandleFrameJoinAndLeave(t *testing.T) {
	d := New(uuid.NewRandom(), 4000)

	var joined, left []string
	d.OnJoin(func(p Peer) { joined = append(joined, p.ID.String()) })
	d.OnLeave(func(id uuid.UUID) { left = append(left, id.String()) })

	peerID := uuid.NewRandom()
	from := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50)}
	d.handleFrame(from, encodeBeacon(peerID, 7000))

	peers := d.GetPeers()
	require.Len(t, peers, 1)
	require.Equal(t, peerID.String(), peers[0].ID.String())
	require.Equal(t, 7000, peers[0].Addr.Port)
	require.Len(t, joined, 1)

	d.handleFrame(from, encodeBeacon(peerID, 0))
	require.Empty(t, d.GetPeers())
	require.Len(t, left, 1)
}

func TestHandleFrameIgnoresSelf(t *testing.T) {
	self := uuid.NewRandom()
	d := New(self, 4000)
	from := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50)}
	d.handleFrame(from, encodeBeacon(self, 5000))
	require.Empty(t, d.GetPeers())
}

func TestReapStaleRemovesOldPeers(t *testing.T) {
	d := New(uuid.NewRandom(), 4000)
	var left []string
	d.OnLeave(func(id uuid.UUID) { left = append(left, id.String()) })

	peerID := uuid.NewRandom()
	d.peers[peerID.String()] = &Peer{ID: peerID, Addr: &net.UDPAddr{}, LastSeen: time.Now().Add(-time.Hour)}

	d.ReapStale(time.Minute)
	require.Empty(t, d.GetPeers())
	require.Len(t, left, 1)
}
