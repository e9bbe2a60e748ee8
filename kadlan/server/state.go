package server

import (
	"io"
	"net"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/wire"
)

// SaveState writes a snapshot of the routing table to w, in the shape
// spec.md §6 describes: {ksize, alpha, id, neighbors:[(ip,port)]}.
// It mirrors original_source/kademLAN/network.py's saveState, which
// pickles the same fields; here the self-describing wire codec stands
// in for pickle.
func (s *Server) SaveState(w io.Writer) error {
	neighbors := s.BootstrappableNeighbors()
	neighborTuples := make([]wire.Value, 0, len(neighbors))
	for _, addr := range neighbors {
		neighborTuples = append(neighborTuples, []wire.Value{addr.IP.String(), int64(addr.Port)})
	}

	snapshot := []wire.Value{
		int64(s.cfg.K),
		int64(s.cfg.Alpha),
		s.cfg.NodeID[:],
		neighborTuples,
	}

	buf := wire.Encode(nil, snapshot)
	_, err := w.Write(buf)
	return err
}

// LoadState reads a snapshot written by SaveState and constructs a
// Server around it: ksize/alpha/id are restored verbatim, and the
// saved neighbors are returned so the caller can Bootstrap against
// them (mirroring network.py's loadState, which immediately schedules
// a bootstrap call against the restored neighbor list).
func LoadState(r io.Reader, base Config) (*Server, []*net.UDPAddr, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	v, _, err := wire.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	fields, ok := wire.Tuple(v)
	if !ok || len(fields) != 4 {
		return nil, nil, kadlan.ErrMalformedMessage
	}

	k, ok1 := wire.Int64(fields[0])
	alpha, ok2 := wire.Int64(fields[1])
	idBytes, ok3 := wire.Bytes(fields[2])
	neighborTuples, ok4 := wire.Tuple(fields[3])
	if !ok1 || !ok2 || !ok3 || !ok4 || len(idBytes) != kadlan.IDLength {
		return nil, nil, kadlan.ErrMalformedMessage
	}

	var id kadlan.NodeID
	copy(id[:], idBytes)

	cfg := base
	cfg.K = int(k)
	cfg.Alpha = int(alpha)
	cfg.NodeID = id

	var neighbors []*net.UDPAddr
	for _, nt := range neighborTuples {
		tup, ok := wire.Tuple(nt)
		if !ok || len(tup) != 2 {
			continue
		}
		ipStr, ok1 := wire.Str(tup[0])
		port, ok2 := wire.Int64(tup[1])
		if !ok1 || !ok2 {
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		neighbors = append(neighbors, &net.UDPAddr{IP: ip, Port: int(port)})
	}

	srv, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return srv, neighbors, nil
}
