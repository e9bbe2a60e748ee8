package kadlan

import (
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// DumpTable renders a human-readable bucket-occupancy table (range,
// size, age since last update), for operator diagnostics. It fills
// the same role the teacher's glog.Infof bucket-state lines play in
// go-ethereum's table.go, just structured as a table.
func (t *RoutingTable) DumpTable() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	w := tablewriter.NewWriter(&sb)
	w.SetHeader([]string{"#", "low", "high", "size", "pending", "age"})
	for i, b := range t.buckets {
		pending := "-"
		if b.pending != nil {
			pending = b.pending.ID.String()[:8]
		}
		w.Append([]string{
			strconv.Itoa(i),
			bigToID(b.lo).String()[:8],
			bigToID(b.hi).String()[:8],
			strconv.Itoa(len(b.contacts)),
			pending,
			time.Since(b.lastUpdated).Round(time.Second).String(),
		})
	}
	w.Render()
	return sb.String()
}
