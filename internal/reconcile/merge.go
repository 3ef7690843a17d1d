package reconcile

import (
	"sort"

	"github.com/kdimtricp/civiclens/internal/models"
)

// SortEvents returns events ordered by start time. Events with equal start
// times keep their fetch order. The input is not modified.
func SortEvents(events []models.Event) []models.Event {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})
	return sorted
}

// IndexTrace maps packet ids to trace entries. When an id repeats, the
// entry later in the list wins.
func IndexTrace(packets []models.Packet) map[string]models.Packet {
	byID := make(map[string]models.Packet, len(packets))
	for _, p := range packets {
		byID[p.PacketID] = p
	}
	return byID
}

// RankPackets orders packets by local score, highest first. Unscored
// packets come after every scored packet, negative scores included. Ties
// keep fetch order.
func RankPackets(packets []models.Packet) []models.Packet {
	ranked := make([]models.Packet, len(packets))
	copy(ranked, packets)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Scored() != b.Scored() {
			return a.Scored()
		}
		return a.Score() > b.Score()
	})
	return ranked
}

// CountUncertain returns how many events are flagged uncertain.
func CountUncertain(events []models.Event) int {
	n := 0
	for _, e := range events {
		if e.Uncertain {
			n++
		}
	}
	return n
}
