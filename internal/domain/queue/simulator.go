package queue

// DefaultVisitMinutes is assumed when an assessment carries no visit
// duration estimate.
const DefaultVisitMinutes = 20

// Visit is one queue entry as seen by the wait simulator.
type Visit struct {
	PID         string
	DurationMin int
	Lane        Lane
}

// EstimateWaits simulates dispatching the given visits, in queue order,
// across the given number of providers and returns each patient's
// simulated wait in minutes.
//
// Fast-lane entries get one of every three assignment opportunities
// reserved for them, decided by whether any fast-lane entry was present
// at the start of the run. Each assignment goes to the least-loaded
// provider (first index on ties). The result always covers every input
// and every wait is non-negative. Deterministic for a given input.
func EstimateWaits(visits []Visit, providers int) map[string]int {
	if len(visits) == 0 {
		return map[string]int{}
	}
	if providers < 1 {
		providers = 1
	}
	slots := make([]int, providers)
	wait := make(map[string]int, len(visits))

	var fast, other []Visit
	for _, v := range visits {
		if v.Lane == LaneFast {
			fast = append(fast, v)
		} else {
			other = append(other, v)
		}
	}

	hasFast := len(fast) > 0
	for i := 0; len(fast) > 0 || len(other) > 0; i++ {
		var v Visit
		reserveFast := hasFast && i%3 == 0
		switch {
		case reserveFast && len(fast) > 0:
			v, fast = fast[0], fast[1:]
		case len(other) > 0:
			v, other = other[0], other[1:]
		default:
			v, fast = fast[0], fast[1:]
		}

		idx := 0
		for j := 1; j < len(slots); j++ {
			if slots[j] < slots[idx] {
				idx = j
			}
		}
		wait[v.PID] = slots[idx]
		dur := v.DurationMin
		if dur <= 0 {
			dur = DefaultVisitMinutes
		}
		slots[idx] += dur
	}
	return wait
}
