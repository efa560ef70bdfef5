package risk

import "sort"

// tieEpsilon is the score distance under which two contributions count as equal.
const tieEpsilon = 0.01

// SelectDriver returns the factor most responsible for the assessment, or
// false when nothing stands out enough to be the story.
func (s *Scorer) SelectDriver(a Assessment) (Factor, bool) {
	return SelectDriver(s.table, a)
}

// SelectDriver ranks contributions against the table's relevance floor.
func SelectDriver(t Table, a Assessment) (Factor, bool) {
	if len(a.Contributions) == 0 {
		return "", false
	}

	// Only factors over their own relevance floor can drive the story.
	ranked := make([]Factor, 0, len(a.Contributions))
	for f, points := range a.Contributions {
		th, ok := t.Factor(f)
		if ok && points > th.Cap*t.DriverFloor {
			ranked = append(ranked, f)
		}
	}
	if len(ranked) == 0 {
		return "", false
	}
	sort.Slice(ranked, func(i, j int) bool {
		return a.Contributions[ranked[i]] > a.Contributions[ranked[j]]
	})

	top := a.Contributions[ranked[0]]
	tied := ranked[:0:0]
	for _, f := range ranked {
		if top-a.Contributions[f] <= tieEpsilon {
			tied = append(tied, f)
		}
	}
	sort.SliceStable(tied, func(i, j int) bool {
		si, sj := a.HasSynergyWith(tied[i]), a.HasSynergyWith(tied[j])
		if si != sj {
			return si
		}
		return priority(tied[i]) < priority(tied[j])
	})
	return tied[0], true
}

func priority(f Factor) int {
	for i, candidate := range Factors {
		if candidate == f {
			return i
		}
	}
	return len(Factors)
}
