package wg

import (
	"sort"
	"strconv"
	"strings"
)

// fuzzyCutoff is the minimum similarity for an OCR'd tank name to count
// as a match against the encyclopedia.
const fuzzyCutoff = 0.6

// VehicleLookup resolves noisy OCR text to a known vehicle. Built once
// from the encyclopedia; read-only afterwards.
type VehicleLookup struct {
	byName map[string]vehicleRef
	names  []string
}

type vehicleRef struct {
	id      int
	display string
}

// BuildVehicleLookup indexes both the short and full names of every
// vehicle, lowercased. The display name prefers the short form the
// garage screen actually renders.
func BuildVehicleLookup(vehicles map[string]VehicleInfo) *VehicleLookup {
	l := &VehicleLookup{byName: map[string]vehicleRef{}}
	for rawID, info := range vehicles {
		id, err := strconv.Atoi(rawID)
		if err != nil {
			continue
		}
		display := info.ShortName
		if display == "" {
			display = info.Name
		}
		short := strings.ToLower(info.ShortName)
		full := strings.ToLower(info.Name)
		if short != "" {
			l.byName[short] = vehicleRef{id: id, display: display}
		}
		if full != "" && full != short {
			l.byName[full] = vehicleRef{id: id, display: display}
		}
	}
	l.names = make([]string, 0, len(l.byName))
	for name := range l.byName {
		l.names = append(l.names, name)
	}
	sort.Strings(l.names)
	return l
}

// Len returns how many names are indexed.
func (l *VehicleLookup) Len() int { return len(l.byName) }

// Resolve maps OCR text to a vehicle: exact lowercase match first, then
// the closest name at or above the similarity cutoff. The sorted name
// order makes ties deterministic.
func (l *VehicleLookup) Resolve(text string) (int, string, bool) {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return 0, "", false
	}
	if ref, ok := l.byName[query]; ok {
		return ref.id, ref.display, true
	}

	bestScore := 0.0
	var best vehicleRef
	found := false
	for _, name := range l.names {
		score := similarity(query, name)
		if score >= fuzzyCutoff && score > bestScore {
			bestScore = score
			best = l.byName[name]
			found = true
		}
	}
	if !found {
		return 0, "", false
	}
	return best.id, best.display, true
}

// similarity is a normalized edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein is the rune-based edit distance, two-row variant.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	r1 := []rune(a)
	r2 := []rune(b)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}
	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			cur[j] = min(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(r2)]
}
