package netmap

import "sort"

// Person is one entry on a participant's social network map: someone they
// discussed student-centered collaboration with during their studies. The map
// editor owns these records; the interview pipeline only reads them.
type Person struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Function        string `json:"function"`
	LearningOutcome string `json:"learningOutcome,omitempty"`
	Setting         string `json:"setting,omitempty"`
	Significance    int    `json:"significance"`
}

const (
	SignificanceNone = 1 + iota
	SignificanceLow
	SignificanceModerate
	SignificanceVery
)

var significanceLabels = map[int]string{
	SignificanceNone:     "none",
	SignificanceLow:      "low",
	SignificanceModerate: "moderate",
	SignificanceVery:     "very",
}

// SignificanceLabel renders the 1..4 ordinal as the label the interviewer
// prompt uses. Out-of-range values fall back to "unknown".
func SignificanceLabel(significance int) string {
	if label, ok := significanceLabels[significance]; ok {
		return label
	}
	return "unknown"
}

// SortedBySignificance returns a copy sorted by descending significance, so
// the interviewer starts with the contact the participant rated highest. The
// input slice is not modified.
func SortedBySignificance(people []Person) []Person {
	out := append([]Person(nil), people...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Significance > out[j].Significance
	})
	return out
}
