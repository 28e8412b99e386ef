package library

import "testing"

func Test_MatchesSearchTerm(t *testing.T) {
	tests := []struct {
		candidate string
		query     string
		want      bool
	}{
		{"The Beatles", "beat", true},
		{"The Beatles", "xyz", false},
		// consumption rule: "ba" takes "Bailey", leaving "Bill" for "b"
		{"Bill Bailey", "b ba", true},
		// "ba" takes "Barry", leaving only "Took" for "b"
		{"Barry Took", "b ba", false},
		{"The Beatles", "the beat", true},
		{"The Beatles", "beatles the", true},
		{"Café Tacvba", "cafe", true},
		{"Motörhead", "motor", true},
		{"Miles Davis", "MILES", true},
		{"Miles Davis", "davis miles", true},
		{"Miles Davis", "miles miles", false},
		{"", "a", false},
		{"Anything", "", true},
	}
	for _, tt := range tests {
		if got := MatchesSearchTerm(tt.candidate, tt.query); got != tt.want {
			t.Errorf("MatchesSearchTerm(%q, %q) = %v, want %v", tt.candidate, tt.query, got, tt.want)
		}
	}
}

func Test_QueryTokensLongestFirst(t *testing.T) {
	tokens := queryTokens("b ba bbb")
	if len(tokens) != 3 || tokens[0] != "bbb" || tokens[1] != "ba" || tokens[2] != "b" {
		t.Errorf("queryTokens order = %v", tokens)
	}
}
