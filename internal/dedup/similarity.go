package dedup

import "strings"

// levenshteinSimilarity returns a 0..1 similarity score derived from edit
// distance: 1.0 for identical strings, decaying toward 0 as the distance
// approaches the longer string's length. Used for fuzzy title and author
// comparison where blocking keys alone are too strict (a single typo or
// subtitle variance must not prevent a match).
func levenshteinSimilarity(a, b string) float64 {
	dist := levenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshteinDistance computes the classic edit distance with a
// two-row dynamic program.
func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// soundex encodes str per the standard American Soundex algorithm. The
// match predicate does not call it; author comparison uses the
// surname-plus-initial rule and scaled Levenshtein only.
func soundex(str string) string {
	if len(str) == 0 {
		return ""
	}
	str = strings.ToUpper(str)

	result := string(str[0])
	prevCode := soundexCode(rune(str[0]))

	for i := 1; i < len(str) && len(result) < 4; i++ {
		code := soundexCode(rune(str[i]))
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}
	for len(result) < 4 {
		result += "0"
	}
	return result
}

func soundexCode(r rune) string {
	switch r {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}
