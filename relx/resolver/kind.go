package resolver

import (
	"strconv"
	"strings"
)

// DetermineKind classifies a field path. Indexed elements win over
// dictionary parts; otherwise the file id picks the default.
func DetermineKind(field string, fileID int32) EdgeKind {
	if hasBracketIndex(field) {
		return KindArrayElement
	}
	lower := strings.ToLower(field)
	if strings.Contains(lower, ".key") {
		return KindDictionaryKey
	}
	if strings.Contains(lower, ".value") {
		return KindDictionaryValue
	}
	switch {
	case fileID == 0:
		return KindInternal
	case fileID > 0:
		return KindExternal
	default:
		return KindPPtr
	}
}

// ExtractArrayIndex parses the last [n] segment of a field path.
func ExtractArrayIndex(field string) (int, bool) {
	open := strings.LastIndexByte(field, '[')
	if open < 0 {
		return 0, false
	}
	closing := strings.IndexByte(field[open:], ']')
	if closing < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(field[open+1 : open+closing])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func hasBracketIndex(field string) bool {
	for i := 0; i < len(field); i++ {
		if field[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(field) && field[j] >= '0' && field[j] <= '9' {
			j++
		}
		if j > i+1 && j < len(field) && field[j] == ']' {
			return true
		}
	}
	return false
}
