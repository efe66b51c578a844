package parser

import (
	"strings"
)

// IsValidPriority checks if a priority value is valid
func IsValidPriority(priority string) bool {
	validPriorities := map[string]bool{
		"low":    true,
		"medium": true,
		"med":    true,
		"high":   true,
		"1":      true,
		"2":      true,
		"3":      true,
	}
	return validPriorities[strings.ToLower(strings.TrimSpace(priority))]
}

// NormalizePriority converts priority to standard form
func NormalizePriority(priority string) string {
	priority = strings.ToLower(strings.TrimSpace(priority))
	switch priority {
	case "1", "low":
		return "low"
	case "2", "medium", "med":
		return "medium"
	case "3", "high":
		return "high"
	default:
		return "medium"
	}
}

// PriorityToInt converts priority string to integer
func PriorityToInt(priority string) int {
	switch NormalizePriority(priority) {
	case "low":
		return 1
	case "high":
		return 3
	default:
		return 2
	}
}

// PriorityLabel converts a stored priority back to its name
func PriorityLabel(priority int) string {
	switch priority {
	case 1:
		return "low"
	case 3:
		return "high"
	default:
		return "medium"
	}
}
