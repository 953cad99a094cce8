// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is blank or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Limit parses a page-size style parameter. Missing, malformed or
// non-positive values yield def; anything above max is capped to max.
//
//	utils.Limit("", 50, 50)    // 50
//	utils.Limit("0", 50, 50)   // 50
//	utils.Limit("500", 0, 100) // 100
func Limit(s string, def, max int) int {
	n := AtoiDefault(s, def)
	if n < 1 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
