package handler

import (
	"regexp"
	"strconv"
	"strings"
)

var trailingCount = regexp.MustCompile(`^(.+?) (\d+)$`)

// normalizeArgs collapses runs of whitespace.
func normalizeArgs(args string) string {
	return strings.Join(strings.Fields(args), " ")
}

// ParseAddArgs splits "/add" arguments into a module name and count.
// A trailing integer is the count; it defaults to 1. countOK is false when
// the trailing integer does not fit an int.
func ParseAddArgs(args string) (name string, count int, countOK bool) {
	args = normalizeArgs(args)
	m := trailingCount.FindStringSubmatch(args)
	if m == nil {
		return args, 1, true
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return m[1], 0, false
	}
	return m[1], n, true
}

// ParseUserID parses the first argument as a Telegram user id.
func ParseUserID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
