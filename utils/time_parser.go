package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var longUnits = regexp.MustCompile(`^(\d+)([dw])(.*)$`)

// ParseDuration extends time.ParseDuration with days (d) and weeks (w), e.g. "7d" or "1d12h".
func ParseDuration(s string) (time.Duration, error) {
	m := longUnits.FindStringSubmatch(s)
	if m == nil {
		return time.ParseDuration(s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", m[2], m[1])
	}
	unit := 24 * time.Hour
	if m[2] == "w" {
		unit *= 7
	}
	d := time.Duration(n) * unit
	if m[3] == "" {
		return d, nil
	}
	rest, err := time.ParseDuration(m[3])
	if err != nil {
		return 0, err
	}
	return d + rest, nil
}
