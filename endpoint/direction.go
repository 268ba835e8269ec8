package endpoint

import (
	"fmt"
	"strings"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// Direction of traffic through an endpoint
type Direction string

// Direction constants
const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// ParseDirection accepts in, out, inout and both. An empty string means in.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "in":
		return DirectionIn, nil
	case "out":
		return DirectionOut, nil
	case "inout", "both":
		return DirectionBoth, nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: direction %q", errors.ErrInvalidConfig, s),
			"Endpoint", "ParseDirection", "direction parsing")
	}
}

// Receives reports whether traffic may arrive through the endpoint
func (d Direction) Receives() bool {
	return d == DirectionIn || d == DirectionBoth
}

// Sends reports whether the endpoint forwards traffic to its connections
func (d Direction) Sends() bool {
	return d == DirectionOut || d == DirectionBoth
}

// String returns the direction name
func (d Direction) String() string {
	return string(d)
}
