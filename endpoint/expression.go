package endpoint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Kronos-Integration/service-sub000/errors"
)

var (
	serviceExpression = regexp.MustCompile(`^service\(([^()]+)\)\.([^\[\]()]+)(?:\[([^\]]*)\])?$`)
	siblingExpression = regexp.MustCompile(`^([^\[\]()]+)(?:\[([^\]]*)\])?$`)
)

// Expression is a parsed connection target.
//
//	service(<name>).<endpoint>[<tag>]   endpoint of another service
//	<endpoint>[<tag>]                   endpoint of the same owner
//
// The tag is kept for display but never used for resolution.
type Expression struct {
	Service  string
	Endpoint string
	Tag      string
}

// ParseExpression parses a target expression
func ParseExpression(expr string) (Expression, error) {
	expr = strings.TrimSpace(expr)

	if m := serviceExpression.FindStringSubmatch(expr); m != nil {
		return Expression{
			Service:  strings.TrimSpace(m[1]),
			Endpoint: strings.TrimSpace(m[2]),
			Tag:      m[3],
		}, nil
	}

	if !strings.HasPrefix(expr, "service(") {
		if m := siblingExpression.FindStringSubmatch(expr); m != nil {
			return Expression{
				Endpoint: strings.TrimSpace(m[1]),
				Tag:      m[2],
			}, nil
		}
	}

	return Expression{}, errors.WrapInvalid(
		fmt.Errorf("%w: %q", errors.ErrInvalidTarget, expr),
		"Expression", "Parse", "target expression parsing")
}

// IsSibling reports whether the target lives on the same owner
func (e Expression) IsSibling() bool {
	return e.Service == ""
}

// String renders the expression in canonical form
func (e Expression) String() string {
	var b strings.Builder
	if e.Service != "" {
		b.WriteString("service(")
		b.WriteString(e.Service)
		b.WriteString(").")
	}
	b.WriteString(e.Endpoint)
	if e.Tag != "" {
		b.WriteString("[")
		b.WriteString(e.Tag)
		b.WriteString("]")
	}
	return b.String()
}
