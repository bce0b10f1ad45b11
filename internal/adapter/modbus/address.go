// Package modbus provides a Modbus TCP protocol reader with per-device
// circuit breaking and register address parsing.
package modbus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edge-foundry/collector/internal/domain"
)

// RegisterKind identifies the Modbus register table an address targets.
type RegisterKind string

const (
	RegisterHolding       RegisterKind = "hr"
	RegisterInput         RegisterKind = "ir"
	RegisterCoil          RegisterKind = "co"
	RegisterDiscreteInput RegisterKind = "di"
)

// addressPattern matches addresses of the form "<kind>_<offset>", e.g.
// "hr_100" or "co_3". Matching is case-insensitive; offsets are decimal.
var addressPattern = regexp.MustCompile(`^(hr|ir|co|di)_([0-9]+)$`)

// ParseAddress splits a symbolic register address into its register kind
// and numeric offset. The parser enforces no upper bound on the offset;
// callers reject offsets outside the 16-bit register space.
func ParseAddress(address string) (RegisterKind, uint64, error) {
	m := addressPattern.FindStringSubmatch(strings.ToLower(address))
	if m == nil {
		return "", 0, fmt.Errorf("%w: %q", domain.ErrInvalidAddressFormat, address)
	}

	offset, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", domain.ErrInvalidAddressFormat, address)
	}

	return RegisterKind(m[1]), offset, nil
}

// IsBitKind reports whether the register kind holds single-bit values.
func (k RegisterKind) IsBitKind() bool {
	return k == RegisterCoil || k == RegisterDiscreteInput
}
