// Package depotcli parses the command line into a startup
// configuration, per spec section 6: a depot name followed by zero or
// more (good, quantity) pairs, with fixed exit codes and fixed stderr
// text on failure.
package depotcli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JoeHolownia/depotnet/internal/textcodec"
)

// Exit codes, per spec section 6.
const (
	ExitOK              = 0
	ExitUsage           = 1
	ExitInvalidName     = 2
	ExitInvalidQuantity = 3
)

// ResourceSeed is one (good, quantity) pair supplied on the command
// line.
type ResourceSeed struct {
	Name     string
	Quantity int
}

// StartupConfig is the depot's fully parsed startup configuration.
type StartupConfig struct {
	Name      string
	Resources []ResourceSeed
}

// ParseError carries the fixed exit code and stderr message a
// command-line failure maps to.
type ParseError struct {
	Code    int
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// Parse validates args (ordinarily os.Args[1:]) and builds a
// StartupConfig, or returns a ParseError carrying the exact exit code
// and message spec section 6 requires.
func Parse(args []string) (StartupConfig, error) {
	if len(args) == 0 || args[0] == "" {
		return StartupConfig{}, &ParseError{Code: ExitUsage, Message: "Usage: depot name {goods qty}"}
	}

	name := args[0]
	if !textcodec.ValidName(name) {
		return StartupConfig{}, &ParseError{Code: ExitInvalidName, Message: "Invalid name(s)"}
	}

	rest := args[1:]
	if len(rest)%2 != 0 {
		return StartupConfig{}, &ParseError{Code: ExitInvalidQuantity, Message: "Invalid quantity"}
	}

	var resources []ResourceSeed
	for i := 0; i < len(rest); i += 2 {
		good, qtyStr := rest[i], rest[i+1]
		if !textcodec.ValidName(good) {
			return StartupConfig{}, &ParseError{Code: ExitInvalidName, Message: "Invalid name(s)"}
		}
		if !textcodec.IsNonNegInteger(qtyStr) {
			return StartupConfig{}, &ParseError{Code: ExitInvalidQuantity, Message: "Invalid quantity"}
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil {
			return StartupConfig{}, &ParseError{Code: ExitInvalidQuantity, Message: "Invalid quantity"}
		}
		resources = append(resources, ResourceSeed{Name: good, Quantity: qty})
	}

	return StartupConfig{Name: name, Resources: resources}, nil
}

// ParseOrExit is the convenience entry point main uses: on failure it
// writes the fixed message to stderr and exits with the fixed code.
func ParseOrExit(args []string) StartupConfig {
	cfg, err := Parse(args)
	if err != nil {
		pe := err.(*ParseError)
		fmt.Fprintln(os.Stderr, pe.Message)
		os.Exit(pe.Code)
	}
	return cfg
}
