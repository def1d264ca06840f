package protocol

import (
	"strconv"

	"github.com/JoeHolownia/depotnet/internal/textcodec"
)

// validateConnect parses "Connect:<port>", requiring the exact prefix,
// exactly one delimiter and a numeric port.
func validateConnect(line string) (port string, ok bool) {
	if !textcodec.HasPrefix(line, "Connect:") {
		return "", false
	}
	if textcodec.CountDelim(line, ':') != 1 {
		return "", false
	}
	fields := textcodec.SplitOn(line, ':', 1)
	port = fields[1]
	if !textcodec.IsNonNegInteger(port) {
		return "", false
	}
	return port, true
}

// validateIM parses "IM:<port>:<name>", requiring the exact prefix,
// exactly two delimiters, a numeric port and a valid name.
func validateIM(line string) (port, name string, ok bool) {
	if !textcodec.HasPrefix(line, "IM:") {
		return "", "", false
	}
	if textcodec.CountDelim(line, ':') != 2 {
		return "", "", false
	}
	fields := textcodec.SplitOn(line, ':', 2)
	port, name = fields[1], fields[2]
	if !textcodec.IsNonNegInteger(port) {
		return "", "", false
	}
	if !textcodec.ValidName(name) {
		return "", "", false
	}
	return port, name, true
}

// validateDeliverWithdraw parses "<prefix><qty>:<type>", requiring the
// exact prefix, exactly two delimiters, a strictly positive quantity
// and a valid resource-type name.
func validateDeliverWithdraw(line, prefix string) (qty int, resourceType string, ok bool) {
	if !textcodec.HasPrefix(line, prefix) {
		return 0, "", false
	}
	if textcodec.CountDelim(line, ':') != 2 {
		return 0, "", false
	}
	fields := textcodec.SplitOn(line, ':', 2)
	qtyStr, resourceType := fields[1], fields[2]
	if !textcodec.IsNonNegInteger(qtyStr) {
		return 0, "", false
	}
	n, err := strconv.Atoi(qtyStr)
	if err != nil || n <= 0 {
		return 0, "", false
	}
	if !textcodec.ValidName(resourceType) {
		return 0, "", false
	}
	return n, resourceType, true
}

// validateTransfer parses "Transfer:<qty>:<type>:<dest>", requiring
// the exact prefix, exactly three delimiters, a strictly positive
// quantity and valid type/dest names.
func validateTransfer(line string) (qty int, resourceType, dest string, ok bool) {
	if !textcodec.HasPrefix(line, "Transfer:") {
		return 0, "", "", false
	}
	if textcodec.CountDelim(line, ':') != 3 {
		return 0, "", "", false
	}
	fields := textcodec.SplitOn(line, ':', 3)
	qtyStr, resourceType, dest := fields[1], fields[2], fields[3]
	if !textcodec.IsNonNegInteger(qtyStr) {
		return 0, "", "", false
	}
	n, err := strconv.Atoi(qtyStr)
	if err != nil || n <= 0 {
		return 0, "", "", false
	}
	if !textcodec.ValidName(resourceType) || !textcodec.ValidName(dest) {
		return 0, "", "", false
	}
	return n, resourceType, dest, true
}

// validateDefer parses "Defer:<key>:<nested-op>". Only the wrapper's
// own key field is validated here; the nested operation is forwarded
// unparsed and is validated only when the deferral eventually fires
// (spec section 4.4).
func validateDefer(line string) (key int, operation string, ok bool) {
	if !textcodec.HasPrefix(line, "Defer:") {
		return 0, "", false
	}
	fields := textcodec.SplitOn(line, ':', 2)
	keyStr, nested := fields[1], fields[2]
	if !textcodec.IsNonNegInteger(keyStr) {
		return 0, "", false
	}
	n, err := strconv.Atoi(keyStr)
	if err != nil {
		return 0, "", false
	}
	return n, nested, true
}

// validateExecute parses "Execute:<key>", requiring the exact prefix,
// exactly one delimiter and a non-negative integer key.
func validateExecute(line string) (key int, ok bool) {
	if !textcodec.HasPrefix(line, "Execute:") {
		return 0, false
	}
	if textcodec.CountDelim(line, ':') != 1 {
		return 0, false
	}
	fields := textcodec.SplitOn(line, ':', 1)
	keyStr := fields[1]
	if !textcodec.IsNonNegInteger(keyStr) {
		return 0, false
	}
	n, err := strconv.Atoi(keyStr)
	if err != nil {
		return 0, false
	}
	return n, true
}
