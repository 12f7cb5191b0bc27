package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// SwapCommand is a user's exchange command before it is resolved against the pair
type SwapCommand struct {
	Amount      string
	SourceToken string
	DestToken   string
}

var commandPattern = regexp.MustCompile(`^(\S+)\s+([A-Z0-9]+)(?:\s+(?:TO|FOR)\s+([A-Z0-9]+))?$`)

// ParseSwapCommand parses a swap command
// Examples:
//   - "swap 100 USDC to BLTM"
//   - "100 USDC"
//   - "redeem 2.5 BLTM for USDC"
//
// The amount is captured verbatim; ParseAmount validates it against the token.
func ParseSwapCommand(command string) (*SwapCommand, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SWAP ")
	command = strings.TrimPrefix(command, "REDEEM ")

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: '<amount> <token> [to <token>]' (e.g., '100 USDC to BLTM')")
	}

	return &SwapCommand{
		Amount:      matches[1],
		SourceToken: matches[2],
		DestToken:   matches[3],
	}, nil
}
