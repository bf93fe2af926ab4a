package commands

import (
	"strconv"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleMint implements `mint <agent> <n>` (spec.md §4.D Economy):
// integer n > 0; minted_total advances only on mint.
func handleMint(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("mint requires <agent> <n>")
	}
	agent := args[0]
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return rejected("mint requires a positive integer amount")
	}
	if doc.World.Economy.Ledger == nil {
		doc.World.Economy.Ledger = map[string]int{}
	}
	doc.World.Economy.Ledger[agent] += n
	if doc.World.Economy.MintedTotal == nil {
		zero := 0
		doc.World.Economy.MintedTotal = &zero
	}
	*doc.World.Economy.MintedTotal += n
	return Result{Applied: true, OutputLines: []string{"minted " + args[1] + " to " + agent}}, nil
}

// handleTransfer implements `transfer <src> <dst> <n>` (spec.md §4.D
// Economy): transfer requires src balance >= n.
func handleTransfer(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 3 {
		return rejected("transfer requires <src> <dst> <n>")
	}
	src, dst := args[0], args[1]
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 {
		return rejected("transfer requires a positive integer amount")
	}
	if doc.World.Economy.Ledger[src] < n {
		return rejected(src + " has insufficient balance")
	}
	doc.World.Economy.Ledger[src] -= n
	doc.World.Economy.Ledger[dst] += n
	return Result{Applied: true, OutputLines: []string{"transferred " + args[2] + " from " + src + " to " + dst}}, nil
}
