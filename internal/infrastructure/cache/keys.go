package cache

import (
	"fmt"
	"strings"
)

// Read parts cached per (wallet, token)
const (
	PartPosition  = "position"
	PartPool      = "pool"
	PartAllowance = "allowance"
	PartBalance   = "balance"
)

// ReadKey is the cache key of one chain read for a wallet and token
func ReadKey(wallet, token, part string) string {
	return fmt.Sprintf("reads:%s:%s:%s", strings.ToLower(wallet), strings.ToLower(token), part)
}

// ReadPattern matches every cached read of a wallet and token
func ReadPattern(wallet, token string) string {
	return fmt.Sprintf("reads:%s:%s:*", strings.ToLower(wallet), strings.ToLower(token))
}

// TokenKey is the cache key of resolved token metadata
func TokenKey(address string) string {
	return "tokens:" + strings.ToLower(address)
}

// SelectionKey is the key of a wallet's selected token
func SelectionKey(wallet string) string {
	return "selection:" + strings.ToLower(wallet)
}
