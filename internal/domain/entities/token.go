package entities

import (
	"strings"
)

// Token represents an ERC-20 token the lending contract accepts
type Token struct {
	Address  string `db:"address" json:"address" toml:"address"`
	Name     string `db:"name" json:"name,omitempty" toml:"name"`
	Symbol   string `db:"symbol" json:"symbol" toml:"symbol"`
	Decimals uint8  `db:"decimals" json:"decimals" toml:"decimals"`
	ImgSrc   string `db:"img_src" json:"imgsrc,omitempty" toml:"imgsrc"`
}

// Key returns the identity of the token (lowercased address).
// Symbols are display-only and may collide.
func (t *Token) Key() string {
	if t == nil {
		return ""
	}
	return strings.ToLower(t.Address)
}

// HasAddress reports whether the token can be used in contract calls
func (t *Token) HasAddress() bool {
	return t != nil && t.Address != ""
}

// SameToken compares two tokens by address, case-insensitively
func SameToken(a, b *Token) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Address, b.Address)
}
