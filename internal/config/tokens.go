package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// TokenList is the on-disk list of tokens offered for staking
type TokenList struct {
	Tokens []entities.Token `toml:"token"`
}

// LoadTokenList reads and validates a TOML token list
func LoadTokenList(path string) ([]entities.Token, error) {
	var list TokenList
	if _, err := toml.DecodeFile(path, &list); err != nil {
		return nil, fmt.Errorf("failed to decode token list %s: %w", path, err)
	}
	return validateTokens(list.Tokens)
}

// ParseTokenList decodes a TOML token list held in memory
func ParseTokenList(data string) ([]entities.Token, error) {
	var list TokenList
	if _, err := toml.Decode(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}
	return validateTokens(list.Tokens)
}

func validateTokens(tokens []entities.Token) ([]entities.Token, error) {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]entities.Token, 0, len(tokens))

	for i, t := range tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %d (%s): invalid address %q", i, t.Symbol, t.Address)
		}
		if strings.TrimSpace(t.Symbol) == "" {
			return nil, fmt.Errorf("token %d (%s): missing symbol", i, t.Address)
		}
		t.Address = common.HexToAddress(t.Address).Hex()
		if _, dup := seen[t.Key()]; dup {
			return nil, fmt.Errorf("token %d (%s): duplicate address", i, t.Address)
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
