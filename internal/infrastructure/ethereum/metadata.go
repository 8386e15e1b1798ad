/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
)

const (
	fallbackName     = "Unknown"
	fallbackSymbol   = "UNK"
	fallbackDecimals = 18
	metadataWorkers  = 4
)

// Ensure MetadataFetcher implements repositories.TokenMetadataFetcher
var _ repositories.TokenMetadataFetcher = (*MetadataFetcher)(nil)

// MetadataFetcher resolves ERC-20 metadata via eth_call
type MetadataFetcher struct {
	caller ContractCaller
	logger *zap.Logger
}

// NewMetadataFetcher creates a new metadata fetcher
func NewMetadataFetcher(caller ContractCaller, logger *zap.Logger) *MetadataFetcher {
	return &MetadataFetcher{
		caller: caller,
		logger: logger,
	}
}

// FetchTokenMetadata reads name, symbol and decimals. Fields that fail to
// resolve fall back to placeholders; only a non-contract address is an error.
func (f *MetadataFetcher) FetchTokenMetadata(ctx context.Context, tokenAddress string) (*entities.Token, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", tokenAddress)
	}
	addr := common.HexToAddress(tokenAddress)

	token := &entities.Token{
		Address:  addr.Hex(),
		Name:     fallbackName,
		Symbol:   fallbackSymbol,
		Decimals: fallbackDecimals,
	}

	name, err := f.callString(ctx, addr, "name")
	if err != nil {
		f.logger.Warn("Failed to fetch token name, using fallback",
			zap.String("token", tokenAddress),
			zap.Error(err),
		)
	} else if name != "" {
		token.Name = name
	}

	symbol, err := f.callString(ctx, addr, "symbol")
	if err != nil {
		f.logger.Warn("Failed to fetch token symbol, using fallback",
			zap.String("token", tokenAddress),
			zap.Error(err),
		)
	} else if symbol != "" {
		token.Symbol = symbol
	}

	decimals, err := f.fetchDecimals(ctx, addr)
	if err != nil {
		f.logger.Warn("Failed to fetch token decimals",
			zap.String("token", tokenAddress),
			zap.Error(err),
		)
		// a token without decimals() cannot be priced safely
		return nil, fmt.Errorf("failed to fetch decimals for %s: %w", tokenAddress, err)
	}
	token.Decimals = decimals

	return token, nil
}

func (f *MetadataFetcher) callString(ctx context.Context, addr common.Address, method string) (string, error) {
	data, err := ERC20ABI.Pack(method)
	if err != nil {
		return "", err
	}
	result, err := f.caller.CallContract(ctx, addr, data)
	if err != nil {
		return "", err
	}
	return decodeStringOrBytes32(result)
}

func (f *MetadataFetcher) fetchDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	data, err := ERC20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	result, err := f.caller.CallContract(ctx, addr, data)
	if err != nil {
		return 0, err
	}

	if len(result) == 0 {
		return 0, fmt.Errorf("empty result for decimals")
	}
	if len(result) < 32 {
		return 0, fmt.Errorf("invalid decimals response length: %d", len(result))
	}

	value := new(big.Int).SetBytes(result[:32])
	if !value.IsUint64() || value.Uint64() > 255 {
		return 0, fmt.Errorf("decimals out of range: %s", value)
	}
	return uint8(value.Uint64()), nil
}

// FetchMetadataBatch resolves several tokens concurrently. Tokens that fail
// are omitted from the result and logged.
func (f *MetadataFetcher) FetchMetadataBatch(ctx context.Context, tokenAddresses []string) (map[string]*entities.Token, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]*entities.Token, len(tokenAddresses))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataWorkers)

	for _, addr := range tokenAddresses {
		addr := addr
		g.Go(func() error {
			token, err := f.FetchTokenMetadata(gctx, addr)
			if err != nil {
				f.logger.Warn("Failed to fetch metadata for token",
					zap.String("token", addr),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[strings.ToLower(addr)] = token
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// decodeStringOrBytes32 decodes a response that could be either:
// 1. ABI-encoded string: offset (32 bytes) + length (32 bytes) + data (padded to 32 bytes)
// 2. bytes32: raw 32 bytes (older tokens such as MKR)
func decodeStringOrBytes32(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty data")
	}

	if len(data) < 32 {
		return "", fmt.Errorf("data too short: %d bytes", len(data))
	}

	if len(data) >= 64 {
		offset := new(big.Int).SetBytes(data[:32])
		if offset.Uint64() == 32 {
			length := new(big.Int).SetBytes(data[32:64])
			strLen := int(length.Uint64())

			if strLen == 0 {
				return "", nil
			}

			if len(data) >= 64+strLen {
				return strings.TrimRight(string(data[64:64+strLen]), "\x00"), nil
			}
		}
	}

	result := bytes.TrimRight(data[:32], "\x00")
	if isPrintableASCII(result) {
		return string(result), nil
	}

	return "0x" + hex.EncodeToString(data[:32]), nil
}

// isPrintableASCII checks if all bytes are printable ASCII characters
func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return len(data) > 0
}
