package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to the JSON-RPC endpoint. Returns nil when no URL is set.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, nil
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return client, nil
}

// Artifact is a compiled contract artifact as served to clients.
type Artifact struct {
	Raw []byte
	ABI abi.ABI
}

// LoadArtifact reads a build artifact that is either a bare ABI array or an
// object with an "abi" field.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract artifact: %w", err)
	}
	return ParseArtifact(raw)
}

// ParseArtifact is LoadArtifact over bytes already in memory.
func ParseArtifact(raw []byte) (*Artifact, error) {
	abiJSON := bytes.TrimSpace(raw)
	if len(abiJSON) > 0 && abiJSON[0] == '{' {
		var wrapper struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(abiJSON, &wrapper); err != nil {
			return nil, fmt.Errorf("decode contract artifact: %w", err)
		}
		if len(wrapper.ABI) == 0 {
			return nil, fmt.Errorf("contract artifact has no abi field")
		}
		abiJSON = wrapper.ABI
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &Artifact{Raw: raw, ABI: parsed}, nil
}
