package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// fakeNode answers eth_call by function selector
type fakeNode struct {
	mu        sync.Mutex
	responses map[string][]byte
	failures  map[string]error
	batchErr  error
	calls     []string
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		responses: make(map[string][]byte),
		failures:  make(map[string]error),
	}
}

func (n *fakeNode) respond(contractMethod string, packed []byte) {
	n.responses[contractMethod] = packed
}

func (n *fakeNode) fail(contractMethod string, err error) {
	n.failures[contractMethod] = err
}

func (n *fakeNode) lookup(data []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(data) < 4 {
		return nil, errors.New("missing selector")
	}
	name := methodName(data[:4])
	n.calls = append(n.calls, name)

	if err, ok := n.failures[name]; ok {
		return nil, err
	}
	if out, ok := n.responses[name]; ok {
		return out, nil
	}
	return nil, errors.New("execution reverted")
}

func (n *fakeNode) CallContract(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	return n.lookup(data)
}

func (n *fakeNode) BatchCall(_ context.Context, elems []rpc.BatchElem) error {
	if n.batchErr != nil {
		return n.batchErr
	}
	for i := range elems {
		arg := elems[i].Args[0].(ethCallArg)
		data, err := hex.DecodeString(strings.TrimPrefix(arg.Data, "0x"))
		if err != nil {
			elems[i].Error = err
			continue
		}
		out, err := n.lookup(data)
		if err != nil {
			elems[i].Error = err
			continue
		}
		*elems[i].Result.(*hexutil.Bytes) = out
	}
	return nil
}

func methodName(selector []byte) string {
	if m, err := VaultABI.MethodById(selector); err == nil {
		return m.Name
	}
	if m, err := ERC20ABI.MethodById(selector); err == nil {
		return m.Name
	}
	return "0x" + hex.EncodeToString(selector)
}
