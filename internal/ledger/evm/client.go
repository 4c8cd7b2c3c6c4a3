// Package evm talks to the carbon-credit contract deployed on an EVM chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/nurpe/carbon-credits/internal/ledger"
)

//go:embed carbon_credit.abi.json
var contractABI string

var _ ledger.Client = (*Client)(nil)

type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	StartBlock      uint64
	ReceiptTimeout  time.Duration
}

type Client struct {
	backend        Backend
	address        common.Address
	abi            abi.ABI
	contract       *bind.BoundContract
	auth           *bind.TransactOpts
	startBlock     uint64
	receiptTimeout time.Duration

	// guards nonce assignment; never held while waiting for a receipt
	sendMu sync.Mutex
}

// Dial connects to the RPC endpoint and loads the signing key.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("load ledger key: %w", err)
	}
	backend, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
	}
	client, err := New(backend, common.HexToAddress(cfg.ContractAddress), key, chainID)
	if err != nil {
		backend.Close()
		return nil, err
	}
	client.startBlock = cfg.StartBlock
	client.receiptTimeout = cfg.ReceiptTimeout
	return client, nil
}

func New(backend Backend, contract common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	return &Client{
		backend:  backend,
		address:  contract,
		abi:      parsed,
		contract: bind.NewBoundContract(contract, parsed, backend, backend, backend),
		auth:     auth,
	}, nil
}

// Close releases the RPC connection when the backend owns one.
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

// From is the account transactions are signed with.
func (c *Client) From() common.Address {
	return c.auth.From
}

func (c *Client) SubmitClaim(ctx context.Context, claim ledger.ClaimSubmission) (*ledger.Receipt, error) {
	photos := claim.Photos
	if photos == nil {
		photos = []string{}
	}
	return c.transact(ctx, "submitClaim",
		claim.X, claim.Y, claim.Acres, claim.DemandedTokens,
		claim.Details, claim.Name, photos, claim.Year,
	)
}

func (c *Client) ApproveClaim(ctx context.Context, claimID *big.Int, award *big.Int) (*ledger.Receipt, error) {
	return c.transact(ctx, "approveClaim", claimID, award)
}

func (c *Client) CreateRequest(ctx context.Context, seller common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return c.transact(ctx, "createRequest", seller, amount)
}

func (c *Client) HandleRequest(ctx context.Context, requestID *big.Int, approve bool) (*ledger.Receipt, error) {
	return c.transact(ctx, "handleRequest", requestID, approve)
}

type requestTuple struct {
	Id              *big.Int
	Buyer           common.Address
	PotentialSeller common.Address
	Amount          *big.Int
	Status          uint8
}

func (c *Client) UsersRequests(ctx context.Context, user common.Address) ([]ledger.Request, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx, From: c.auth.From}, &out, "getUsersRequest", user); err != nil {
		return nil, fmt.Errorf("getUsersRequest: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getUsersRequest: unexpected output count %d", len(out))
	}
	rows := *abi.ConvertType(out[0], new([]requestTuple)).(*[]requestTuple)
	result := make([]ledger.Request, 0, len(rows))
	for _, row := range rows {
		result = append(result, ledger.Request{
			ID:              row.Id,
			Buyer:           row.Buyer,
			PotentialSeller: row.PotentialSeller,
			Amount:          row.Amount,
			Status:          row.Status,
		})
	}
	return result, nil
}

func (c *Client) Organization(ctx context.Context, addr common.Address) (*ledger.OrganizationRecord, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "organizations", addr); err != nil {
		return nil, fmt.Errorf("organizations: %w", err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("organizations: unexpected output count %d", len(out))
	}
	return &ledger.OrganizationRecord{
		Name:         *abi.ConvertType(out[0], new(string)).(*string),
		PhotoHash:    *abi.ConvertType(out[1], new(string)).(*string),
		Balance:      *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		IsRegistered: *abi.ConvertType(out[3], new(bool)).(*bool),
	}, nil
}

func (c *Client) OrganizationRegistrations(ctx context.Context) ([]ledger.Registration, error) {
	event, ok := c.abi.Events[ledger.EventOrganizationRegistered]
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", ledger.EventOrganizationRegistered)
	}
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.startBlock),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", event.Name, err)
	}

	result := make([]ledger.Registration, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		fields := make(map[string]interface{})
		if err := c.contract.UnpackLogIntoMap(fields, event.Name, lg); err != nil {
			return nil, fmt.Errorf("decode %s in tx %s: %w", event.Name, lg.TxHash.Hex(), err)
		}
		reg := ledger.Registration{Balance: new(big.Int)}
		if v, ok := fields["orgAddress"].(common.Address); ok {
			reg.Address = v
		}
		if v, ok := fields["name"].(string); ok {
			reg.Name = v
		}
		if v, ok := fields["photoIpfsHash"].(string); ok {
			reg.PhotoHash = v
		}
		if v, ok := fields["balance"].(*big.Int); ok && v != nil {
			reg.Balance = v
		}
		result = append(result, reg)
	}
	return result, nil
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (*ledger.Receipt, error) {
	c.sendMu.Lock()
	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, args...)
	c.sendMu.Unlock()
	if err != nil {
		return nil, &ledger.TxError{Method: method, Reason: revertReason(err)}
	}

	waitCtx := ctx
	if c.receiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.receiptTimeout)
		defer cancel()
	}
	rcpt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, &ledger.TxError{Method: method, TxHash: tx.Hash().Hex(), Reason: err.Error()}
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return nil, &ledger.TxError{Method: method, TxHash: tx.Hash().Hex(), Reason: "transaction reverted"}
	}
	return c.decodeReceipt(rcpt)
}

func (c *Client) decodeReceipt(rcpt *types.Receipt) (*ledger.Receipt, error) {
	out := &ledger.Receipt{TxHash: rcpt.TxHash.Hex()}
	for _, lg := range rcpt.Logs {
		if lg == nil || lg.Address != c.address || len(lg.Topics) == 0 {
			continue
		}
		event, err := c.abi.EventByID(lg.Topics[0])
		if err != nil {
			continue
		}
		fields := make(map[string]interface{})
		if err := c.contract.UnpackLogIntoMap(fields, event.Name, *lg); err != nil {
			return nil, fmt.Errorf("decode %s in tx %s: %w", event.Name, out.TxHash, err)
		}
		out.Events = append(out.Events, ledger.Event{Name: event.Name, Fields: fields})
	}
	return out, nil
}

// revertReason prefers the ABI-decoded revert string carried by the node's
// error data and falls back to the error text.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(data)); uerr == nil {
				return "execution reverted: " + reason
			}
		}
	}
	return err.Error()
}
