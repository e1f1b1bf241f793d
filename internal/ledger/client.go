package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
)

// Client is the typed surface of the escrow contract. Implementations do plain
// I/O and never retry.
type Client interface {
	SubmitCreateExperience(ctx context.Context, signer *Signer, in CreateExperienceInput) (*types.Transaction, error)
	SubmitBookExperience(ctx context.Context, signer *Signer, experienceID, payment *big.Int) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	ReadExperience(ctx context.Context, experienceID *big.Int) (*Experience, error)
	ReadNextExperienceID(ctx context.Context) (*big.Int, error)
	IsPaused(ctx context.Context) (bool, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	// ExperienceIDFromReceipt returns the id emitted by ExperienceCreated, if present.
	ExperienceIDFromReceipt(receipt *types.Receipt) (*big.Int, bool)
}

// Backend is what the EVM client needs from an RPC connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EVMClient talks to the escrow contract over JSON-RPC.
type EVMClient struct {
	backend  Backend
	address  common.Address
	contract *bind.BoundContract
	close    func()
}

var _ Client = (*EVMClient)(nil)

// Dial connects to the configured RPC endpoint and checks the chain id.
func Dial(ctx context.Context, cfg config.LedgerConfig, logg *logger.Logger) (*EVMClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	chainID, err := rpcClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		rpcClient.Close()
		return nil, fmt.Errorf("ledger rpc chain id %s does not match configured %d", chainID, cfg.ChainID)
	}
	client := NewEVMClient(rpcClient, common.HexToAddress(cfg.ContractAddress))
	client.close = rpcClient.Close
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"chain_id": chainID.String(),
			"contract": client.address.Hex(),
		}), "ledger client connected")
	}
	return client, nil
}

// NewEVMClient binds the escrow ABI at address on the given backend.
func NewEVMClient(backend Backend, address common.Address) *EVMClient {
	return &EVMClient{
		backend:  backend,
		address:  address,
		contract: bind.NewBoundContract(address, escrowABI, backend, backend, backend),
	}
}

// Address is the escrow contract address.
func (c *EVMClient) Address() common.Address {
	return c.address
}

func (c *EVMClient) Close() {
	if c.close != nil {
		c.close()
	}
}

func (c *EVMClient) SubmitCreateExperience(ctx context.Context, signer *Signer, in CreateExperienceInput) (*types.Transaction, error) {
	opts, err := transactOpts(ctx, signer, nil)
	if err != nil {
		return nil, err
	}
	return c.contract.Transact(opts, methodCreateExperience,
		in.ExperienceWallet,
		in.Title,
		in.Description,
		in.Location,
		in.Price,
		in.MaxParticipants,
		in.ScheduledAt,
		in.PaymentStructure,
	)
}

func (c *EVMClient) SubmitBookExperience(ctx context.Context, signer *Signer, experienceID, payment *big.Int) (*types.Transaction, error) {
	if experienceID == nil {
		return nil, errors.New("experience id is required")
	}
	opts, err := transactOpts(ctx, signer, payment)
	if err != nil {
		return nil, err
	}
	return c.contract.Transact(opts, methodRegister, experienceID)
}

// WaitConfirmed blocks until the transaction is mined. A mined but failed
// transaction returns the receipt together with ErrReverted.
func (c *EVMClient) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s: %w", tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

func (c *EVMClient) ReadExperience(ctx context.Context, experienceID *big.Int) (*Experience, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetExperience, experienceID); err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getExperience returned %d values", len(out))
	}
	tuple := *abi.ConvertType(out[0], new(experienceTuple)).(*experienceTuple)
	return tuple.toExperience()
}

func (c *EVMClient) ReadNextExperienceID(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodNextExperienceID); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *EVMClient) IsPaused(ctx context.Context) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodPaused); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EVMClient) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, account, nil)
}

// ExperienceIDFromReceipt scans the receipt logs emitted by this contract.
func (c *EVMClient) ExperienceIDFromReceipt(receipt *types.Receipt) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != c.address {
			continue
		}
		if created, err := c.parseExperienceCreated(*log); err == nil && created.ExperienceId != nil {
			return created.ExperienceId, true
		}
	}
	return nil, false
}

// ExperienceCreated is the decoded contract event.
type ExperienceCreated struct {
	ExperienceId     *big.Int
	Creator          common.Address
	ExperienceWallet common.Address
	Title            string
	Price            *big.Int
}

func (c *EVMClient) parseExperienceCreated(log types.Log) (*ExperienceCreated, error) {
	if len(log.Topics) == 0 || log.Topics[0] != escrowABI.Events[eventExperienceCreated].ID {
		return nil, errors.New("not an ExperienceCreated log")
	}
	event := new(ExperienceCreated)
	if err := c.contract.UnpackLog(event, eventExperienceCreated, log); err != nil {
		return nil, err
	}
	return event, nil
}

func transactOpts(ctx context.Context, signer *Signer, value *big.Int) (*bind.TransactOpts, error) {
	if signer == nil || signer.Signer == nil {
		return nil, errors.New("signer is required")
	}
	opts := *signer
	opts.Context = ctx
	opts.Value = value
	return &opts, nil
}

// NewSigner builds a signer from a hex-encoded secp256k1 key.
func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
}
