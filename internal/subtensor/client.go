package subtensor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alpha-custody/internal/chain"
	"alpha-custody/internal/domain"
	"alpha-custody/internal/observability"
)

// Gateway methods.
const (
	methodStakeForColdkeyHotkey = "stake_getStakeForColdkeyAndHotkey"
	methodStakeForColdkey       = "stake_getStakeForColdkey"
	methodAccountNextIndex      = "system_accountNextIndex"
	methodTransferStake         = "stake_transferStake"
	methodMoveStake             = "stake_moveStake"
)

// Client implements chain.QueryPort and chain.ActionPort over a Transport.
type Client struct {
	transport Transport
	logger    *zap.Logger
	metrics   *observability.Metrics
}

var (
	_ chain.QueryPort  = (*Client)(nil)
	_ chain.ActionPort = (*Client)(nil)
)

// Option configures Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records per-method call latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client on an open transport.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to endpoint and returns a Client.
func Dial(ctx context.Context, endpoint string, cfg TransportConfig, opts ...Option) (*Client, error) {
	t, err := DialTransport(ctx, endpoint, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(t, opts...), nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	err := c.transport.Call(ctx, method, params, result)
	c.metrics.RecordRPCLatency(method, time.Since(start))
	return err
}

// callOnce is call without transport retries, for extrinsic submissions.
func (c *Client) callOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	err := c.transport.CallOnce(ctx, method, params, result)
	c.metrics.RecordRPCLatency(method, time.Since(start))
	return err
}

// stakeInfo is one stake entry returned by the gateway.
type stakeInfo struct {
	Coldkey string `json:"coldkey"`
	Hotkey  string `json:"hotkey"`
	Netuid  int    `json:"netuid"`
	Stake   string `json:"stake"` // decimal rao
}

func (s stakeInfo) position() (domain.StakePosition, error) {
	rao, err := parseRao(s.Stake)
	if err != nil {
		return domain.StakePosition{}, fmt.Errorf("stake of %s/%s on netuid %d: %w", s.Coldkey, s.Hotkey, s.Netuid, err)
	}
	return domain.StakePosition{
		Coldkey: s.Coldkey,
		Hotkey:  s.Hotkey,
		Netuid:  s.Netuid,
		Stake:   domain.NewBalance(rao, s.Netuid),
	}, nil
}

// parseRao parses a non-negative integer amount of rao.
func parseRao(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse rao %q: %w", s, err)
	}
	if d.IsNegative() || !d.IsInteger() {
		return 0, fmt.Errorf("parse rao %q: not a non-negative integer", s)
	}
	n := d.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("parse rao %q: out of range", s)
	}
	return n.Uint64(), nil
}

// StakeOf returns the position of (coldkey, hotkey) on netuid, or a zero
// position when the gateway has no entry for it.
func (c *Client) StakeOf(ctx context.Context, coldkey, hotkey string, netuid int) (domain.StakePosition, error) {
	qErr := func(err error) error {
		return &chain.QueryError{Op: "stake_of", Coldkey: coldkey, Hotkey: hotkey, Netuid: netuid, Err: err}
	}

	var infos []stakeInfo
	params := []interface{}{coldkey, hotkey, []int{netuid}}
	if err := c.call(ctx, methodStakeForColdkeyHotkey, params, &infos); err != nil {
		return domain.StakePosition{}, qErr(err)
	}

	pos := domain.EmptyPosition(coldkey, hotkey, netuid)
	for _, info := range infos {
		if info.Netuid != netuid || info.Hotkey != hotkey {
			continue
		}
		p, err := info.position()
		if err != nil {
			return domain.StakePosition{}, qErr(err)
		}
		if pos.Stake, err = pos.Stake.Add(p.Stake); err != nil {
			return domain.StakePosition{}, qErr(err)
		}
	}
	return pos, nil
}

// AllStakesOf returns every non-empty position of coldkey in gateway order.
func (c *Client) AllStakesOf(ctx context.Context, coldkey string) ([]domain.StakePosition, error) {
	var infos []stakeInfo
	if err := c.call(ctx, methodStakeForColdkey, []interface{}{coldkey}, &infos); err != nil {
		return nil, &chain.QueryError{Op: "all_stakes_of", Coldkey: coldkey, Err: err}
	}

	positions := make([]domain.StakePosition, 0, len(infos))
	for _, info := range infos {
		p, err := info.position()
		if err != nil {
			return nil, &chain.QueryError{Op: "all_stakes_of", Coldkey: coldkey, Err: err}
		}
		if p.Stake.IsZero() {
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// extrinsicCall is the unsigned body of a SubtensorModule call.
type extrinsicCall struct {
	Pallet string                 `json:"pallet"`
	Call   string                 `json:"call"`
	Args   map[string]interface{} `json:"args"`
}

// signingPayload is what the signer signs. Map keys marshal sorted, so the
// encoding is canonical.
type signingPayload struct {
	Call  extrinsicCall `json:"call"`
	Nonce uint64        `json:"nonce"`
}

type signedCall struct {
	Call      extrinsicCall `json:"call"`
	Signer    string        `json:"signer"`
	Nonce     uint64        `json:"nonce"`
	Signature string        `json:"signature"` // 0x-prefixed hex
}

type submitResult struct {
	Success       bool   `json:"success"`
	ExtrinsicHash string `json:"extrinsicHash"`
	Error         string `json:"error"`
}

// TransferStake moves amount from the signer's (coldkey, fromHotkey) position to
// toColdkey under the same hotkey and subnet.
func (c *Client) TransferStake(ctx context.Context, signer chain.Wallet, fromHotkey, toColdkey string, netuid int, amount domain.Balance) error {
	const op = "transfer_stake"
	if amount.Netuid != netuid {
		return &chain.ActionFailure{Op: op, Signer: signer.Coldkey(), Err: domain.ErrSubnetMismatch}
	}

	call := extrinsicCall{
		Pallet: "SubtensorModule",
		Call:   op,
		Args: map[string]interface{}{
			"destination_coldkey": toColdkey,
			"hotkey":              fromHotkey,
			"origin_netuid":       netuid,
			"destination_netuid":  netuid,
			"alpha_amount":        strconv.FormatUint(amount.Rao, 10),
		},
	}

	res, err := c.submit(ctx, op, methodTransferStake, signer, call)
	if err != nil {
		return err
	}
	if !res.Success {
		return &chain.ActionFailure{Op: op, Signer: signer.Coldkey(), Reason: res.Error}
	}
	return nil
}

// MoveStake re-delegates amount between (hotkey, subnet) pairs under the signer
// coldkey. A chain rejection returns false with an *ActionFailure carrying the reason.
func (c *Client) MoveStake(ctx context.Context, signer chain.Wallet, originHotkey string, originNetuid int, destHotkey string, destNetuid int, amount domain.Balance) (bool, error) {
	const op = "move_stake"
	if amount.Netuid != originNetuid {
		return false, &chain.ActionFailure{Op: op, Signer: signer.Coldkey(), Err: domain.ErrSubnetMismatch}
	}

	call := extrinsicCall{
		Pallet: "SubtensorModule",
		Call:   op,
		Args: map[string]interface{}{
			"origin_hotkey":      originHotkey,
			"destination_hotkey": destHotkey,
			"origin_netuid":      originNetuid,
			"destination_netuid": destNetuid,
			"alpha_amount":       strconv.FormatUint(amount.Rao, 10),
		},
	}

	res, err := c.submit(ctx, op, methodMoveStake, signer, call)
	if err != nil {
		return false, err
	}
	if !res.Success {
		return false, &chain.ActionFailure{Op: op, Signer: signer.Coldkey(), Reason: res.Error}
	}
	return true, nil
}

// submit unlocks the signer if needed, signs call with the next nonce and submits it.
func (c *Client) submit(ctx context.Context, op, method string, signer chain.Wallet, call extrinsicCall) (*submitResult, error) {
	fail := func(err error) error {
		return &chain.ActionFailure{Op: op, Signer: signer.Coldkey(), Err: err}
	}

	if err := chain.EnsureUnlocked(signer); err != nil {
		return nil, fail(err)
	}

	var nonce uint64
	if err := c.call(ctx, methodAccountNextIndex, []interface{}{signer.Coldkey()}, &nonce); err != nil {
		return nil, fail(fmt.Errorf("read nonce: %w", err))
	}

	payload, err := json.Marshal(signingPayload{Call: call, Nonce: nonce})
	if err != nil {
		return nil, fail(fmt.Errorf("encode payload: %w", err))
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fail(fmt.Errorf("sign: %w", err))
	}

	signed := signedCall{
		Call:      call,
		Signer:    signer.Coldkey(),
		Nonce:     nonce,
		Signature: "0x" + hex.EncodeToString(sig),
	}

	var res submitResult
	if err := c.callOnce(ctx, method, []interface{}{signed}, &res); err != nil {
		return nil, fail(err)
	}

	c.logger.Debug("extrinsic submitted",
		zap.String("call", op),
		zap.String("coldkey", signer.Coldkey()),
		zap.Uint64("nonce", nonce),
		zap.Bool("success", res.Success),
		zap.String("extrinsic_hash", res.ExtrinsicHash),
	)
	return &res, nil
}
