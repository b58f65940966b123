package subtensor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-custody/internal/chain"
	"alpha-custody/internal/chain/stub"
	"alpha-custody/internal/domain"
	"alpha-custody/internal/keystore"
	"alpha-custody/internal/observability"
)

// fakeTransport routes calls to per-method handlers. Params and results take a
// JSON round trip, as they would on the wire.
type fakeTransport struct {
	handlers map[string]func(params []json.RawMessage) (interface{}, error)
	calls    []string
	once     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func([]json.RawMessage) (interface{}, error))}
}

func (f *fakeTransport) handle(method string, h func(params []json.RawMessage) (interface{}, error)) {
	f.handlers[method] = h
}

func (f *fakeTransport) Call(_ context.Context, method string, params []interface{}, result interface{}) error {
	f.calls = append(f.calls, method)

	h, ok := f.handlers[method]
	if !ok {
		return &RPCError{Code: -32601, Message: "Method not found"}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var decoded []json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}

	out, err := h(decoded)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, result)
}

func (f *fakeTransport) CallOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	f.once = append(f.once, method)
	return f.Call(ctx, method, params, result)
}

func (f *fakeTransport) Close() error { return nil }

// keyWallet signs with a real sr25519 key.
type keyWallet struct {
	name     string
	coldkey  string
	secret   *schnorrkel.SecretKey
	pub      [32]byte
	unlocked bool
}

func newKeyWallet() *keyWallet {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	if err != nil {
		panic(err)
	}
	secret := mini.ExpandEd25519()
	pub, err := secret.Public()
	if err != nil {
		panic(err)
	}
	return &keyWallet{name: "my-hodl", coldkey: "5HoldingCold", secret: secret, pub: pub.Encode()}
}

func (w *keyWallet) Name() string     { return w.name }
func (w *keyWallet) Coldkey() string  { return w.coldkey }
func (w *keyWallet) Hotkey() string   { return "" }
func (w *keyWallet) IsUnlocked() bool { return w.unlocked }

func (w *keyWallet) UnlockColdkey() error {
	w.unlocked = true
	return nil
}

func (w *keyWallet) Sign(p []byte) ([]byte, error) {
	if !w.unlocked {
		return nil, chain.ErrLocked
	}
	sig, err := w.secret.Sign(schnorrkel.NewSigningContext([]byte("substrate"), p))
	if err != nil {
		return nil, err
	}
	enc := sig.Encode()
	return enc[:], nil
}

func stakes(infos ...stakeInfo) func([]json.RawMessage) (interface{}, error) {
	return func([]json.RawMessage) (interface{}, error) { return infos, nil }
}

func TestClient_StakeOf(t *testing.T) {
	ft := newFakeTransport()
	ft.handle(methodStakeForColdkeyHotkey, func(params []json.RawMessage) (interface{}, error) {
		require.Len(t, params, 3)
		assert.JSONEq(t, `[64]`, string(params[2]))
		return []stakeInfo{
			{Coldkey: "5Cold", Hotkey: "5Hot", Netuid: 3, Stake: "999"},
			{Coldkey: "5Cold", Hotkey: "5Hot", Netuid: 64, Stake: "1500000000"},
		}, nil
	})
	client := NewClient(ft)

	pos, err := client.StakeOf(context.Background(), "5Cold", "5Hot", 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), pos.Stake.Rao)
	assert.Equal(t, 64, pos.Stake.Netuid)
	assert.Equal(t, "5Hot", pos.Hotkey)
}

func TestClient_StakeOf_NoEntryIsZero(t *testing.T) {
	ft := newFakeTransport()
	ft.handle(methodStakeForColdkeyHotkey, stakes())
	client := NewClient(ft)

	pos, err := client.StakeOf(context.Background(), "5Cold", "5Hot", 64)
	require.NoError(t, err)
	assert.True(t, pos.Stake.IsZero())
	assert.Equal(t, domain.EmptyPosition("5Cold", "5Hot", 64), pos)
}

func TestClient_StakeOf_QueryError(t *testing.T) {
	tests := []struct {
		name    string
		handler func([]json.RawMessage) (interface{}, error)
	}{
		{
			name: "transport error",
			handler: func([]json.RawMessage) (interface{}, error) {
				return nil, errors.New("connection refused")
			},
		},
		{
			name:    "malformed stake",
			handler: stakes(stakeInfo{Coldkey: "5Cold", Hotkey: "5Hot", Netuid: 64, Stake: "1.5"}),
		},
		{
			name:    "negative stake",
			handler: stakes(stakeInfo{Coldkey: "5Cold", Hotkey: "5Hot", Netuid: 64, Stake: "-1"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			ft.handle(methodStakeForColdkeyHotkey, tt.handler)
			client := NewClient(ft)

			_, err := client.StakeOf(context.Background(), "5Cold", "5Hot", 64)

			var qErr *chain.QueryError
			require.ErrorAs(t, err, &qErr)
			assert.Equal(t, "stake_of", qErr.Op)
		})
	}
}

func TestClient_AllStakesOf_SkipsEmpty(t *testing.T) {
	ft := newFakeTransport()
	ft.handle(methodStakeForColdkey, stakes(
		stakeInfo{Coldkey: "5Hold", Hotkey: "5A", Netuid: 64, Stake: "100"},
		stakeInfo{Coldkey: "5Hold", Hotkey: "5B", Netuid: 64, Stake: "0"},
		stakeInfo{Coldkey: "5Hold", Hotkey: "5C", Netuid: 1, Stake: "18446744073709551615"},
	))
	client := NewClient(ft)

	positions, err := client.AllStakesOf(context.Background(), "5Hold")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "5A", positions[0].Hotkey)
	assert.Equal(t, "5C", positions[1].Hotkey)
	assert.Equal(t, uint64(18446744073709551615), positions[1].Stake.Rao)
}

func TestParseRao_OutOfRange(t *testing.T) {
	_, err := parseRao("18446744073709551616")
	assert.Error(t, err)
}

func TestClient_TransferStake_SignsCall(t *testing.T) {
	w := newKeyWallet()
	ft := newFakeTransport()
	ft.handle(methodAccountNextIndex, func([]json.RawMessage) (interface{}, error) { return 5, nil })

	var submitted signedCall
	ft.handle(methodTransferStake, func(params []json.RawMessage) (interface{}, error) {
		require.Len(t, params, 1)
		require.NoError(t, json.Unmarshal(params[0], &submitted))
		return submitResult{Success: true, ExtrinsicHash: "0xabc"}, nil
	})
	client := NewClient(ft)

	err := client.TransferStake(context.Background(), w, "5MinerHot", "5HoldingCold", 64, domain.NewBalance(100, 64))
	require.NoError(t, err)

	assert.True(t, w.IsUnlocked())
	assert.Equal(t, []string{methodAccountNextIndex, methodTransferStake}, ft.calls)
	assert.Equal(t, []string{methodTransferStake}, ft.once, "only the submission is sent without retries")
	assert.Equal(t, "transfer_stake", submitted.Call.Call)
	assert.Equal(t, "5HoldingCold", submitted.Call.Args["destination_coldkey"])
	assert.Equal(t, "5MinerHot", submitted.Call.Args["hotkey"])
	assert.Equal(t, "100", submitted.Call.Args["alpha_amount"])
	assert.Equal(t, uint64(5), submitted.Nonce)

	payload, err := json.Marshal(signingPayload{Call: submitted.Call, Nonce: submitted.Nonce})
	require.NoError(t, err)
	sig, err := hex.DecodeString(strings.TrimPrefix(submitted.Signature, "0x"))
	require.NoError(t, err)
	ok, err := keystore.Verify(w.pub[:], payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_TransferStake_Rejected(t *testing.T) {
	ft := newFakeTransport()
	ft.handle(methodAccountNextIndex, func([]json.RawMessage) (interface{}, error) { return 0, nil })
	ft.handle(methodTransferStake, func([]json.RawMessage) (interface{}, error) {
		return submitResult{Success: false, Error: "NotEnoughStakeToWithdraw"}, nil
	})
	client := NewClient(ft)

	err := client.TransferStake(context.Background(), newKeyWallet(), "5Hot", "5Dest", 64, domain.NewBalance(1, 64))

	var af *chain.ActionFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "NotEnoughStakeToWithdraw", af.Reason)
}

func TestClient_TransferStake_SubnetMismatch(t *testing.T) {
	ft := newFakeTransport()
	client := NewClient(ft)

	err := client.TransferStake(context.Background(), newKeyWallet(), "5Hot", "5Dest", 64, domain.NewBalance(1, 3))
	assert.ErrorIs(t, err, domain.ErrSubnetMismatch)
	assert.Empty(t, ft.calls)
}

func TestClient_TransferStake_UnlockFailure(t *testing.T) {
	ft := newFakeTransport()
	client := NewClient(ft)

	w := stub.NewWallet("miner1", "5MinerCold", "5MinerHot")
	w.UnlockErr = errors.New("bad password")

	err := client.TransferStake(context.Background(), w, "5MinerHot", "5Dest", 64, domain.NewBalance(1, 64))

	var af *chain.ActionFailure
	require.ErrorAs(t, err, &af)
	var unlockErr *chain.KeyUnlockError
	assert.ErrorAs(t, err, &unlockErr)
	assert.Empty(t, ft.calls, "nothing may be submitted without a signature")
}

func TestClient_MoveStake(t *testing.T) {
	tests := []struct {
		name    string
		result  submitResult
		wantOK  bool
		wantErr bool
	}{
		{name: "included", result: submitResult{Success: true, ExtrinsicHash: "0x01"}, wantOK: true},
		{name: "rejected", result: submitResult{Error: "HotKeyAccountNotExists"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var submitted signedCall
			ft := newFakeTransport()
			ft.handle(methodAccountNextIndex, func([]json.RawMessage) (interface{}, error) { return 1, nil })
			ft.handle(methodMoveStake, func(params []json.RawMessage) (interface{}, error) {
				require.NoError(t, json.Unmarshal(params[0], &submitted))
				return tt.result, nil
			})
			client := NewClient(ft)

			ok, err := client.MoveStake(context.Background(), newKeyWallet(), "5Origin", 64, "5Target", 64, domain.NewBalance(30, 64))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantErr {
				var af *chain.ActionFailure
				require.ErrorAs(t, err, &af)
				assert.Equal(t, tt.result.Error, af.Reason)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "5Origin", submitted.Call.Args["origin_hotkey"])
			assert.Equal(t, "5Target", submitted.Call.Args["destination_hotkey"])
			assert.Equal(t, "30", submitted.Call.Args["alpha_amount"])
		})
	}
}

func TestClient_RecordsLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	ft := newFakeTransport()
	ft.handle(methodStakeForColdkey, stakes())
	client := NewClient(ft, WithMetrics(m))

	_, err := client.AllStakesOf(context.Background(), "5Hold")
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m.RPCCallLatency))
}

func TestDialTransport_Scheme(t *testing.T) {
	tr, err := DialTransport(context.Background(), "http://127.0.0.1:9933", TransportConfig{MaxRetries: 1})
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, tr)

	_, err = DialTransport(context.Background(), "tcp://127.0.0.1:9944", TransportConfig{})
	assert.Error(t, err)
}
