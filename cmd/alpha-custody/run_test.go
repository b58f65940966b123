package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-custody/internal/config"
	"alpha-custody/internal/keystore"
	"alpha-custody/internal/ss58"
)

type testAccount struct {
	seed []byte
	pub  []byte
	addr string
}

func newTestAccount(t *testing.T, fill byte) testAccount {
	t.Helper()
	var seed [32]byte
	for i := range seed {
		seed[i] = fill + byte(i)
	}
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	require.NoError(t, err)
	pk, err := mini.ExpandEd25519().Public()
	require.NoError(t, err)
	pub := pk.Encode()

	addr, err := ss58.Encode(pub[:], ss58.BittensorPrefix)
	require.NoError(t, err)
	return testAccount{seed: seed[:], pub: pub[:], addr: addr}
}

// keyfile renders a plaintext bittensor keyfile.
func (a testAccount) keyfile(t *testing.T, withSecret bool) []byte {
	t.Helper()
	kp := map[string]interface{}{
		"accountId":   "0x" + hex.EncodeToString(a.pub),
		"publicKey":   "0x" + hex.EncodeToString(a.pub),
		"ss58Address": a.addr,
	}
	if withSecret {
		kp["secretSeed"] = "0x" + hex.EncodeToString(a.seed)
	}
	data, err := json.Marshal(kp)
	require.NoError(t, err)
	return data
}

func writeWalletFiles(t *testing.T, root, name string, cold testAccount, hotkeys map[string]testAccount) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "hotkeys"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coldkeypub.txt"), cold.keyfile(t, false), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coldkey"), cold.keyfile(t, true), 0o600))
	for hk, acct := range hotkeys {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hotkeys", hk), acct.keyfile(t, false), 0o600))
	}
}

// fakeGateway is an in-memory stake gateway for a single subnet. Submissions
// are checked against the signer's sr25519 public key before being applied.
type fakeGateway struct {
	t      *testing.T
	netuid int

	mu          sync.Mutex
	stakes      map[string]map[string]uint64 // coldkey -> hotkey -> rao
	pubs        map[string][]byte
	reject      map[string]string // signer coldkey -> dispatch error
	submissions []string
}

func newFakeGateway(t *testing.T, netuid int) *fakeGateway {
	return &fakeGateway{
		t:      t,
		netuid: netuid,
		stakes: make(map[string]map[string]uint64),
		pubs:   make(map[string][]byte),
		reject: make(map[string]string),
	}
}

func (g *fakeGateway) setStake(coldkey, hotkey string, rao uint64) {
	if g.stakes[coldkey] == nil {
		g.stakes[coldkey] = make(map[string]uint64)
	}
	g.stakes[coldkey][hotkey] = rao
}

func (g *fakeGateway) stake(coldkey, hotkey string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stakes[coldkey][hotkey]
}

func (g *fakeGateway) entries(coldkey, hotkey string) []map[string]interface{} {
	out := []map[string]interface{}{}
	for hk, rao := range g.stakes[coldkey] {
		if hotkey != "" && hk != hotkey {
			continue
		}
		out = append(out, map[string]interface{}{
			"coldkey": coldkey,
			"hotkey":  hk,
			"netuid":  g.netuid,
			"stake":   strconv.FormatUint(rao, 10),
		})
	}
	return out
}

type gatewayCall struct {
	Pallet string                 `json:"pallet"`
	Call   string                 `json:"call"`
	Args   map[string]interface{} `json:"args"`
}

type gatewaySubmission struct {
	Call      gatewayCall `json:"call"`
	Signer    string      `json:"signer"`
	Nonce     uint64      `json:"nonce"`
	Signature string      `json:"signature"`
}

func (g *fakeGateway) submit(raw json.RawMessage) map[string]interface{} {
	var sub gatewaySubmission
	if err := json.Unmarshal(raw, &sub); err != nil {
		g.t.Errorf("decode submission: %v", err)
		return map[string]interface{}{"success": false, "error": "BadSubmission"}
	}
	g.submissions = append(g.submissions, sub.Call.Call+" by "+sub.Signer)

	payload, err := json.Marshal(struct {
		Call  gatewayCall `json:"call"`
		Nonce uint64      `json:"nonce"`
	}{sub.Call, sub.Nonce})
	if err != nil {
		g.t.Errorf("encode payload: %v", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sub.Signature, "0x"))
	if err != nil {
		g.t.Errorf("decode signature: %v", err)
	}
	ok, err := keystore.Verify(g.pubs[sub.Signer], payload, sig)
	if err != nil || !ok {
		g.t.Errorf("bad signature from %s: %v", sub.Signer, err)
		return map[string]interface{}{"success": false, "error": "BadSignature"}
	}

	if reason, ok := g.reject[sub.Signer]; ok {
		return map[string]interface{}{"success": false, "error": reason}
	}

	amount, err := strconv.ParseUint(sub.Call.Args["alpha_amount"].(string), 10, 64)
	if err != nil {
		g.t.Errorf("alpha_amount: %v", err)
	}
	switch sub.Call.Call {
	case "transfer_stake":
		hotkey := sub.Call.Args["hotkey"].(string)
		dest := sub.Call.Args["destination_coldkey"].(string)
		g.setStake(sub.Signer, hotkey, g.stakes[sub.Signer][hotkey]-amount)
		g.setStake(dest, hotkey, g.stakes[dest][hotkey]+amount)
	case "move_stake":
		origin := sub.Call.Args["origin_hotkey"].(string)
		dest := sub.Call.Args["destination_hotkey"].(string)
		g.setStake(sub.Signer, origin, g.stakes[sub.Signer][origin]-amount)
		g.setStake(sub.Signer, dest, g.stakes[sub.Signer][dest]+amount)
	}
	return map[string]interface{}{"success": true, "extrinsicHash": "0x" + strconv.Itoa(len(g.submissions))}
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	str := func(i int) string {
		var s string
		if i < len(req.Params) {
			_ = json.Unmarshal(req.Params[i], &s)
		}
		return s
	}

	g.mu.Lock()
	var result interface{}
	switch req.Method {
	case "stake_getStakeForColdkeyAndHotkey":
		result = g.entries(str(0), str(1))
	case "stake_getStakeForColdkey":
		result = g.entries(str(0), "")
	case "system_accountNextIndex":
		result = len(g.submissions)
	case "stake_transferStake", "stake_moveStake":
		result = g.submit(req.Params[0])
	default:
		g.t.Errorf("unexpected method %s", req.Method)
	}
	g.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func TestRun_RejectedTransferIsReportedNotFatal(t *testing.T) {
	const netuid = 64

	root := t.TempDir()
	holding := newTestAccount(t, 1)
	miner1Cold, miner1Hot := newTestAccount(t, 40), newTestAccount(t, 41)
	miner2Cold, miner2Hot := newTestAccount(t, 80), newTestAccount(t, 81)

	writeWalletFiles(t, root, "my-hodl", holding, nil)
	writeWalletFiles(t, root, "miner1", miner1Cold, map[string]testAccount{"miner1": miner1Hot})
	writeWalletFiles(t, root, "miner2", miner2Cold, map[string]testAccount{"miner2": miner2Hot})

	gw := newFakeGateway(t, netuid)
	for _, a := range []testAccount{holding, miner1Cold, miner2Cold} {
		gw.pubs[a.addr] = a.pub
	}
	gw.setStake(miner1Cold.addr, miner1Hot.addr, 1_000)
	gw.setStake(miner2Cold.addr, miner2Hot.addr, 500)
	gw.reject[miner2Cold.addr] = "NotEnoughStakeToWithdraw"

	server := httptest.NewServer(gw)
	defer server.Close()

	reportDir := t.TempDir()
	writeConfig(t, "endpoint: "+server.URL+"\n"+
		"wallet_path: "+root+"\n"+
		"target_hotkey: "+config.DefaultTargetHotkey+"\n"+
		"report:\n  dir: "+reportDir+"\n"+
		"log:\n  level: error\n")

	var out bytes.Buffer
	err := run(context.Background(), &out, netuid)
	require.NoError(t, err, "per-wallet failures must not fail the run")

	summary := out.String()
	assert.Contains(t, summary, "miner1")
	assert.Contains(t, summary, "miner2")
	assert.Contains(t, summary, "1 error(s)")

	assert.Zero(t, gw.stake(miner1Cold.addr, miner1Hot.addr))
	assert.Zero(t, gw.stake(holding.addr, miner1Hot.addr))
	assert.Equal(t, uint64(1_000), gw.stake(holding.addr, config.DefaultTargetHotkey))
	assert.Equal(t, uint64(500), gw.stake(miner2Cold.addr, miner2Hot.addr))

	assert.Equal(t, []string{
		"transfer_stake by " + miner1Cold.addr,
		"move_stake by " + holding.addr,
		"transfer_stake by " + miner2Cold.addr,
	}, gw.submissions)

	files, err := filepath.Glob(filepath.Join(reportDir, "run-*"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
