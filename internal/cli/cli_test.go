package cli

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-network/canopy/lib/musig"
	"github.com/canopy-network/canopy/lib/musig/adapters"
)

// fakeRPC records broadcast transactions instead of talking to a node
type fakeRPC struct {
	mu        sync.Mutex
	endpoints []string
	sent      []*musig.SolanaTransaction
	blockhash musig.Blockhash
	balance   uint64
}

func (f *fakeRPC) factory(endpoint string) adapters.RPCClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints = append(f.endpoints, endpoint)
	return f
}

func (f *fakeRPC) GetBalance(ctx context.Context, address musig.SolanaAddress) (uint64, error) {
	return f.balance, nil
}

func (f *fakeRPC) RequestAirdrop(ctx context.Context, to musig.SolanaAddress, lamports uint64) (string, error) {
	return "airdrop-" + to.String(), nil
}

func (f *fakeRPC) GetRecentBlockhash(ctx context.Context) (musig.Blockhash, error) {
	return f.blockhash, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *musig.SolanaTransaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return "tx-id", nil
}

func (f *fakeRPC) lastSent(t *testing.T) *musig.SolanaTransaction {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// run executes one tool invocation the way a separate process would
func run(t *testing.T, rpc *fakeRPC, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(
		WithOutput(&out),
		WithErrorOutput(io.Discard),
		WithRPCClientFactory(rpc.factory),
	)
	err := app.Execute(context.Background(), args)
	return out.String(), err
}

func mustRun(t *testing.T, rpc *fakeRPC, args ...string) string {
	t.Helper()
	out, err := run(t, rpc, args...)
	require.NoError(t, err, "solana-tss %s", strings.Join(args, " "))
	return out
}

// field returns the first word following prefix in out
func field(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.Fields(rest)[0]
		}
	}
	t.Fatalf("no %q in output %q", prefix, out)
	return ""
}

type party struct {
	keypair string
	public  string
}

func newParty(t *testing.T, rpc *fakeRPC) party {
	t.Helper()
	out := mustRun(t, rpc, "generate")
	return party{
		keypair: field(t, out, "secret share: "),
		public:  field(t, out, "public key: "),
	}
}

func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, env := range os.Environ() {
		if name, _, ok := strings.Cut(env, "="); ok && strings.HasPrefix(name, EnvPrefix+"_") {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}

type transfer struct {
	to        string
	blockhash string
	amount    string
}

func newTransfer(t *testing.T) transfer {
	t.Helper()
	recipient, err := musig.GenerateSecretKey(nil)
	require.NoError(t, err)
	hash, err := musig.GenerateSecretKey(nil)
	require.NoError(t, err)
	return transfer{
		to:        recipient.PublicKey().String(),
		blockhash: hash.PublicKey().String(),
		amount:    "1.5",
	}
}

func (tr transfer) args(keys ...string) []string {
	return []string{
		"--keys", strings.Join(keys, ","),
		"--to", tr.to,
		"--amount", tr.amount,
		"--memo", "rent",
		"--recent-block-hash", tr.blockhash,
	}
}

func stepOne(t *testing.T, rpc *fakeRPC, p party) (message, state string) {
	t.Helper()
	out := mustRun(t, rpc, "agg-send-step-one", "--keypair", p.keypair)
	return field(t, out, "Message 1: "), field(t, out, "Secret state: ")
}

func stepTwo(t *testing.T, rpc *fakeRPC, p party, tr transfer, state string, messages []string, keys []string, extra ...string) (string, error) {
	t.Helper()
	args := append([]string{"agg-send-step-two",
		"--keypair", p.keypair,
		"--secret-state", state,
		"--first-messages", strings.Join(messages, ","),
	}, tr.args(keys...)...)
	out, err := run(t, rpc, append(args, extra...)...)
	if err != nil {
		return "", err
	}
	return field(t, out, "Partial signature: "), nil
}

func TestTwoPartyTransfer(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	keys := []string{alice.public, bob.public}

	aggregated := field(t, mustRun(t, rpc, append([]string{"aggregate-keys"}, keys...)...), "The Aggregated Public Key: ")
	reversed := field(t, mustRun(t, rpc, "aggregate-keys", bob.public, alice.public), "The Aggregated Public Key: ")
	assert.Equal(t, aggregated, reversed)

	tr := newTransfer(t)
	msgA, stateA := stepOne(t, rpc, alice)
	msgB, stateB := stepOne(t, rpc, bob)
	messages := []string{msgA, msgB}

	sigA, err := stepTwo(t, rpc, alice, tr, stateA, messages, keys)
	require.NoError(t, err)
	sigB, err := stepTwo(t, rpc, bob, tr, stateB, messages, keys)
	require.NoError(t, err)

	out := mustRun(t, rpc, append([]string{"aggregate-signatures-and-broadcast",
		"--signatures", sigA + "," + sigB}, tr.args(keys...)...)...)
	assert.Equal(t, "tx-id", field(t, out, "Transaction ID: "))

	tx := rpc.lastSent(t)
	require.True(t, tx.IsSigned())
	assert.Equal(t, aggregated, tx.GetFeePayer().String())

	message, err := tx.Message.Serialize()
	require.NoError(t, err)
	aggKey, err := musig.ParsePublicKeyBase58(aggregated)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(aggKey.Bytes(), message, tx.Signatures[0][:]))
}

func TestMismatchedAmountIsRejected(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	keys := []string{alice.public, bob.public}
	tr := newTransfer(t)

	msgA, stateA := stepOne(t, rpc, alice)
	msgB, stateB := stepOne(t, rpc, bob)
	messages := []string{msgA, msgB}

	sigA, err := stepTwo(t, rpc, alice, tr, stateA, messages, keys)
	require.NoError(t, err)
	other := tr
	other.amount = "1.6"
	sigB, err := stepTwo(t, rpc, bob, other, stateB, messages, keys)
	require.NoError(t, err)

	_, err = run(t, rpc, append([]string{"aggregate-signatures-and-broadcast",
		"--signatures", sigA + "," + sigB}, tr.args(keys...)...)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, musig.ErrInvalidAggregateSignature)
	assert.Empty(t, rpc.sent)
}

func TestStepTwoAddsOwnCommitment(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	keys := []string{alice.public, bob.public}
	tr := newTransfer(t)

	msgA, stateA := stepOne(t, rpc, alice)
	msgB, stateB := stepOne(t, rpc, bob)

	sigA, err := stepTwo(t, rpc, alice, tr, stateA, []string{msgB}, keys)
	require.NoError(t, err)
	sigB, err := stepTwo(t, rpc, bob, tr, stateB, []string{msgA}, keys)
	require.NoError(t, err)

	mustRun(t, rpc, append([]string{"aggregate-signatures-and-broadcast",
		"--signatures", sigB + "," + sigA}, tr.args(keys...)...)...)
	assert.True(t, rpc.lastSent(t).IsSigned())
}

func TestNonceLedgerRejectsSecondSigning(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}
	ledger := filepath.Join(t.TempDir(), "ledger")

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	keys := []string{alice.public, bob.public}
	tr := newTransfer(t)

	msgA, stateA := stepOne(t, rpc, alice)
	msgB, _ := stepOne(t, rpc, bob)
	messages := []string{msgA, msgB}

	_, err := stepTwo(t, rpc, alice, tr, stateA, messages, keys, "--nonce-ledger", ledger)
	require.NoError(t, err)

	other := tr
	other.amount = "2"
	_, err = stepTwo(t, rpc, alice, other, stateA, messages, keys, "--nonce-ledger", ledger)
	assert.ErrorIs(t, err, musig.ErrNonceAlreadyConsumed)
}

func TestDefaultNonceLedgerRejectsSecondSigning(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	keys := []string{alice.public, bob.public}
	tr := newTransfer(t)

	msgA, stateA := stepOne(t, rpc, alice)
	msgB, _ := stepOne(t, rpc, bob)
	messages := []string{msgA, msgB}

	_, err := stepTwo(t, rpc, alice, tr, stateA, messages, keys)
	require.NoError(t, err)

	entries, err := os.ReadDir(DefaultNonceLedgerDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	other := tr
	other.amount = "2"
	_, err = stepTwo(t, rpc, alice, other, stateA, messages, keys)
	assert.ErrorIs(t, err, musig.ErrNonceAlreadyConsumed)
	assert.Equal(t, "NONCE_ALREADY_CONSUMED", classifyError(err))

	// the same state is refused for the original message too
	_, err = stepTwo(t, rpc, alice, tr, stateA, messages, keys)
	assert.ErrorIs(t, err, musig.ErrNonceAlreadyConsumed)
}

func TestNoNonceLedgerOptOut(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	keys := []string{alice.public, bob.public}
	tr := newTransfer(t)

	msgA, stateA := stepOne(t, rpc, alice)
	msgB, _ := stepOne(t, rpc, bob)
	messages := []string{msgA, msgB}

	_, err := stepTwo(t, rpc, alice, tr, stateA, messages, keys, "--no-nonce-ledger")
	require.NoError(t, err)
	_, err = os.Stat(DefaultNonceLedgerDir())
	assert.True(t, os.IsNotExist(err))

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	_, err = stepTwo(t, rpc, alice, tr, stateA, messages, keys)
	assert.ErrorContains(t, err, "no nonce ledger directory")
}

func TestSessionFileSuppliesParameters(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}
	sessionPath := filepath.Join(t.TempDir(), "session.yaml")

	alice, bob := newParty(t, rpc), newParty(t, rpc)
	tr := newTransfer(t)

	mustRun(t, rpc, "aggregate-keys", alice.public, bob.public,
		"--write-session", sessionPath,
		"--to", tr.to,
		"--amount", tr.amount,
		"--recent-block-hash", tr.blockhash)

	file, err := LoadSessionFile(sessionPath)
	require.NoError(t, err)
	assert.Len(t, file.Keys, 2)
	assert.Equal(t, tr.to, file.To)
	assert.Equal(t, 1.5, file.Amount)
	assert.Equal(t, string(musig.DefaultNetwork), file.Net)

	info, err := os.Stat(sessionPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	msgA, stateA := stepOne(t, rpc, alice)
	msgB, stateB := stepOne(t, rpc, bob)
	messages := msgA + "," + msgB

	var partials []string
	for _, p := range []struct {
		party
		state string
	}{{alice, stateA}, {bob, stateB}} {
		out := mustRun(t, rpc, "agg-send-step-two",
			"--session-file", sessionPath,
			"--keypair", p.keypair,
			"--secret-state", p.state,
			"--first-messages", messages)
		partials = append(partials, field(t, out, "Partial signature: "))
	}

	mustRun(t, rpc, "aggregate-signatures-and-broadcast",
		"--session-file", sessionPath,
		"--signatures", strings.Join(partials, ","))
	assert.True(t, rpc.lastSent(t).IsSigned())
}

func TestRPCCommands(t *testing.T) {
	isolate(t)
	sk, err := musig.GenerateSecretKey(nil)
	require.NoError(t, err)
	rpc := &fakeRPC{balance: 2_500_000_000, blockhash: sk.PublicKey().Address()}

	out := mustRun(t, rpc, "balance", sk.PublicKey().String())
	assert.Equal(t, "The balance of "+sk.PublicKey().String()+" is: 2.5 SOL\n", out)

	out = mustRun(t, rpc, "airdrop", "--to", sk.PublicKey().String(), "--amount", "1")
	assert.Contains(t, out, "airdrop-"+sk.PublicKey().String())

	out = mustRun(t, rpc, "recent-block-hash")
	assert.Equal(t, sk.PublicKey().String(), field(t, out, "Recent block hash: "))

	recipient, err := musig.GenerateSecretKey(nil)
	require.NoError(t, err)
	mustRun(t, rpc, "send-single", "--keypair", sk.Base58(), "--to", recipient.PublicKey().String(), "--amount", "0.25")

	tx := rpc.lastSent(t)
	message, err := tx.Message.Serialize()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(sk.PublicKey().Bytes(), message, tx.Signatures[0][:]))

	mustRun(t, rpc, "--net", "devnet", "balance", sk.PublicKey().String())
	assert.Equal(t, musig.NetworkDevnet.RPCURL(), rpc.endpoints[len(rpc.endpoints)-1])

	mustRun(t, rpc, "--rpc-url", "http://127.0.0.1:8899", "balance", sk.PublicKey().String())
	assert.Equal(t, "http://127.0.0.1:8899", rpc.endpoints[len(rpc.endpoints)-1])
}

func TestInvalidInputs(t *testing.T) {
	isolate(t)
	rpc := &fakeRPC{}
	alice := newParty(t, rpc)

	_, err := run(t, rpc, "aggregate-keys", alice.public)
	assert.ErrorIs(t, err, musig.ErrInvalidKeySet)

	_, err = run(t, rpc, "aggregate-keys", alice.public, alice.public)
	assert.ErrorIs(t, err, musig.ErrInvalidKeySet)

	_, err = run(t, rpc, "agg-send-step-one", "--keypair", "not-base58-0OIl")
	assert.ErrorIs(t, err, musig.ErrInvalidSecretKey)

	_, err = run(t, rpc, "--net", "moonnet", "generate")
	assert.Error(t, err)

	app := NewApp(
		WithOutput(io.Discard),
		WithErrorOutput(io.Discard),
		WithRandom(iotest.ErrReader(errors.New("entropy exhausted"))),
	)
	err = app.Execute(context.Background(), []string{"generate"})
	assert.ErrorIs(t, err, musig.ErrRandomnessGeneration)
}

func TestKeypairFile(t *testing.T) {
	sk, err := musig.GenerateSecretKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()

	base58Path := filepath.Join(dir, "id.txt")
	require.NoError(t, os.WriteFile(base58Path, []byte(sk.Base58()+"\n"), 0o600))
	parsed, err := parseKeypair(base58Path)
	require.NoError(t, err)
	assert.True(t, parsed.PublicKey().Equal(sk.PublicKey()))

	var numbers []string
	for _, b := range sk.Keypair() {
		numbers = append(numbers, strconv.Itoa(int(b)))
	}
	jsonPath := filepath.Join(dir, "id.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("["+strings.Join(numbers, ",")+"]"), 0o600))
	parsed, err = parseKeypair(jsonPath)
	require.NoError(t, err)
	assert.True(t, parsed.PublicKey().Equal(sk.PublicKey()))

	_, err = parseKeypair("")
	assert.Error(t, err)
}
