package authorization

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/store/record"
	"mintgate/pkg/requestcontext"
)

const (
	authKeyHex   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	walletKeyHex = "0x8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

func TestNewSigner(t *testing.T) {
	s, err := NewSigner(authKeyHex)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), s.Address())

	_, err = NewSigner("")
	assert.Error(t, err)
	_, err = NewSigner("0xzz")
	assert.Error(t, err)
}

func TestPackMessageLayout(t *testing.T) {
	var nonce [32]byte
	nonce[0], nonce[31] = 0xaa, 0xbb
	owner := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	packed := PackMessage(nonce, owner, 51, 1_700_000_000)
	require.Len(t, packed, 116)
	assert.Equal(t, nonce[:], packed[:32])
	assert.Equal(t, owner.Bytes(), packed[32:52])
	assert.Equal(t, byte(51), packed[83])
	assert.True(t, bytes.Equal(make([]byte, 31), packed[52:83]))
	assert.Equal(t, common.LeftPadBytes(hexutil.MustDecode("0x6553f100"), 32), packed[84:116])
	assert.Len(t, MessageHash(nonce, owner, 51, 1_700_000_000), 32)
}

func TestSignAndRecoverRoundTrip(t *testing.T) {
	wallet, err := NewSigner(walletKeyHex)
	require.NoError(t, err)

	msg := "Sign in to mint. Unique ID: 4b0f6a5c-0a57-4a4e-9f30-2f2f0f3e9f71."
	sig, err := wallet.SignPersonal([]byte(msg))
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])

	got, err := RecoverPersonalSigner(msg, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), got)

	other, err := RecoverPersonalSigner(msg+" tampered", hexutil.Encode(sig))
	require.NoError(t, err)
	assert.NotEqual(t, wallet.Address(), other)

	sig[64] -= 27
	got, err = RecoverPersonalSigner(msg, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), got)
}

func TestRecoverRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not hex":     "hello",
		"too short":   "0x1234",
		"bad v":       hexutil.Encode(append(make([]byte, 64), 5)),
		"zero scalar": hexutil.Encode(append(make([]byte, 64), 27)),
	}
	for name, sig := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := RecoverPersonalSigner("msg", sig)
			assert.ErrorIs(t, err, models.ErrSignatureInvalid)
		})
	}
}

func TestParseNonce(t *testing.T) {
	n, err := ParseNonce("0x" + string(bytes.Repeat([]byte("ab"), 32)))
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), n[31])

	_, err = ParseNonce("0xabcd")
	assert.Error(t, err)
	_, err = ParseNonce("abcd")
	assert.Error(t, err)
}

type fixedAllocator struct {
	id    int64
	err   error
	calls int
}

func (a *fixedAllocator) Allocate(context.Context, int) (int64, error) {
	a.calls++
	return a.id, a.err
}

type IssuerSuite struct {
	suite.Suite
	signer  *Signer
	records *record.InMemoryStore
	alloc   *fixedAllocator
	issuer  *Issuer
	now     time.Time
	ctx     context.Context
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	var err error
	s.signer, err = NewSigner(authKeyHex)
	s.Require().NoError(err)
	s.records = record.NewInMemoryStore()
	s.alloc = &fixedAllocator{id: 73}
	s.issuer = NewIssuer(s.alloc, s.records, s.signer, WithEntropy(bytes.NewReader(bytes.Repeat([]byte{0x11}, 64))))
	s.now = time.Unix(1_700_000_000, 0)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *IssuerSuite) TestFreshIssuePersistsPending() {
	owner := "0x00000000000000000000000000000000000ABC01"
	auth, err := s.issuer.Issue(s.ctx, IssueRequest{Address: owner, Category: 1})
	s.Require().NoError(err)

	s.Equal(int64(73), auth.TokenID)
	s.Equal(s.now.Unix(), auth.Timestamp)
	s.Equal("0x"+string(bytes.Repeat([]byte("11"), 32)), auth.Nonce)
	s.False(auth.Reissued)

	rec, err := s.records.FindByID(s.ctx, 73)
	s.Require().NoError(err)
	s.Equal(models.StatePending, rec.State)
	s.Equal(auth.Nonce, rec.Nonce)
	s.Equal(models.NormalizeAddress(owner), rec.Owner)
	s.Equal(1, rec.Category)

	nonce, err := ParseNonce(auth.Nonce)
	s.Require().NoError(err)
	hash := MessageHash(nonce, common.HexToAddress(owner), auth.TokenID, auth.Timestamp)
	signer, err := RecoverPersonalSigner(string(hash), auth.Signature)
	s.Require().NoError(err)
	s.Equal(s.signer.Address(), signer)
}

func (s *IssuerSuite) TestReissueKeepsNonceAndIdentifier() {
	owner := "0x00000000000000000000000000000000000abc01"
	first, err := s.issuer.Issue(s.ctx, IssueRequest{Address: owner, Category: 1})
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), s.now.Add(10*time.Minute))
	req := RequestFor(owner, models.Reissue{Nonce: first.Nonce, TokenID: first.TokenID, Category: 1})
	second, err := s.issuer.Issue(later, req)
	s.Require().NoError(err)

	s.True(second.Reissued)
	s.Equal(first.Nonce, second.Nonce)
	s.Equal(first.TokenID, second.TokenID)
	s.NotEqual(first.Signature, second.Signature)
	s.Equal(1, s.alloc.calls)

	rec, err := s.records.FindByID(s.ctx, first.TokenID)
	s.Require().NoError(err)
	s.Equal(s.now.Add(10*time.Minute).Unix(), rec.IssuedAt)
}

func (s *IssuerSuite) TestAllocatorErrorPropagates() {
	s.alloc.err = models.ErrCategoryExhausted
	_, err := s.issuer.Issue(s.ctx, IssueRequest{Address: "0x00000000000000000000000000000000000abc01", Category: 0})
	s.ErrorIs(err, models.ErrCategoryExhausted)
}

func (s *IssuerSuite) TestIdentifierConflictFailsIssue() {
	s.Require().NoError(s.records.Create(s.ctx, models.MintRecord{TokenID: 73, Owner: "0xdef", State: models.StatePending}))
	_, err := s.issuer.Issue(s.ctx, IssueRequest{Address: "0x00000000000000000000000000000000000abc01", Category: 0})
	s.Require().Error(err)
	s.Contains(err.Error(), "already recorded")
}

func (s *IssuerSuite) TestRejectsBadAddress() {
	_, err := s.issuer.Issue(s.ctx, IssueRequest{Address: "0xnothex", Category: 0})
	s.Error(err)
	s.Zero(s.alloc.calls)
}

func (s *IssuerSuite) TestEntropyFailure() {
	issuer := NewIssuer(s.alloc, s.records, s.signer, WithEntropy(bytes.NewReader(nil)))
	_, err := issuer.Issue(s.ctx, IssueRequest{Address: "0x00000000000000000000000000000000000abc01"})
	s.Error(err)
	s.False(errors.Is(err, models.ErrStoreUnavailable))
}
