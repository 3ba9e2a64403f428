package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"mintgate/internal/audit"
	"mintgate/internal/mint/authorization"
	"mintgate/internal/mint/eligibility"
	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/pool"
	"mintgate/internal/mint/store/claim"
	"mintgate/internal/mint/store/counter"
	"mintgate/internal/mint/store/identifier"
	"mintgate/internal/mint/store/record"
	"mintgate/internal/mint/store/whitelist"
	"mintgate/pkg/requestcontext"
)

const authKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return wallet{key: key, address: models.NormalizeAddress(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())}
}

// login returns a fresh signed login message, as the frontend produces.
func (w wallet) login(t *testing.T) AuthorizeRequest {
	t.Helper()
	msg := fmt.Sprintf("Sign in to mint your NFT. Unique ID: %s.", uuid.NewString())
	return AuthorizeRequest{SignedMessage: w.sign(t, msg), OriginalMessage: msg}
}

func (w wallet) sign(t *testing.T, msg string) string {
	t.Helper()
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(msg)), w.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

type capturingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *capturingAuditor) Emit(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturingAuditor) actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	records   *record.InMemoryStore
	whitelist *whitelist.InMemoryStore
	counters  *counter.InMemoryStore
	allocator *pool.Allocator
	auditor   *capturingAuditor
	metrics   *metrics.Metrics
	service   *Service
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctx := context.Background()
	layout, err := pool.NewLayout([]int{50, 100, 200})
	s.Require().NoError(err)

	s.records = record.NewInMemoryStore()
	s.whitelist = whitelist.NewInMemoryStore()
	s.counters = counter.NewInMemoryStore()
	ids := identifier.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err = pool.NewBuilder(layout, ids, s.counters, pool.WithBuilderLogger(logger)).Build(ctx, nil)
	s.Require().NoError(err)
	s.allocator = pool.NewAllocator(layout, s.counters, ids)

	signer, err := authorization.NewSigner(authKeyHex)
	s.Require().NoError(err)

	s.auditor = &capturingAuditor{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(
		eligibility.New(s.records, s.whitelist),
		authorization.NewIssuer(s.allocator, s.records, signer),
		s.records,
		claim.NewInMemoryStore(),
		layout,
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.auditor),
		WithStatusReporter(s.allocator),
	)
	s.now = time.Unix(1_700_000_000, 0)
}

func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *ServiceSuite) whitelisted(category int) wallet {
	w := newWallet(s.T())
	s.whitelist.Add(models.WhitelistEntry{Address: w.address, Category: category})
	return w
}

func (s *ServiceSuite) TestEndToEndAuthorizeRegisterThenAlreadyMinted() {
	w := s.whitelisted(1)

	auth, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)
	s.GreaterOrEqual(auth.TokenID, int64(51))
	s.LessOrEqual(auth.TokenID, int64(150))
	s.Len(auth.Nonce, 66)
	s.Equal(s.now.Unix(), auth.Timestamp)

	msg := "Registering token"
	err = s.service.Register(s.at(time.Minute), models.RegistrationClaim{
		SignedMessage:   w.sign(s.T(), msg),
		OriginalMessage: msg,
		Nonce:           auth.Nonce,
		TokenID:         auth.TokenID,
		TokenURI:        "ipfs://token",
		TransactionHash: "0xabc123",
		BlockNumber:     42,
		GasUsed:         120000,
	})
	s.Require().NoError(err)

	rec, err := s.records.FindByID(context.Background(), auth.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StateConfirmed, rec.State)
	s.Equal("0xabc123", rec.TransactionHash)
	s.Equal(models.SourceRegistration, rec.ConfirmedBy)

	_, err = s.service.Authorize(s.at(2*time.Minute), w.login(s.T()))
	am, ok := models.AsAlreadyMinted(err)
	s.Require().True(ok)
	s.Equal("ipfs://token", am.TokenURI)

	s.Equal([]audit.Action{audit.ActionAuthorized, audit.ActionConfirmed}, s.auditor.actions())
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.AuthorizeOutcome.WithLabelValues("already_minted")))
}

func (s *ServiceSuite) TestRetryInsideGraceWindowIsTooSoon() {
	w := s.whitelisted(0)
	_, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)

	_, err = s.service.Authorize(s.at(359*time.Second), w.login(s.T()))
	s.ErrorIs(err, models.ErrTooSoonToRetry)
}

func (s *ServiceSuite) TestRetryAfterGraceWindowReissuesSameAuthorization() {
	w := s.whitelisted(2)
	first, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)

	second, err := s.service.Authorize(s.at(361*time.Second), w.login(s.T()))
	s.Require().NoError(err)

	s.True(second.Reissued)
	s.Equal(first.Nonce, second.Nonce)
	s.Equal(first.TokenID, second.TokenID)
	s.Equal(first.Category, second.Category)

	cur, err := s.counters.Current(context.Background(), models.CounterName(2))
	s.Require().NoError(err)
	s.Equal(int64(1), cur)
	s.Equal([]audit.Action{audit.ActionAuthorized, audit.ActionReissued}, s.auditor.actions())
}

func (s *ServiceSuite) TestSignedMessageCannotBeReplayed() {
	w := s.whitelisted(0)
	req := w.login(s.T())
	_, err := s.service.Authorize(s.at(0), req)
	s.Require().NoError(err)

	_, err = s.service.Authorize(s.at(10*time.Second), req)
	s.ErrorIs(err, models.ErrReplayedMessage)
}

func (s *ServiceSuite) TestReencodedSignatureIsStillAReplay() {
	w := s.whitelisted(0)
	req := w.login(s.T())
	_, err := s.service.Authorize(s.at(0), req)
	s.Require().NoError(err)

	sig, err := hexutil.Decode(req.SignedMessage)
	s.Require().NoError(err)
	sig[64] -= 27
	reencoded := AuthorizeRequest{SignedMessage: hexutil.Encode(sig), OriginalMessage: req.OriginalMessage}

	_, err = s.service.Authorize(s.at(10*time.Second), reencoded)
	s.ErrorIs(err, models.ErrReplayedMessage)

	upper := AuthorizeRequest{SignedMessage: "0x" + strings.ToUpper(req.SignedMessage[2:]), OriginalMessage: req.OriginalMessage}
	_, err = s.service.Authorize(s.at(10*time.Second), upper)
	s.ErrorIs(err, models.ErrReplayedMessage)
}

func (s *ServiceSuite) TestFailedAttemptDoesNotBurnSignedMessage() {
	w := newWallet(s.T())
	req := w.login(s.T())

	_, err := s.service.Authorize(s.at(0), req)
	s.ErrorIs(err, models.ErrNotWhitelisted)
	_, err = s.service.Authorize(s.at(0), req)
	s.ErrorIs(err, models.ErrNotWhitelisted)
}

func (s *ServiceSuite) TestMissingFieldsAndBadSignature() {
	_, err := s.service.Authorize(s.at(0), AuthorizeRequest{OriginalMessage: "hi"})
	s.ErrorIs(err, models.ErrMissingFields)

	_, err = s.service.Authorize(s.at(0), AuthorizeRequest{SignedMessage: "0x1234", OriginalMessage: "hi"})
	s.ErrorIs(err, models.ErrSignatureInvalid)
}

func (s *ServiceSuite) TestMultipleWhitelistRowsUseOverflowCategory() {
	w := s.whitelisted(0)
	s.whitelist.Add(models.WhitelistEntry{Address: w.address, Category: 1})

	auth, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)
	s.Equal(2, auth.Category)
	s.GreaterOrEqual(auth.TokenID, int64(151))
}

func (s *ServiceSuite) TestConcurrentAuthorizeDistinctAddresses() {
	const n = 40
	wallets := make([]wallet, n)
	reqs := make([]AuthorizeRequest, n)
	for i := range wallets {
		wallets[i] = s.whitelisted(1)
		reqs[i] = wallets[i].login(s.T())
	}

	var mu sync.Mutex
	seen := make(map[int64]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			auth, err := s.service.Authorize(s.at(0), reqs[i])
			s.NoError(err)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			prev, dup := seen[auth.TokenID]
			s.False(dup, "token %d issued to %s and %s", auth.TokenID, prev, wallets[i].address)
			seen[auth.TokenID] = wallets[i].address
		}(i)
	}
	wg.Wait()
	s.Len(seen, n)
}

func (s *ServiceSuite) TestConcurrentAuthorizeSameOwnerIssuesOnce() {
	w := s.whitelisted(0)
	const n = 20
	reqs := make([]AuthorizeRequest, n)
	for i := range reqs {
		reqs[i] = w.login(s.T())
	}

	var mu sync.Mutex
	var issued, tooSoon int
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.service.Authorize(s.at(0), reqs[i])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, models.ErrTooSoonToRetry):
				tooSoon++
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, issued)
	s.Equal(n-1, tooSoon)
	cur, err := s.counters.Current(context.Background(), models.CounterName(0))
	s.Require().NoError(err)
	s.Equal(int64(1), cur)
}

func (s *ServiceSuite) TestExhaustedCategory() {
	for i := 0; i < 50; i++ {
		_, err := s.allocator.Allocate(context.Background(), 0)
		s.Require().NoError(err)
	}
	w := s.whitelisted(0)
	_, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.ErrorIs(err, models.ErrCategoryExhausted)
}

func (s *ServiceSuite) TestRegisterRejectsOtherSigner() {
	owner := s.whitelisted(1)
	auth, err := s.service.Authorize(s.at(0), owner.login(s.T()))
	s.Require().NoError(err)

	thief := newWallet(s.T())
	err = s.service.Register(s.at(time.Minute), models.RegistrationClaim{
		SignedMessage:   thief.sign(s.T(), "register"),
		OriginalMessage: "register",
		Nonce:           auth.Nonce,
		TokenID:         auth.TokenID,
	})
	s.ErrorIs(err, models.ErrRegistrationMismatch)

	rec, err := s.records.FindByID(context.Background(), auth.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StatePending, rec.State)
	s.Contains(s.auditor.actions(), audit.ActionRegistrationRejected)
}

func (s *ServiceSuite) TestRegisterRejectsWrongNonceAndUnknownToken() {
	w := s.whitelisted(1)
	auth, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)

	base := models.RegistrationClaim{SignedMessage: w.sign(s.T(), "register"), OriginalMessage: "register"}

	wrongNonce := base
	wrongNonce.TokenID = auth.TokenID
	wrongNonce.Nonce = "0x" + fmt.Sprintf("%064x", 1)
	s.ErrorIs(s.service.Register(s.at(0), wrongNonce), models.ErrRegistrationMismatch)

	unknown := base
	unknown.TokenID = 9999
	unknown.Nonce = auth.Nonce
	s.ErrorIs(s.service.Register(s.at(0), unknown), models.ErrRegistrationMismatch)

	missing := base
	s.ErrorIs(s.service.Register(s.at(0), missing), models.ErrMissingFields)
}

func (s *ServiceSuite) TestRegisterKeepsChainEvidence() {
	w := s.whitelisted(1)
	auth, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)

	s.Require().NoError(s.service.Confirm(s.at(time.Minute), models.ConfirmationEvidence{
		TokenID:         auth.TokenID,
		TokenURI:        "ipfs://from-chain",
		Recipient:       w.address,
		TransactionHash: "0xc4a1",
		BlockNumber:     77,
		GasUsed:         91000,
		Source:          models.SourceChainEvent,
	}))
	before, err := s.records.FindByID(context.Background(), auth.TokenID)
	s.Require().NoError(err)

	msg := "Registering token"
	err = s.service.Register(s.at(2*time.Minute), models.RegistrationClaim{
		SignedMessage:   w.sign(s.T(), msg),
		OriginalMessage: msg,
		Nonce:           auth.Nonce,
		TokenID:         auth.TokenID,
		TokenURI:        "ipfs://from-client",
		TransactionHash: "0xbad",
		BlockNumber:     1,
		GasUsed:         1,
	})
	s.Require().NoError(err)

	after, err := s.records.FindByID(context.Background(), auth.TokenID)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Equal("ipfs://from-chain", after.TokenURI)
	s.Equal(models.SourceChainEvent, after.ConfirmedBy)

	_, err = s.service.Authorize(s.at(3*time.Minute), w.login(s.T()))
	am, ok := models.AsAlreadyMinted(err)
	s.Require().True(ok)
	s.Equal("ipfs://from-chain", am.TokenURI)
}

func (s *ServiceSuite) TestConfirmIsIdempotent() {
	w := s.whitelisted(1)
	auth, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)

	ev := models.ConfirmationEvidence{
		TokenID:         auth.TokenID,
		TokenURI:        "ipfs://x",
		Recipient:       w.address,
		TransactionHash: "0xfeed",
		BlockNumber:     10,
		GasUsed:         50000,
		Source:          models.SourceChainEvent,
	}
	s.Require().NoError(s.service.Confirm(s.at(time.Minute), ev))
	first, err := s.records.FindByID(context.Background(), auth.TokenID)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Confirm(s.at(time.Minute), ev))
	second, err := s.records.FindByID(context.Background(), auth.TokenID)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(auth.Nonce, second.Nonce)
}

func (s *ServiceSuite) TestConfirmUnknownTokenCreatesRecordInItsCategory() {
	ev := models.ConfirmationEvidence{TokenID: 160, TokenURI: "ipfs://160", Recipient: "0xABCDEF", Source: models.SourceChainEvent}
	s.Require().NoError(s.service.Confirm(s.at(0), ev))

	rec, err := s.records.FindByID(context.Background(), 160)
	s.Require().NoError(err)
	s.Equal(2, rec.Category)
	s.Equal("0xabcdef", rec.Owner)
	s.True(rec.IsConfirmed())
}

func (s *ServiceSuite) TestStatus() {
	w := s.whitelisted(1)
	_, err := s.service.Authorize(s.at(0), w.login(s.T()))
	s.Require().NoError(err)

	status, err := s.service.Status(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), status[1].Allocated)
	s.Equal(int64(99), status[1].Remaining)
}
