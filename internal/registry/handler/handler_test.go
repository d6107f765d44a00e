package handler

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custodia/internal/ledger"
	"custodia/internal/payment"
	"custodia/internal/registry/handler/mocks"
	"custodia/internal/registry/models"
	"custodia/pkg/contenthash"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type RegistryHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	alice   id.Address
	custody id.Address
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

func (s *RegistryHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger, testutil.NameValidator{}).Register(s.router)
	s.alice = testutil.Address("alice")
	s.custody = testutil.Address("custody")
}

func (s *RegistryHandlerSuite) TestCreateCertificate() {
	s.Run("defaults the payment sender to the caller", func() {
		s.service.EXPECT().CreateCertificate(gomock.Any(), id.ContentHash("abc"), ledger.Payment{
			Sender:    s.alice,
			Recipient: s.custody,
			Amount:    153_700,
		}).Return(id.AssetID(3), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/registry/certificates", CreateCertificateRequest{
			ContentHash: "abc",
			Payment:     payment.Request{Recipient: s.custody, Amount: 153_700},
		})
		rr := testutil.DoRequest(s.router, testutil.Authorize(req, "alice"))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[CertificateResponse](s.T(), rr)
		s.Equal(id.AssetID(3), resp.AssetID)
		s.Equal(s.alice, resp.Owner)
		s.Nil(resp.CID)
	})

	s.Run("maps conflicts", func() {
		s.service.EXPECT().CreateCertificate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(id.AssetID(0), dErrors.New(dErrors.CodeConflict, "certificate already exists for content hash"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/registry/certificates", CreateCertificateRequest{
			ContentHash: "abc",
			Payment:     payment.Request{Recipient: s.custody, Amount: 153_700},
		})
		rr := testutil.DoRequest(s.router, testutil.Authorize(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("requires authentication", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/registry/certificates", CreateCertificateRequest{ContentHash: "abc"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("rejects invalid hashes before the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/registry/certificates", CreateCertificateRequest{ContentHash: "a/b"})
		rr := testutil.DoRequest(s.router, testutil.Authorize(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("rejects unknown fields", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/registry/certificates", `{"content_hash":"abc","owner":"x"}`)
		rr := testutil.DoRequest(s.router, testutil.Authorize(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *RegistryHandlerSuite) TestClaimCertificate() {
	s.service.EXPECT().ClaimCertificate(gomock.Any(), id.ContentHash("abc")).
		Return(nil, dErrors.New(dErrors.CodePreconditionFailed, "caller must register for asset 3 before claiming"))

	req := testutil.NewRequest(s.T(), http.MethodPost, "/registry/certificates/abc/claim")
	rr := testutil.DoRequest(s.router, testutil.Authorize(req, "alice"))
	testutil.AssertStatus(s.T(), rr, http.StatusPreconditionFailed)
	body := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("precondition_failed", body.Error)
	s.Contains(body.ErrorDescription, "register")
}

func (s *RegistryHandlerSuite) TestGetCertificate() {
	hash, err := contenthash.Compute([]byte("hello"))
	s.Require().NoError(err)
	s.service.EXPECT().GetCertificate(gomock.Any(), hash).
		Return(&models.CertificateRecord{ContentHash: hash, AssetID: 9, Owner: s.alice}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/registry/certificates/"+hash.String()))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[CertificateResponse](s.T(), rr)
	s.Equal(s.alice, resp.Owner)
	s.Require().NotNil(resp.CID)
	s.Equal("sha2-256", resp.CID.HashName)
}

func (s *RegistryHandlerSuite) TestGetCertificateNotFound() {
	s.service.EXPECT().GetCertificate(gomock.Any(), id.ContentHash("missing")).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "certificate not found"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/registry/certificates/missing"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *RegistryHandlerSuite) TestQuote() {
	s.service.EXPECT().Quote().Return(models.Quote{Fees: models.DefaultFees(), TotalCost: 153_700, StorageCost: 53_700, Custody: s.custody})

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/registry/quote"))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[models.Quote](s.T(), rr)
	s.Equal(uint64(153_700), resp.TotalCost)
	s.Equal(s.custody, resp.Custody)
}

func (s *RegistryHandlerSuite) TestContentHash() {
	req := httptest.NewRequest(http.MethodPost, "/registry/content-hash", bytes.NewReader([]byte("hello")))
	req.Header.Set("Content-Type", "application/octet-stream")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[ContentHashResponse](s.T(), rr)
	s.Equal(5, resp.Size)
	s.True(contenthash.Verify(resp.ContentHash, []byte("hello")))
	_, err := id.ParseContentHash(resp.ContentHash.String())
	s.NoError(err)
}
