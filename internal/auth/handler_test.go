package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aolus-software/rbac-api/internal/auth"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Auth Handler", func() {
	var (
		f       *fixture
		handler *auth.Handler
	)

	BeforeEach(func() {
		f = newFixture()
		handler = auth.NewHandler(&transport.BaseHandler{Logger: logger.Discard()}, f.service)
	})

	post := func(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	It("registers with 201 and a success envelope", func() {
		rec := post(handler.Register, `{"name":"Jane","email":"jane@x.com","password":"Aa1!aaaa"}`)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		body := decodeEnvelope(rec)
		Expect(body.Success).To(BeTrue())
		Expect(body.Message).To(Equal("Registration successful"))
	})

	It("maps validation failures to 422 with field-tagged messages", func() {
		rec := post(handler.Login, `{"email":"not-an-email","password":"short"}`)

		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		body := decodeEnvelope(rec)
		Expect(body.Success).To(BeFalse())
		Expect(body.Errors).To(HaveKey("email"))
		Expect(body.Errors).To(HaveKey("password"))
	})

	It("rejects malformed JSON with 400", func() {
		rec := post(handler.Login, `{"email":`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers forgot-password identically for unknown emails", func() {
		rec := post(handler.ForgotPassword, `{"email":"nobody@x.com"}`)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decodeEnvelope(rec).Message).To(Equal("Password reset email sent"))
	})

	It("returns 422 for an unknown verification token", func() {
		rec := post(handler.VerifyEmail, `{"token":"0000000000000000"}`)

		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(decodeEnvelope(rec).Errors["token"]).To(ContainElement("The provided verification token is invalid"))
	})
})
