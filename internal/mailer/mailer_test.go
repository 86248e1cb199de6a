package mailer_test

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aolus-software/rbac-api/internal/core/events"
	"github.com/aolus-software/rbac-api/internal/mailer"
	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/aolus-software/rbac-api/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMailer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mailer Suite")
}

// MockSender fails the first failures calls, then records messages.
type MockSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []mailer.Message
}

func (m *MockSender) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *MockSender) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ = Describe("Dispatcher", func() {
	var (
		sender     *MockSender
		dispatcher *mailer.Dispatcher
		m          *metrics.Metrics
	)

	start := func(cfg mailer.DispatcherConfig) {
		m = metrics.New()
		dispatcher = mailer.NewDispatcher(sender, cfg, logger.Discard(), m)
		dispatcher.Start()
	}

	BeforeEach(func() {
		sender = &MockSender{}
	})

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		dispatcher.Shutdown(ctx)
	})

	It("delivers queued messages", func() {
		start(mailer.DispatcherConfig{Workers: 2, QueueSize: 10})

		for i := 0; i < 5; i++ {
			Expect(dispatcher.Enqueue(mailer.Message{Kind: mailer.KindTest, To: "a@x.com"})).To(Succeed())
		}

		Eventually(sender.Sent).WithTimeout(2 * time.Second).Should(HaveLen(5))
		Eventually(func() float64 {
			return testutil.ToFloat64(m.MailDeliveriesTotal.WithLabelValues(mailer.KindTest, "sent"))
		}).Should(Equal(5.0))
	})

	It("retries with backoff until a send succeeds", func() {
		sender.failures = 2
		start(mailer.DispatcherConfig{Workers: 1, QueueSize: 1, MaxAttempts: 3, Backoff: 5 * time.Millisecond})

		Expect(dispatcher.Enqueue(mailer.Message{Kind: mailer.KindTest})).To(Succeed())

		Eventually(sender.Sent).WithTimeout(2 * time.Second).Should(HaveLen(1))
		Expect(sender.Calls()).To(Equal(3))
	})

	It("gives up after the last attempt", func() {
		sender.failures = 10
		start(mailer.DispatcherConfig{Workers: 1, QueueSize: 1, MaxAttempts: 3, Backoff: time.Millisecond})

		Expect(dispatcher.Enqueue(mailer.Message{Kind: mailer.KindTest})).To(Succeed())

		Eventually(func() float64 {
			return testutil.ToFloat64(m.MailDeliveriesTotal.WithLabelValues(mailer.KindTest, "failed"))
		}).WithTimeout(2 * time.Second).Should(Equal(1.0))
		Expect(sender.Calls()).To(Equal(3))
	})

	It("refuses mail after shutdown", func() {
		start(mailer.DispatcherConfig{Workers: 1, QueueSize: 1})
		dispatcher.Shutdown(context.Background())

		Expect(dispatcher.Enqueue(mailer.Message{})).To(MatchError(mailer.ErrStopped))
	})
})

type queueRecorder struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (q *queueRecorder) Enqueue(msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

var _ = Describe("Register", func() {
	It("turns token events into mail with client links", func() {
		bus := events.NewEventBus(logger.Discard())
		queue := &queueRecorder{}
		mailer.Register(bus, queue, "https://app.example.com/")

		ctx := context.Background()
		Expect(bus.Publish(ctx, events.NewEmailVerificationRequestedEvent("u1", "Jane", "jane@x.com", "tok-1"))).To(Succeed())
		Expect(bus.Publish(ctx, events.NewPasswordResetRequestedEvent("u1", "Jane", "jane@x.com", "tok-2"))).To(Succeed())
		Expect(bus.Close(ctx)).To(Succeed())

		byKind := map[string]mailer.Message{}
		for _, m := range queue.msgs {
			byKind[m.Kind] = m
		}
		Expect(byKind).To(HaveLen(2))
		verify := byKind[mailer.KindEmailVerification]
		Expect(verify.To).To(Equal("jane@x.com"))
		Expect(verify.Body).To(ContainSubstring("https://app.example.com/auth/verify-email?token=tok-1"))
		Expect(byKind[mailer.KindPasswordReset].Body).To(ContainSubstring("https://app.example.com/auth/reset-password?token=tok-2"))
	})
})

var _ = Describe("SMTPSender", func() {
	It("composes a plain text message with headers", func() {
		var captured []byte
		var capturedAddr string
		sender := mailer.NewSMTPSenderWithTransport(mailer.SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "no-reply@example.com"},
			func(addr string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
				capturedAddr = addr
				captured = msg
				return nil
			})

		err := sender.Send(context.Background(), mailer.Message{To: "jane@x.com", Subject: "Hello", Body: "line one\nline two"})

		Expect(err).NotTo(HaveOccurred())
		Expect(capturedAddr).To(Equal("smtp.example.com:2525"))
		text := string(captured)
		Expect(text).To(ContainSubstring("To: jane@x.com\r\n"))
		Expect(text).To(ContainSubstring("Subject: Hello\r\n"))
		Expect(strings.HasSuffix(text, "line one\r\nline two")).To(BeTrue())
	})
})
