// Package paymenttest provides a configurable fake payment.Provider
// for tests.
package paymenttest

import (
	"context"
	"errors"

	"github.com/example/storefront/internal/payment"
)

// FakeProvider implements payment.Provider. Zero value behaves like a
// healthy provider that creates sessions and accepts refunds; fields
// override individual capabilities.
type FakeProvider struct {
	NameValue string

	CreateSessionFunc func(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error)
	CreateCalls       []payment.CreateSessionParams

	GetSessionFunc func(ctx context.Context, id string) (*payment.Session, error)

	ListPage *payment.SessionPage

	VerifyFunc func(payload []byte, signature string) (*payment.WebhookEvent, error)

	PaymentRefValue string
	PaymentRefErr   error

	RefundResult bool
	RefundCalls  []string

	SetupErr error
}

func (f *FakeProvider) Name() string {
	if f.NameValue == "" {
		return "fake"
	}
	return f.NameValue
}

func (f *FakeProvider) SignatureHeader() string { return "X-Fake-Signature" }

func (f *FakeProvider) CreateSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error) {
	f.CreateCalls = append(f.CreateCalls, params)
	if f.CreateSessionFunc != nil {
		return f.CreateSessionFunc(ctx, params)
	}
	return &payment.Session{ID: "cs_fake", URL: "https://pay.example/cs_fake", Status: "open"}, nil
}

func (f *FakeProvider) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	if f.GetSessionFunc != nil {
		return f.GetSessionFunc(ctx, id)
	}
	return &payment.Session{ID: id, Status: "complete", PaymentRef: f.PaymentRefValue}, nil
}

func (f *FakeProvider) ListSessions(ctx context.Context, params payment.ListParams) *payment.SessionPage {
	if f.ListPage != nil {
		return f.ListPage
	}
	return &payment.SessionPage{Sessions: []payment.Session{}}
}

func (f *FakeProvider) VerifyWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if f.VerifyFunc != nil {
		return f.VerifyFunc(payload, signature)
	}
	return nil, errors.New("no verify behavior configured")
}

func (f *FakeProvider) PaymentReference(ctx context.Context, sessionID string) (string, error) {
	if f.PaymentRefErr != nil {
		return "", f.PaymentRefErr
	}
	if f.PaymentRefValue == "" {
		return "", errors.New("no payment reference configured")
	}
	return f.PaymentRefValue, nil
}

func (f *FakeProvider) RefundPayment(ctx context.Context, reference string) bool {
	f.RefundCalls = append(f.RefundCalls, reference)
	return f.RefundResult
}

func (f *FakeProvider) SetupWebhook(ctx context.Context, url string) error {
	return f.SetupErr
}
