package checkout

import (
	"testing"

	pkgstripe "github.com/tomascarrillo/shoply-backend/pkg/stripe"
)

func TestNewStripeIntentClientAcceptsSharedClient(t *testing.T) {
	if client := NewStripeIntentClient(&pkgstripe.Client{}); client == nil {
		t.Fatal("expected a payment intent client")
	}
	if client := NewStripeIntentClient(nil); client != nil {
		t.Fatal("expected nil for a nil stripe client")
	}
}
