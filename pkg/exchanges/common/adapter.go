package common

import (
	"net/http"

	"github.com/google/uuid"
)

// Builder turns a sized order into an exchange-specific request.
type Builder interface {
	Build(order SizedOrder, intent OrderIntent) (OrderRequest, error)
}

// Normalizer maps an exchange answer onto the canonical outcome. It never fails:
// unreadable answers come back with StatusUnknown and Error set.
type Normalizer interface {
	Normalize(raw RawResponse) OrderResponse
}

// Signer authenticates an outgoing request. The default only sets credential
// headers; venues needing HMAC signatures plug their own Signer in here.
type Signer interface {
	Sign(req *http.Request, body []byte, creds Credentials) error
}

// Adapter is one row of the exchange capability table.
type Adapter struct {
	Name      string
	Aliases   []string
	Verified  bool
	Endpoints Endpoints
	Headers   HeaderNames
	// UsageHeader names a response header reporting rate-limit usage, if any.
	UsageHeader string
	UsageLimit  int

	Builder    Builder
	Normalizer Normalizer
	Signer     Signer
}

// HeaderSigner copies the credentials into custom headers.
type HeaderSigner struct {
	Names HeaderNames
}

func (s HeaderSigner) Sign(req *http.Request, _ []byte, creds Credentials) error {
	if s.Names.APIKey != "" {
		req.Header.Set(s.Names.APIKey, creds.APIKey)
	}
	if s.Names.APISecret != "" {
		req.Header.Set(s.Names.APISecret, creds.APISecret)
	}
	if s.Names.Passphrase != "" && creds.Passphrase != "" {
		req.Header.Set(s.Names.Passphrase, creds.Passphrase)
	}
	return nil
}

// SignerFor returns the adapter's signer, defaulting to header credentials.
func (a Adapter) SignerFor() Signer {
	if a.Signer != nil {
		return a.Signer
	}
	return HeaderSigner{Names: a.Headers}
}

// BaseBody is the request body every venue starts from.
func BaseBody(order SizedOrder, intent OrderIntent, symbol string) map[string]any {
	return map[string]any{
		"symbol":      symbol,
		"side":        intent.Side.Lower(),
		"quantity":    order.Quantity.String(),
		"price":       order.Price.String(),
		"type":        string(OrderTypeLimit),
		"timeInForce": string(TIFGTC),
	}
}

// NewClientOrderID generates an idempotency key unique per submission.
func NewClientOrderID() string {
	return uuid.NewString()
}
