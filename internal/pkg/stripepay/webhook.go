// Package stripepay parses and authenticates Stripe webhook deliveries. Only
// the fields the credit reconciler consumes are extracted; the raw payload is
// persisted alongside the idempotency marker for auditing.
package stripepay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// EventTypeCheckoutCompleted is the only event type the reconciler acts on.
const EventTypeCheckoutCompleted = "checkout.session.completed"

// DefaultTolerance bounds the accepted age of a signed payload.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("stripepay: signature verification failed")
	ErrMalformedHeader  = errors.New("stripepay: malformed Stripe-Signature header")
	ErrTimestampTooOld  = errors.New("stripepay: signature timestamp outside tolerance")
)

// Event is the subset of a Stripe event envelope the reconciler needs.
type Event struct {
	ID            string
	Type          string
	OwnerKey      string // metadata.userId, falling back to client_reference_id
	MetaCredits   int64  // metadata.credits, 0 when absent
	HasMeta       bool
	AmountTotal   int64 // minor currency units
	AmountSub     int64 // amount_subtotal, pre-tax
	PaymentStatus string
	Currency      string
}

// VerifySignature checks a `Stripe-Signature: t=<ts>,v1=<hex>` header against
// the payload using HMAC-SHA256 over "<ts>.<payload>". Comparison is
// constant-time; the timestamp must be within tolerance of now.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrTimestampTooOld
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		decoded, decErr := hex.DecodeString(sig)
		if decErr != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ParseEvent extracts the reconciler-relevant fields from a raw event payload.
func ParseEvent(payload []byte) Event {
	root := gjson.ParseBytes(payload)
	obj := root.Get("data.object")

	ev := Event{
		ID:            root.Get("id").String(),
		Type:          root.Get("type").String(),
		AmountTotal:   obj.Get("amount_total").Int(),
		AmountSub:     obj.Get("amount_subtotal").Int(),
		PaymentStatus: obj.Get("payment_status").String(),
		Currency:      obj.Get("currency").String(),
	}
	if ev.AmountSub == 0 {
		ev.AmountSub = ev.AmountTotal
	}

	if credits := obj.Get("metadata.credits"); credits.Exists() {
		ev.HasMeta = true
		ev.MetaCredits = credits.Int()
	}

	ev.OwnerKey = obj.Get("metadata.userId").String()
	if ev.OwnerKey == "" {
		ev.OwnerKey = obj.Get("client_reference_id").String()
	}
	return ev
}

func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, ErrMalformedHeader
	}

	var ts int64
	var haveTS bool
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, ErrMalformedHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedHeader
			}
			ts = parsed
			haveTS = true
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if !haveTS || len(sigs) == 0 {
		return 0, nil, ErrMalformedHeader
	}
	return ts, sigs, nil
}
