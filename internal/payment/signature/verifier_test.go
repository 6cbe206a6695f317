package signature

import (
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/stripe/stripe-go/v82/webhook"
)

var testSecret = []byte("whsec_test_secret")

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := New(testSecret, WithClock(clock.NewFixedClock(now)))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)
	payload := []byte(`{"id":"evt_1"}`)

	if err := v.Verify(payload, Header(testSecret, now.Add(-time.Minute), payload, "")); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyCompatibleWithStripeSigner(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    string(testSecret),
		Timestamp: now,
		Scheme:    "v1",
	})

	if err := v.Verify(payload, signed.Header); err != nil {
		t.Fatalf("expected stripe signed payload to verify, got %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	cases := []struct {
		name    string
		payload []byte
		header  string
		want    error
	}{
		{
			name:    "missing header",
			payload: payload,
			header:  "",
			want:    ErrMissingHeader,
		},
		{
			name:    "tampered body",
			payload: []byte(`{"id":"evt_2"}`),
			header:  Header(testSecret, now, payload, ""),
			want:    ErrSignatureMismatch,
		},
		{
			name:    "wrong secret",
			payload: payload,
			header:  Header([]byte("other"), now, payload, ""),
			want:    ErrSignatureMismatch,
		},
		{
			name:    "replayed outside tolerance",
			payload: payload,
			header:  Header(testSecret, now.Add(-6*time.Minute), payload, ""),
			want:    ErrTimestampExpired,
		},
		{
			name:    "timestamp far in the future",
			payload: payload,
			header:  Header(testSecret, now.Add(10*time.Minute), payload, ""),
			want:    ErrTimestampExpired,
		},
		{
			name:    "no timestamp",
			payload: payload,
			header:  "v1=deadbeef",
			want:    ErrMalformedHeader,
		},
		{
			name:    "garbage",
			payload: payload,
			header:  "not-a-signature",
			want:    ErrMalformedHeader,
		},
		{
			name:    "other scheme only",
			payload: payload,
			header:  "t=1777636800,v0=abcdef",
			want:    ErrMalformedHeader,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestVerifier(t, now)
			err := v.Verify(tc.payload, tc.header)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyAcceptsAnyMatchingSignature(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)
	payload := []byte(`{"id":"evt_1"}`)

	valid := Header(testSecret, now, payload, "")
	// Rotated secrets produce several v1 entries.
	header := valid + ",v1=" + "00ff" + ",v1=zz"
	if err := v.Verify(payload, header); err != nil {
		t.Fatalf("expected header with extra signatures to verify, got %v", err)
	}
}

func TestVerifyCustomScheme(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v, err := New(testSecret, WithClock(clock.NewFixedClock(now)), WithScheme("s1"), WithTolerance(time.Minute))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	payload := []byte(`{}`)

	if err := v.Verify(payload, Header(testSecret, now, payload, "s1")); err != nil {
		t.Fatalf("expected custom scheme to verify, got %v", err)
	}
	if err := v.Verify(payload, Header(testSecret, now.Add(-2*time.Minute), payload, "s1")); !errors.Is(err, ErrTimestampExpired) {
		t.Fatalf("expected tolerance override to apply, got %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
