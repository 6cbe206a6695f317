package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
)

const (
	DefaultScheme    = "v1"
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingHeader     = errors.New("missing_signature_header")
	ErrMalformedHeader   = errors.New("malformed_signature_header")
	ErrTimestampExpired  = errors.New("signature_timestamp_outside_tolerance")
	ErrSignatureMismatch = errors.New("signature_mismatch")
	ErrMissingSecret     = errors.New("missing_signing_secret")
)

// Verifier checks headers of the form "t=<unix>,<scheme>=<hex>[,<scheme>=<hex>...]"
// where each hex value is HMAC-SHA256(secret, "<unix>.<body>").
type Verifier struct {
	secret    []byte
	scheme    string
	tolerance time.Duration
	clock     clock.Clock
}

type Option func(*Verifier)

func WithScheme(scheme string) Option {
	return func(v *Verifier) {
		if s := strings.TrimSpace(scheme); s != "" {
			v.scheme = s
		}
	}
}

func WithTolerance(tolerance time.Duration) Option {
	return func(v *Verifier) {
		if tolerance > 0 {
			v.tolerance = tolerance
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(v *Verifier) {
		if c != nil {
			v.clock = c
		}
	}
}

func New(secret []byte, opts ...Option) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	v := &Verifier{
		secret:    append([]byte(nil), secret...),
		scheme:    DefaultScheme,
		tolerance: DefaultTolerance,
		clock:     clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Verifier) Verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingHeader
	}

	timestamp, signatures, err := parseHeader(header, v.scheme)
	if err != nil {
		return err
	}

	age := v.clock.Now().Sub(timestamp)
	if age > v.tolerance || age < -v.tolerance {
		return ErrTimestampExpired
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, candidate := range signatures {
		if hmac.Equal(expected, candidate) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Header builds a signature header value for payload at ts. Used by tests and
// local tooling that replays captured events.
func Header(secret []byte, ts time.Time, payload []byte, scheme string) string {
	if strings.TrimSpace(scheme) == "" {
		scheme = DefaultScheme
	}
	sig := computeSignature(secret, ts, payload)
	return "t=" + strconv.FormatInt(ts.Unix(), 10) + "," + scheme + "=" + hex.EncodeToString(sig)
}

func computeSignature(secret []byte, ts time.Time, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseHeader(header, scheme string) (time.Time, [][]byte, error) {
	var (
		timestamp time.Time
		found     bool
		sigs      [][]byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return time.Time{}, nil, ErrMalformedHeader
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, nil, ErrMalformedHeader
			}
			timestamp = time.Unix(unix, 0).UTC()
			found = true
		case scheme:
			sig, err := hex.DecodeString(value)
			if err != nil {
				// Other signatures in the header may still be valid.
				continue
			}
			sigs = append(sigs, sig)
		}
	}

	if !found || len(sigs) == 0 {
		return time.Time{}, nil, ErrMalformedHeader
	}
	return timestamp, sigs, nil
}
