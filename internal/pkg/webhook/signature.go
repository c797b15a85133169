package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTolerance is the maximum clock distance between the payload
// timestamp and now.
const DefaultTolerance = 300 * time.Second

type SignatureConfig struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// SignatureService signs and verifies payloads with one shared secret.
type SignatureService struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewSignatureService(cfg SignatureConfig) *SignatureService {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SignatureService{
		secret:    []byte(cfg.Secret),
		tolerance: tolerance,
		now:       now,
	}
}

// Canonicalize builds the signed bytes: the signed field values in fixed
// order, concatenated without separators. Missing fields contribute nothing.
func Canonicalize(p *Payload) []byte {
	return []byte(strings.Join(p.Values(), ""))
}

// Sign returns the lowercase hex HMAC-SHA256 of canonical keyed by secret.
func Sign(canonical []byte, secret string) string {
	return sign(canonical, []byte(secret))
}

// SignPayload canonicalizes and signs p. Used by senders and tests.
func SignPayload(p *Payload, secret string) string {
	return Sign(Canonicalize(p), secret)
}

func sign(canonical, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *SignatureService) Canonicalize(p *Payload) []byte {
	return Canonicalize(p)
}

func (s *SignatureService) Sign(canonical []byte) string {
	return sign(canonical, s.secret)
}

// CheckFreshness rejects payloads whose timestamp is further than the
// tolerance from now, in either direction. Unparsable timestamps are stale.
func (s *SignatureService) CheckFreshness(p *Payload) error {
	ts, err := p.TimestampUnix()
	if err != nil {
		return ErrStaleTimestamp
	}
	// Compare in whole seconds so extreme timestamps cannot overflow.
	now := s.now().Unix()
	tol := int64(s.tolerance / time.Second)
	if ts < now-tol || ts > now+tol {
		return ErrStaleTimestamp
	}
	return nil
}

// Verify checks freshness first and returns ErrStaleTimestamp for replays.
// The signature comparison is constant time and case-sensitive.
func (s *SignatureService) Verify(received string, p *Payload) (bool, error) {
	if err := s.CheckFreshness(p); err != nil {
		return false, err
	}
	expected := s.Sign(Canonicalize(p))
	return hmac.Equal([]byte(expected), []byte(received)), nil
}
