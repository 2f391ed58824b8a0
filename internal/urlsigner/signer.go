// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package urlsigner

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
)

// DefaultTTL matches the retention of the clip bucket.
const DefaultTTL = 30 * 24 * time.Hour

const (
	ParamExpires   = "Expires"
	ParamSignature = "Signature"
	ParamKeyPairID = "Key-Pair-Id"
)

var (
	ErrMissingParams = errors.New("signed url is missing signing parameters")
	ErrExpired       = errors.New("signed url has expired")
)

var signatureDecoder = strings.NewReplacer("-", "+", "_", "=", "~", "/")

// Signer issues time-limited CloudFront canned-policy URLs. It is safe for
// concurrent use; the key is never modified after construction.
type Signer struct {
	url       *sign.URLSigner
	keyPairID string
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Signer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		s.ttl = ttl
	}
}

func New(key *rsa.PrivateKey, keyPairID string, opts ...Option) (*Signer, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if keyPairID == "" {
		return nil, errors.New("key pair id is required")
	}
	s := &Signer{
		url:       sign.NewURLSigner(keyPairID, key),
		keyPairID: keyPairID,
		ttl:       DefaultTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("invalid signed url ttl %s", s.ttl)
	}
	return s, nil
}

func (s *Signer) KeyPairID() string {
	return s.keyPairID
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign appends Expires, Signature and Key-Pair-Id to rawURL. The URL is
// normalised once and that exact string is both signed and returned, so an
// existing query keeps its order and escaping.
func (s *Signer) Sign(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("failed to parse URL: %q is not absolute", rawURL)
	}
	resource := parsed.String()

	expires := time.Unix(s.now().Add(s.ttl).Unix(), 0)
	signed, err := s.url.Sign(resource, expires)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return signed, nil
}

// Policy is the canned policy statement CloudFront rebuilds from a signed URL:
// the exact resource URL and the epoch second it stops being valid.
func Policy(resource string, expires int64) string {
	return fmt.Sprintf(`{"Statement":[{"Resource":"%s","Condition":{"DateLessThan":{"AWS:EpochTime":%d}}}]}`,
		resource, expires)
}

// DecodeSignature reverses the URL safe base64 alphabet CloudFront uses.
func DecodeSignature(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(signatureDecoder.Replace(encoded))
}

// Verified describes a signed URL that passed Verify.
type Verified struct {
	Resource  string
	Expires   time.Time
	KeyPairID string
}

// Verify checks a signed URL against pub. The resource is the signed URL with
// the signing parameters cut out of the raw query, so whatever order and
// escaping the original query had is preserved.
func Verify(signedURL string, pub *rsa.PublicKey, now time.Time) (Verified, error) {
	parsed, err := url.Parse(signedURL)
	if err != nil {
		return Verified{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	query := parsed.Query()
	expiresRaw := query.Get(ParamExpires)
	sigRaw := query.Get(ParamSignature)
	keyPairID := query.Get(ParamKeyPairID)
	if expiresRaw == "" || sigRaw == "" || keyPairID == "" {
		return Verified{}, ErrMissingParams
	}
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return Verified{}, fmt.Errorf("invalid %s: %w", ParamExpires, err)
	}
	sig, err := DecodeSignature(sigRaw)
	if err != nil {
		return Verified{}, fmt.Errorf("invalid %s: %w", ParamSignature, err)
	}

	resource := stripSigningParams(signedURL)
	hash := sha1.Sum([]byte(Policy(resource, expires)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, hash[:], sig); err != nil {
		return Verified{}, fmt.Errorf("signature mismatch: %w", err)
	}

	v := Verified{Resource: resource, Expires: time.Unix(expires, 0).UTC(), KeyPairID: keyPairID}
	if !now.Before(v.Expires) {
		return v, ErrExpired
	}
	return v, nil
}

func stripSigningParams(signedURL string) string {
	base, rawQuery, ok := strings.Cut(signedURL, "?")
	if !ok {
		return signedURL
	}
	var kept []string
	for _, part := range strings.Split(rawQuery, "&") {
		name, _, _ := strings.Cut(part, "=")
		switch name {
		case ParamExpires, ParamSignature, ParamKeyPairID:
			continue
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}
