package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

const (
	HeaderActorTimestamp = "X-Actor-Timestamp"
	HeaderActorSignature = "X-Actor-Signature"

	// DefaultMaxClockSkew bounds how old a signed actor header may be
	DefaultMaxClockSkew = 5 * time.Minute
)

// ActorVerifier checks that actor headers were signed by the upstream gateway.
// The signature is hex(HMAC-SHA256(secret, timestamp + "\n" + identity + "\n" + role)).
type ActorVerifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewActorVerifier creates a verifier; an empty secret disables verification
func NewActorVerifier(secret string, maxSkew time.Duration) *ActorVerifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxClockSkew
	}
	return &ActorVerifier{secret: []byte(secret), maxSkew: maxSkew, now: time.Now}
}

// Enabled reports whether a secret is configured
func (v *ActorVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Sign computes the signature for the given headers
func (v *ActorVerifier) Sign(timestamp, identity, role string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp + "\n" + identity + "\n" + role))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify validates the timestamp window and the signature
func (v *ActorVerifier) Verify(timestamp, identity, role, signature string) error {
	if !v.Enabled() {
		return nil
	}
	if timestamp == "" || signature == "" {
		return fmt.Errorf("missing actor signature")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid actor timestamp")
	}
	skew := v.now().Sub(time.Unix(unix, 0))
	if skew > v.maxSkew || skew < -v.maxSkew {
		return fmt.Errorf("actor timestamp outside allowed window")
	}

	expected := v.Sign(timestamp, identity, role)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid actor signature")
	}
	return nil
}

// Middleware rejects requests whose actor headers fail verification
func (v *ActorVerifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := v.Verify(
			c.GetHeader(HeaderActorTimestamp),
			c.GetHeader(HeaderActorIdentity),
			c.GetHeader(HeaderActorRole),
			c.GetHeader(HeaderActorSignature),
		)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   err.Error(),
				Code:    domainwf.CodeUnauthorized,
			})
			return
		}
		c.Next()
	}
}
