package media

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/livekit/protocol/auth"
)

var (
	// ErrNotConfigured means the SFU credentials are missing. Video calling is off.
	ErrNotConfigured = errors.New("media: token issuer not configured")
	// ErrUnavailable is returned by the disabled issuer.
	ErrUnavailable = errors.New("media: video calling unavailable")
)

// Token is the credential bundle a participant needs to join a call's channel.
type Token struct {
	Token     string    `json:"token"`
	Channel   string    `json:"channel"`
	UID       uint32    `json:"uid"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer mints per-channel, per-participant media tokens.
type Issuer interface {
	Issue(channel, userID string) (Token, error)
	Enabled() bool
}

// NumericUID maps a user id into [1, uidRange]. The same user always gets the same uid.
func NumericUID(userID string, uidRange uint32) uint32 {
	if uidRange == 0 {
		uidRange = 1
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32()%uidRange + 1
}

type Config struct {
	URL       string
	APIKey    string
	APISecret string
	TTL       time.Duration
	UIDRange  uint32
}

// LiveKitIssuer signs LiveKit access tokens. The room is the call id.
type LiveKitIssuer struct {
	cfg   Config
	clock func() time.Time
}

// New returns a LiveKit issuer, or ErrNotConfigured when credentials are missing.
func New(cfg Config) (*LiveKitIssuer, error) {
	if cfg.URL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.UIDRange == 0 {
		cfg.UIDRange = 1_000_000_000
	}
	return &LiveKitIssuer{cfg: cfg, clock: time.Now}, nil
}

func (i *LiveKitIssuer) Enabled() bool { return true }

func (i *LiveKitIssuer) Issue(channel, userID string) (Token, error) {
	if channel == "" || userID == "" {
		return Token{}, fmt.Errorf("media: channel and user are required")
	}
	uid := NumericUID(userID, i.cfg.UIDRange)
	expires := i.clock().Add(i.cfg.TTL).UTC()

	canPublish := true
	canSubscribe := true
	at := auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:     true,
		Room:         channel,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}).
		SetIdentity(strconv.FormatUint(uint64(uid), 10)).
		SetName(userID).
		SetValidFor(i.cfg.TTL)

	token, err := at.ToJWT()
	if err != nil {
		return Token{}, fmt.Errorf("media: sign token: %w", err)
	}
	return Token{
		Token:     token,
		Channel:   channel,
		UID:       uid,
		URL:       i.cfg.URL,
		ExpiresAt: expires,
	}, nil
}

// Disabled is the issuer used when credentials are missing.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Issue(string, string) (Token, error) { return Token{}, ErrUnavailable }
