package services

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"event-portal/internal/status"
	"event-portal/models"
	"event-portal/monitoring"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	defaultCredentialSize = 256
	maxHashLength         = 512
	credentialMemoSize    = 512

	PlaceholderMessage = "Generating…"
)

var errMalformedHash = errors.New("credential: malformed hash")

// Credential is the scannable attendance code for one confirmed
// registration. When encoding failed, Placeholder is set and PNG is empty.
type Credential struct {
	EventID     models.ID `json:"event_id"`
	Hash        string    `json:"-"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	PNG         []byte    `json:"-"`
	Placeholder bool      `json:"placeholder"`
	Message     string    `json:"message,omitempty"`
}

// DataURL returns the PNG as an inline image source.
func (c *Credential) DataURL() string {
	if c == nil || len(c.PNG) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

type encodeFunc func(content string, level qrcode.RecoveryLevel, size int) ([]byte, error)

// CredentialIssuer renders registration hashes as QR codes. The same hash
// always yields the same bytes; results are memoized per hash.
type CredentialIssuer struct {
	size    int
	encode  encodeFunc
	monitor *monitoring.Monitor
	logger  *zap.Logger

	mu   sync.Mutex
	memo map[string][]byte
}

func NewCredentialIssuer(size int, monitor *monitoring.Monitor, logger *zap.Logger) *CredentialIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = defaultCredentialSize
	}
	return &CredentialIssuer{
		size:    size,
		encode:  qrcode.Encode,
		monitor: monitor,
		logger:  logger,
		memo:    make(map[string][]byte),
	}
}

// Issue renders the credential for st. It fails with
// status.ErrCredentialNotIssued unless the registration is confirmed and
// carries a hash. An encode failure is not an error: the credential comes
// back as a placeholder.
func (i *CredentialIssuer) Issue(st *models.RegistrationStatus) (*Credential, error) {
	if st == nil || !st.Confirmed() || st.Hash == "" {
		i.monitor.TrackCredential("not_issued")
		return nil, status.ErrCredentialNotIssued
	}

	cred := &Credential{
		EventID:     st.EventID,
		Hash:        st.Hash,
		Fingerprint: Fingerprint(st.Hash),
	}

	png, err := i.render(st.Hash)
	if err != nil {
		i.monitor.TrackCredential("placeholder")
		i.logger.Warn("credential encode failed",
			zap.String("event_id", st.EventID.String()),
			zap.String("fingerprint", cred.Fingerprint),
			zap.Error(err),
		)
		cred.Placeholder = true
		cred.Message = PlaceholderMessage
		return cred, nil
	}

	i.monitor.TrackCredential("issued")
	cred.PNG = png
	return cred, nil
}

func (i *CredentialIssuer) render(hash string) ([]byte, error) {
	if err := checkHash(hash); err != nil {
		return nil, err
	}

	i.mu.Lock()
	if png, ok := i.memo[hash]; ok {
		i.mu.Unlock()
		return png, nil
	}
	i.mu.Unlock()

	png, err := i.encode(hash, qrcode.Medium, i.size)
	if err != nil {
		return nil, fmt.Errorf("credential: encode: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("credential: encode: empty image")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.memo) >= credentialMemoSize {
		clear(i.memo)
	}
	i.memo[hash] = png
	return png, nil
}

func checkHash(hash string) error {
	if len(hash) > maxHashLength {
		return fmt.Errorf("%w: %d bytes", errMalformedHash, len(hash))
	}
	if strings.IndexFunc(hash, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || r == unicode.ReplacementChar
	}) >= 0 {
		return errMalformedHash
	}
	return nil
}

// Fingerprint is a short stable digest of a hash, safe to log and to use as
// an ETag.
func Fingerprint(hash string) string {
	sum := blake2b.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
