package mqttier

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SHA-1 required for SCRAM-SHA-1 compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAMHash selects the SCRAM hash algorithm.
type SCRAMHash int

const (
	SCRAMHashSHA1 SCRAMHash = iota
	SCRAMHashSHA256
	SCRAMHashSHA512
)

// String returns the MQTT authentication method name.
func (h SCRAMHash) String() string {
	switch h {
	case SCRAMHashSHA1:
		return "SCRAM-SHA-1"
	case SCRAMHashSHA512:
		return "SCRAM-SHA-512"
	default:
		return "SCRAM-SHA-256"
	}
}

func (h SCRAMHash) hashFunc() func() hash.Hash {
	switch h {
	case SCRAMHashSHA1:
		return sha1.New
	case SCRAMHashSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

func (h SCRAMHash) keySize() int {
	switch h {
	case SCRAMHashSHA1:
		return sha1.Size
	case SCRAMHashSHA512:
		return sha512.Size
	default:
		return sha256.Size
	}
}

var (
	ErrSCRAMServerNonce     = errors.New("scram: server nonce does not extend client nonce")
	ErrSCRAMServerSignature = errors.New("scram: server signature mismatch")
	ErrSCRAMMessage         = errors.New("scram: malformed server message")
)

type scramStep int

const (
	scramSentFirst scramStep = iota + 1
	scramSentFinal
	scramDone
)

type scramState struct {
	step        scramStep
	clientNonce string
	authMessage string
	serverKey   []byte
}

// SCRAMAuthenticator is the client side of SCRAM (RFC 5802) over MQTT
// enhanced authentication. It verifies the broker's final signature.
type SCRAMAuthenticator struct {
	Username string
	Password string
	Hash     SCRAMHash

	// nonce overrides the random client nonce; tests only.
	nonce string
}

// NewSCRAMAuthenticator returns an authenticator for username and password.
func NewSCRAMAuthenticator(username, password string, h SCRAMHash) *SCRAMAuthenticator {
	return &SCRAMAuthenticator{Username: username, Password: password, Hash: h}
}

func (a *SCRAMAuthenticator) AuthMethod() string { return a.Hash.String() }

// AuthStart produces client-first-message: n,,n=user,r=nonce.
func (a *SCRAMAuthenticator) AuthStart(_ context.Context) (*ClientEnhancedAuthResult, error) {
	nonce := a.nonce
	if nonce == "" {
		b := make([]byte, 18)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		nonce = base64.RawStdEncoding.EncodeToString(b)
	}
	bare := "n=" + scramEscape(a.Username) + ",r=" + nonce
	return &ClientEnhancedAuthResult{
		AuthData: []byte("n,," + bare),
		State:    &scramState{step: scramSentFirst, clientNonce: nonce, authMessage: bare},
	}, nil
}

func (a *SCRAMAuthenticator) AuthContinue(_ context.Context, authCtx *ClientEnhancedAuthContext) (*ClientEnhancedAuthResult, error) {
	st, ok := authCtx.State.(*scramState)
	if !ok {
		return nil, fmt.Errorf("%w: no exchange in progress", ErrAuthFailed)
	}
	switch st.step {
	case scramSentFirst:
		return a.clientFinal(st, string(authCtx.AuthData))
	case scramSentFinal:
		return a.verifyServer(st, string(authCtx.AuthData))
	default:
		return &ClientEnhancedAuthResult{Done: true, State: st}, nil
	}
}

// clientFinal answers server-first-message (r=,s=,i=) with the proof.
func (a *SCRAMAuthenticator) clientFinal(st *scramState, serverFirst string) (*ClientEnhancedAuthResult, error) {
	attrs := parseSCRAMAttributes(serverFirst)
	nonce := attrs["r"]
	if !strings.HasPrefix(nonce, st.clientNonce) || len(nonce) == len(st.clientNonce) {
		return nil, ErrSCRAMServerNonce
	}
	salt, err := base64.StdEncoding.DecodeString(attrs["s"])
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt", ErrSCRAMMessage)
	}
	iterations, err := strconv.Atoi(attrs["i"])
	if err != nil || iterations < 1 {
		return nil, fmt.Errorf("%w: iteration count", ErrSCRAMMessage)
	}

	hf := a.Hash.hashFunc()
	salted := pbkdf2.Key([]byte(a.Password), salt, iterations, a.Hash.keySize(), hf)
	clientKey := scramHMAC(hf, salted, "Client Key")
	h := hf()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	withoutProof := "c=biws,r=" + nonce
	st.authMessage += "," + serverFirst + "," + withoutProof
	signature := scramHMAC(hf, storedKey, st.authMessage)
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ signature[i]
	}
	st.serverKey = scramHMAC(hf, salted, "Server Key")
	st.step = scramSentFinal

	final := withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
	return &ClientEnhancedAuthResult{AuthData: []byte(final), State: st}, nil
}

// verifyServer checks server-final-message (v=signature).
func (a *SCRAMAuthenticator) verifyServer(st *scramState, serverFinal string) (*ClientEnhancedAuthResult, error) {
	attrs := parseSCRAMAttributes(serverFinal)
	if e, ok := attrs["e"]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, e)
	}
	got, err := base64.StdEncoding.DecodeString(attrs["v"])
	if err != nil {
		return nil, fmt.Errorf("%w: verifier", ErrSCRAMMessage)
	}
	want := scramHMAC(a.Hash.hashFunc(), st.serverKey, st.authMessage)
	if !hmac.Equal(got, want) {
		return nil, ErrSCRAMServerSignature
	}
	st.step = scramDone
	return &ClientEnhancedAuthResult{Done: true, State: st}, nil
}

func scramHMAC(hf func() hash.Hash, key []byte, msg string) []byte {
	m := hmac.New(hf, key)
	m.Write([]byte(msg))
	return m.Sum(nil)
}

func parseSCRAMAttributes(msg string) map[string]string {
	out := make(map[string]string)
	for part := range strings.SplitSeq(msg, ",") {
		if len(part) > 2 && part[1] == '=' {
			out[part[:1]] = part[2:]
		}
	}
	return out
}

// scramEscape applies the saslname escaping of ',' and '='.
func scramEscape(s string) string {
	return strings.NewReplacer("=", "=3D", ",", "=2C").Replace(s)
}
