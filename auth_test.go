package mqttier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAuth answers each AuthContinue with the next scripted step.
type scriptedAuth struct {
	start    []byte
	steps    []*ClientEnhancedAuthResult
	startErr error
	seen     []*ClientEnhancedAuthContext
}

func (a *scriptedAuth) AuthMethod() string { return "TOKEN" }

func (a *scriptedAuth) AuthStart(context.Context) (*ClientEnhancedAuthResult, error) {
	if a.startErr != nil {
		return nil, a.startErr
	}
	return &ClientEnhancedAuthResult{AuthData: a.start, State: 0}, nil
}

func (a *scriptedAuth) AuthContinue(_ context.Context, authCtx *ClientEnhancedAuthContext) (*ClientEnhancedAuthResult, error) {
	a.seen = append(a.seen, authCtx)
	n := authCtx.State.(int)
	if n >= len(a.steps) {
		return nil, errors.New("unexpected step")
	}
	res := *a.steps[n]
	res.State = n + 1
	return &res, nil
}

func TestAuthStateStart(t *testing.T) {
	a := &authState{auth: &scriptedAuth{start: []byte("hello")}}
	var props Properties
	require.NoError(t, a.start(context.Background(), &props))

	assert.Equal(t, "TOKEN", props.GetString(PropAuthenticationMethod))
	assert.Equal(t, []byte("hello"), props.GetBinary(PropAuthenticationData))
	assert.Equal(t, 0, a.state)

	empty := &authState{auth: &scriptedAuth{}}
	var bare Properties
	require.NoError(t, empty.start(context.Background(), &bare))
	assert.False(t, bare.Has(PropAuthenticationData))

	failing := &authState{auth: &scriptedAuth{startErr: errors.New("no token")}}
	assert.Error(t, failing.start(context.Background(), &bare))
}

func TestAuthStateStep(t *testing.T) {
	auth := &scriptedAuth{steps: []*ClientEnhancedAuthResult{
		{AuthData: []byte("proof")},
		{Done: true},
	}}
	a := &authState{auth: auth, state: 0}

	var in Properties
	in.Set(PropAuthenticationMethod, "TOKEN")
	in.Set(PropAuthenticationData, []byte("challenge"))

	reply, err := a.step(context.Background(), ReasonContinueAuth, &in)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, ReasonContinueAuth, reply.ReasonCode)
	assert.Equal(t, "TOKEN", reply.Props.GetString(PropAuthenticationMethod))
	assert.Equal(t, []byte("proof"), reply.Props.GetBinary(PropAuthenticationData))

	require.Len(t, auth.seen, 1)
	assert.Equal(t, []byte("challenge"), auth.seen[0].AuthData)
	assert.Equal(t, ReasonContinueAuth, auth.seen[0].ReasonCode)

	reply, err = a.step(context.Background(), ReasonSuccess, &Properties{})
	require.NoError(t, err)
	assert.Nil(t, reply, "nothing to send once done")

	_, err = a.step(context.Background(), ReasonReAuth, &Properties{})
	assert.Error(t, err)
}

// dialAsync starts Dial in the background for exchanges that need the test
// to answer before CONNACK.
func dialAsync(d *MockDialer, opts ...Option) <-chan dialResult {
	out := make(chan dialResult, 1)
	go func() {
		base := []Option{WithDialer(d), WithClientID(testClientID), WithAutoReconnect(false)}
		c, err := Dial(append(base, opts...)...)
		out <- dialResult{c, err}
	}()
	return out
}

type dialResult struct {
	client *Client
	err    error
}

func awaitConnect(t *testing.T, d *MockDialer) *MockConn {
	t.Helper()
	require.Eventually(t, func() bool {
		conn := d.Conn()
		return conn != nil && len(conn.SentOfType(PacketCONNECT)) == 1
	}, time.Second, time.Millisecond)
	return d.Conn()
}

func TestClientSCRAMAuthentication(t *testing.T) {
	v := scramVectors[1]
	d := NewMockDialer()
	d.SetConnack(nil)

	result := dialAsync(d, WithEnhancedAuthentication(newVectorAuthenticator(v.hash, v.nonce)))
	conn := awaitConnect(t, d)

	connect := conn.SentOfType(PacketCONNECT)[0].(*ConnectPacket)
	assert.Equal(t, "SCRAM-SHA-256", connect.Props.GetString(PropAuthenticationMethod))
	assert.Equal(t, []byte("n,,n=user,r="+v.nonce), connect.Props.GetBinary(PropAuthenticationData))

	challenge := &AuthPacket{ReasonCode: ReasonContinueAuth}
	challenge.Props.Set(PropAuthenticationMethod, "SCRAM-SHA-256")
	challenge.Props.Set(PropAuthenticationData, []byte(v.serverFirst))
	require.NoError(t, conn.Inject(challenge))

	auths := conn.SentOfType(PacketAUTH)
	require.Len(t, auths, 1)
	assert.Equal(t, []byte(v.clientFinal), auths[0].(*AuthPacket).Props.GetBinary(PropAuthenticationData))

	connack := &ConnackPacket{}
	connack.Props.Set(PropAuthenticationMethod, "SCRAM-SHA-256")
	connack.Props.Set(PropAuthenticationData, []byte(v.serverFinal))
	require.NoError(t, conn.Inject(connack))

	res := <-result
	require.NoError(t, res.err)
	defer res.client.Close()
	assert.True(t, res.client.IsConnected())
}

func TestClientSCRAMRejectsForgedServer(t *testing.T) {
	v := scramVectors[1]
	d := NewMockDialer()
	d.SetConnack(nil)

	result := dialAsync(d, WithEnhancedAuthentication(newVectorAuthenticator(v.hash, v.nonce)))
	conn := awaitConnect(t, d)

	challenge := &AuthPacket{ReasonCode: ReasonContinueAuth}
	challenge.Props.Set(PropAuthenticationMethod, "SCRAM-SHA-256")
	challenge.Props.Set(PropAuthenticationData, []byte(v.serverFirst))
	require.NoError(t, conn.Inject(challenge))

	connack := &ConnackPacket{}
	connack.Props.Set(PropAuthenticationMethod, "SCRAM-SHA-256")
	connack.Props.Set(PropAuthenticationData, []byte("v=rmF9pqV8S7suAoZWja4dJRkFsKQ="))
	require.NoError(t, conn.Inject(connack))

	res := <-result
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrAuthFailed)
	assert.ErrorIs(t, res.err, ErrSCRAMServerSignature)
}

func TestClientAuthWithoutAuthenticator(t *testing.T) {
	tc := newTestClient(t, nil)

	require.NoError(t, tc.conn().Inject(&AuthPacket{ReasonCode: ReasonReAuth}))

	discs := tc.conn().SentOfType(PacketDISCONNECT)
	require.Len(t, discs, 1)
	assert.Equal(t, ReasonProtocolError, discs[0].(*DisconnectPacket).ReasonCode)
}

func TestClientReauthentication(t *testing.T) {
	auth := &scriptedAuth{steps: []*ClientEnhancedAuthResult{
		{AuthData: []byte("renewed")},
		{Done: true},
	}}
	tc := newTestClient(t, nil, WithEnhancedAuthentication(auth))

	reauth := &AuthPacket{ReasonCode: ReasonReAuth}
	reauth.Props.Set(PropAuthenticationMethod, "TOKEN")
	require.NoError(t, tc.conn().Inject(reauth))

	auths := tc.conn().SentOfType(PacketAUTH)
	require.Len(t, auths, 1)
	assert.Equal(t, []byte("renewed"), auths[0].(*AuthPacket).Props.GetBinary(PropAuthenticationData))

	done := &AuthPacket{ReasonCode: ReasonSuccess}
	done.Props.Set(PropAuthenticationMethod, "TOKEN")
	require.NoError(t, tc.conn().Inject(done))

	assert.True(t, tc.IsConnected())
	assert.Len(t, tc.conn().SentOfType(PacketAUTH), 1)
}
