package mqttier

import "context"

// ClientEnhancedAuthContext carries one server AUTH step to the authenticator.
type ClientEnhancedAuthContext struct {
	AuthMethod string
	AuthData   []byte
	ReasonCode ReasonCode

	// State is whatever the previous step returned.
	State any
}

// ClientEnhancedAuthResult is the authenticator's answer to one step.
type ClientEnhancedAuthResult struct {
	// Done means no further exchange is expected from the client side.
	Done     bool
	AuthData []byte
	State    any
}

// ClientEnhancedAuthenticator drives the AUTH exchange that may precede
// CONNACK, and re-authentication requested by the broker.
type ClientEnhancedAuthenticator interface {
	// AuthMethod names the method, for example "SCRAM-SHA-256".
	AuthMethod() string

	// AuthStart supplies the authentication data carried by CONNECT.
	AuthStart(ctx context.Context) (*ClientEnhancedAuthResult, error)

	// AuthContinue answers an AUTH packet from the broker. It is also
	// called with the CONNACK's authentication data once the exchange
	// succeeds, so the authenticator can verify the broker.
	AuthContinue(ctx context.Context, authCtx *ClientEnhancedAuthContext) (*ClientEnhancedAuthResult, error)
}

// authState is the event loop's view of an enhanced authentication exchange.
type authState struct {
	auth  ClientEnhancedAuthenticator
	state any
}

func (a *authState) start(ctx context.Context, props *Properties) error {
	res, err := a.auth.AuthStart(ctx)
	if err != nil {
		return err
	}
	a.state = res.State
	props.Set(PropAuthenticationMethod, a.auth.AuthMethod())
	if len(res.AuthData) > 0 {
		props.Set(PropAuthenticationData, res.AuthData)
	}
	return nil
}

// step answers a broker AUTH packet. The returned packet is nil when the
// authenticator has nothing more to send.
func (a *authState) step(ctx context.Context, reason ReasonCode, props *Properties) (*AuthPacket, error) {
	res, err := a.auth.AuthContinue(ctx, &ClientEnhancedAuthContext{
		AuthMethod: props.GetString(PropAuthenticationMethod),
		AuthData:   props.GetBinary(PropAuthenticationData),
		ReasonCode: reason,
		State:      a.state,
	})
	if err != nil {
		return nil, err
	}
	a.state = res.State
	if res.Done && len(res.AuthData) == 0 {
		return nil, nil
	}
	out := &AuthPacket{ReasonCode: ReasonContinueAuth}
	out.Props.Set(PropAuthenticationMethod, a.auth.AuthMethod())
	if len(res.AuthData) > 0 {
		out.Props.Set(PropAuthenticationData, res.AuthData)
	}
	return out, nil
}
