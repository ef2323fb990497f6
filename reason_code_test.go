package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonCode(t *testing.T) {
	tests := []struct {
		code    ReasonCode
		name    string
		isError bool
	}{
		{ReasonSuccess, "Success", false},
		{ReasonGrantedQoS2, "Granted QoS 2", false},
		{ReasonNoMatchingSubscribers, "No matching subscribers", false},
		{ReasonContinueAuth, "Continue authentication", false},
		{ReasonUnspecifiedError, "Unspecified error", true},
		{ReasonNotAuthorized, "Not authorized", true},
		{ReasonTopicAliasInvalid, "Topic Alias invalid", true},
		{ReasonPacketIDNotFound, "Packet Identifier not found", true},
		{ReasonWildcardSubsNotSupported, "Wildcard Subscriptions not supported", true},
		{ReasonCode(0x7F), "Unknown reason code", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.code.String())
			assert.Equal(t, tt.isError, tt.code.IsError())
			assert.Equal(t, !tt.isError, tt.code.IsSuccess())
		})
	}
}
