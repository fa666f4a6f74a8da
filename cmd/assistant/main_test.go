package main

import (
	"testing"
	"time"

	"voice-assist/config"
	"voice-assist/internal/domain"
)

func TestRetryPolicy_Overlay(t *testing.T) {
	delay := 2 * time.Second
	zero := 0
	policy := retryPolicy(config.RetryConfig{Rules: map[string]config.RetryRuleConfig{
		"client": {Delay: &delay},
		"server": {MaxRestarts: &zero},
	}})

	client := policy.Rule(domain.ErrorClient)
	if client.Delay != 2*time.Second || client.MaxRestarts != 3 || !client.Recreate {
		t.Errorf("client rule = %+v, want delay overridden and the rest kept", client)
	}
	if server := policy.Rule(domain.ErrorServer); server.MaxRestarts != 0 || server.Delay != time.Second {
		t.Errorf("server rule = %+v", server)
	}
	if audio := policy.Rule(domain.ErrorAudio); audio.Delay != 500*time.Millisecond {
		t.Errorf("untouched audio rule = %+v", audio)
	}
}
