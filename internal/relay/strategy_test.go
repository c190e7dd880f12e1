// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategyOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    []Strategy
		wantErr bool
	}{
		{in: "basic,digest,url", want: []Strategy{StrategyBasic, StrategyDigest, StrategyURL}},
		{in: " Basic , URL_EMBEDDED , digest ", want: []Strategy{StrategyBasic, StrategyURL, StrategyDigest}},
		{in: "digest", want: []Strategy{StrategyDigest}},
		{in: "userinfo,,basic", want: []Strategy{StrategyURL, StrategyBasic}},
		{in: "", wantErr: true},
		{in: "basic,basic", wantErr: true},
		{in: "anonymous", wantErr: true},
		{in: "ntlm", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategyOrder(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "anonymous", StrategyAnonymous.String())
	assert.Equal(t, "basic", StrategyBasic.String())
	assert.Equal(t, "digest", StrategyDigest.String())
	assert.Equal(t, "url", StrategyURL.String())
	assert.Equal(t, "strategy(9)", Strategy(9).String())
}

func TestForbiddenFallback(t *testing.T) {
	for in, want := range map[string]ForbiddenFallback{
		"":      ForbiddenFallbackFirst,
		"first": ForbiddenFallbackFirst,
		"ALL":   ForbiddenFallbackAll,
		"none":  ForbiddenFallbackNone,
	} {
		got, err := ParseForbiddenFallback(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseForbiddenFallback("sometimes")
	require.Error(t, err)

	assert.True(t, ForbiddenFallbackFirst.advancesAt(0))
	assert.False(t, ForbiddenFallbackFirst.advancesAt(1))
	assert.True(t, ForbiddenFallbackAll.advancesAt(2))
	assert.False(t, ForbiddenFallbackNone.advancesAt(0))
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(" http://cam.local/img.jpg ", "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://cam.local/img.jpg", req.TargetURL)
	assert.False(t, req.HasCredentials())

	req, err = NewRequest("http://cam.local/img.jpg", "admin", "pass")
	require.NoError(t, err)
	assert.True(t, req.HasCredentials())

	_, err = NewRequest("http://cam.local/img.jpg", "admin", "")
	assert.ErrorIs(t, err, ErrPartialCredentials)
	_, err = NewRequest("http://cam.local/img.jpg", "", "pass")
	assert.ErrorIs(t, err, ErrPartialCredentials)
}
