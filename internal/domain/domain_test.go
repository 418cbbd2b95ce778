package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{domain.ErrAlreadyResolved, domain.KindAlreadyResolved},
		{fmt.Errorf("postgres: commit resolution 7: %w", domain.ErrAlreadyResolved), domain.KindAlreadyResolved},
		{fmt.Errorf("%w: bad", domain.ErrInvalidInput), domain.KindInvalidInput},
		{domain.ErrUnsupportedMechanism, domain.KindUnsupportedMechanism},
		{domain.ErrInvalidState, domain.KindInvalidState},
		{domain.ErrNotFound, domain.KindNotFound},
		{fmt.Errorf("%w: %w", domain.ErrResolutionFailed, domain.ErrFeedNotFound), domain.KindResolutionFailed},
		{domain.ErrFeedNotFound, domain.KindFeedNotFound},
		{domain.ErrProviderError, domain.KindProviderError},
		{domain.ErrLedgerError, domain.KindLedgerError},
		{domain.ErrLockHeld, domain.KindLockHeld},
		{domain.ErrRateLimited, domain.KindRateLimited},
		{errors.New("boom"), domain.KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, domain.KindOf(tc.err), "err=%v", tc.err)
	}
}

func TestParseMechanism(t *testing.T) {
	for in, want := range map[string]domain.Mechanism{
		"fast-price":      domain.MechanismFastPrice,
		"Chainlink":       domain.MechanismFastPrice,
		" redstone ":      domain.MechanismFastPrice,
		"delayed-dispute": domain.MechanismDelayedDispute,
		"UMA":             domain.MechanismDelayedDispute,
	} {
		got, err := domain.ParseMechanism(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := domain.ParseMechanism("pyth")
	assert.ErrorIs(t, err, domain.ErrUnsupportedMechanism)

	assert.Equal(t, "UMA", domain.MechanismDelayedDispute.DisplayName())
	assert.Equal(t, "24 hr", domain.MechanismFastPrice.ResolutionWindow())
}

func TestOutcomeForThreshold(t *testing.T) {
	assert.Equal(t, domain.OutcomeYes, domain.OutcomeForThreshold(50000, 50000))
	assert.Equal(t, domain.OutcomeYes, domain.OutcomeForThreshold(50000.01, 50000))
	assert.Equal(t, domain.OutcomeNo, domain.OutcomeForThreshold(49999.99, 50000))

	assert.True(t, domain.OutcomeYes.Terminal())
	assert.True(t, domain.OutcomeNo.Terminal())
	assert.False(t, domain.OutcomeUndecided.Terminal())
	assert.Equal(t, "Undecided", domain.Outcome(9).String())
}

func TestFeedRefMatches(t *testing.T) {
	btcKey := "0x4254430000000000000000000000000000000000000000000000000000000000"

	assert.Equal(t, "BTC", domain.DecodeFeedText(btcKey))
	assert.Equal(t, "", domain.DecodeFeedText("0x1234"))
	assert.Equal(t, "", domain.DecodeFeedText("0x0100000000000000000000000000000000000000000000000000000000000000"))

	assert.True(t, domain.FeedRefMatches("0xABCDEF", "abcdef"))
	assert.True(t, domain.FeedRefMatches("btc", btcKey))
	assert.False(t, domain.FeedRefMatches("ETH", btcKey))
	assert.False(t, domain.FeedRefMatches("", btcKey))
}

func TestParseMetricsWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w, err := domain.ParseMetricsWindow("")
	require.NoError(t, err)
	assert.Nil(t, w.Since(now))

	w, err = domain.ParseMetricsWindow("7d")
	require.NoError(t, err)
	require.NotNil(t, w.Since(now))
	assert.Equal(t, now.Add(-7*24*time.Hour), *w.Since(now))

	_, err = domain.ParseMetricsWindow("1y")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
