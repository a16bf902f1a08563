package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStrategyConfig_Validation(t *testing.T) {
	_, err := NewStrategyConfig("", KindSessionBased, 50, nil)
	assert.ErrorIs(t, err, ErrEmptyEventID)

	_, err = NewStrategyConfig("event-1", Kind("weighted"), 50, nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = NewStrategyConfig("event-1", KindSessionBased, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidMinimumPercentage)

	_, err = NewStrategyConfig("event-1", KindDayBased, 101, nil)
	assert.ErrorIs(t, err, ErrInvalidMinimumPercentage)

	_, err = NewStrategyConfig("event-1", KindMilestoneBased, 0, nil)
	assert.ErrorIs(t, err, ErrNoMandatorySessions)

	cfg, err := NewStrategyConfig("event-1", KindSessionBased, 75, nil)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.MinimumPercentage)
	assert.False(t, cfg.CreatedAt.IsZero())
}

func TestNewStrategyConfig_ThresholdIgnoredForMarkKinds(t *testing.T) {
	// single_mark and milestone_based carry no threshold semantics, so an
	// out-of-range value from upstream is stored but never validated against.
	cfg, err := NewStrategyConfig("event-1", KindSingleMark, 999, nil)
	require.NoError(t, err)
	assert.Equal(t, 999, cfg.MinimumPercentage)

	_, err = NewStrategyConfig("event-1", KindMilestoneBased, -5, []string{"A"})
	assert.NoError(t, err)
}

func TestNewStrategyConfig_DedupesMandatoryIDs(t *testing.T) {
	cfg, err := NewStrategyConfig("event-1", KindMilestoneBased, 0, []string{"A", "B", "A", "", "  ", "C", "B"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, cfg.MandatorySessionIDs)

	set := cfg.MandatorySet()
	assert.Len(t, set, 3)
	_, ok := set["B"]
	assert.True(t, ok)
}

func TestStrategyConfig_ValidateRestoredRecord(t *testing.T) {
	// Records rebuilt from storage or upstream JSON bypass the constructor.
	var nilCfg *StrategyConfig
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)

	assert.ErrorIs(t, (&StrategyConfig{Kind: KindSessionBased}).Validate(), ErrEmptyEventID)
	assert.ErrorIs(t, (&StrategyConfig{EventID: "e", Kind: Kind("x")}).Validate(), ErrUnknownStrategy)
	assert.ErrorIs(t, (&StrategyConfig{EventID: "e", Kind: KindContinuous, MinimumPercentage: 150}).Validate(), ErrInvalidMinimumPercentage)
	assert.ErrorIs(t, (&StrategyConfig{EventID: "e", Kind: KindMilestoneBased}).Validate(), ErrNoMandatorySessions)

	valid := &StrategyConfig{EventID: "e", Kind: KindDayBased, MinimumPercentage: 80}
	assert.NoError(t, valid.Validate())
}

func TestKind_Helpers(t *testing.T) {
	assert.True(t, KindSingleMark.IsValid())
	assert.True(t, KindContinuous.IsValid())
	assert.False(t, Kind("").IsValid())
	assert.False(t, Kind("weighted").IsValid())

	assert.True(t, KindSessionBased.RequiresThreshold())
	assert.True(t, KindDayBased.RequiresThreshold())
	assert.True(t, KindContinuous.RequiresThreshold())
	assert.False(t, KindSingleMark.RequiresThreshold())
	assert.False(t, KindMilestoneBased.RequiresThreshold())

	assert.Equal(t, "day_based", KindDayBased.String())
}
