package ruleset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

const validRulesets = `rulesets:
  - expert_instance_id: 1
    use_case: ENTER_MARKET
    rules:
      - name: high-confidence-entry
        conditions:
          - type: CONFIDENCE_THRESHOLD
            operator: ">="
            threshold: 80
        actions:
          - type: OPEN_POSITION
            reference: CURRENT_PRICE
            take_profit_percent: 5
            stop_loss_percent: -2
  - expert_instance_id: 1
    use_case: OPEN_POSITIONS
    rules:
      - name: cut-losers
        conditions:
          - type: POSITION_PROFIT_PERCENT
            operator: "<="
            threshold: -4
        actions:
          - type: CLOSE_POSITION
            reason: drawdown limit
`

func writeRulesetFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rulesets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsAndCompiles(t *testing.T) {
	r, err := NewRegistry(writeRulesetFile(t, validRulesets))
	require.NoError(t, err)

	rs, ok := r.Ruleset(1, types.UseCaseEnterMarket)
	require.True(t, ok)
	assert.Equal(t, "expert-1-enter_market", rs.ID)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "high-confidence-entry", rs.Rules[0].Name)

	rs, ok = r.Ruleset(1, types.UseCaseOpenPositions)
	require.True(t, ok)
	assert.Equal(t, "cut-losers", rs.Rules[0].Name)

	_, ok = r.Ruleset(2, types.UseCaseEnterMarket)
	assert.False(t, ok)

	assert.Equal(t, []int64{1}, r.ExpertIDs())
	assert.Equal(t, int64(1), r.Snapshot().Version)
}

func TestRegistryRejectsRuleWithoutActions(t *testing.T) {
	_, err := NewRegistry(writeRulesetFile(t, `rulesets:
  - expert_instance_id: 1
    use_case: ENTER_MARKET
    rules:
      - name: empty
        conditions:
          - type: CONFIDENCE_THRESHOLD
            threshold: 80
`))
	assert.Error(t, err)
}

func TestRegistryRejectsUnknownUseCase(t *testing.T) {
	_, err := NewRegistry(writeRulesetFile(t, `rulesets:
  - expert_instance_id: 1
    use_case: EXIT_MARKET
    rules:
      - actions:
          - type: CLOSE_POSITION
`))
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicateBinding(t *testing.T) {
	_, err := NewRegistry(writeRulesetFile(t, `rulesets:
  - expert_instance_id: 1
    use_case: ENTER_MARKET
    rules:
      - actions:
          - type: OPEN_POSITION
  - expert_instance_id: 1
    use_case: ENTER_MARKET
    rules:
      - actions:
          - type: OPEN_POSITION
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate ruleset")
}

func TestRegistryRejectsUnknownField(t *testing.T) {
	_, err := NewRegistry(writeRulesetFile(t, `rulesets:
  - expert_instance_id: 1
    use_case: ENTER_MARKET
    rulez: []
`))
	assert.Error(t, err)
}

func TestRegistryKeepsSnapshotWhenReloadFails(t *testing.T) {
	path := writeRulesetFile(t, validRulesets)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	// Corrupt the file: the explicit reload fails and the previous
	// snapshot keeps serving.
	require.NoError(t, os.WriteFile(path, []byte("rulesets: [{}]"), 0o644))
	assert.Error(t, r.reload())

	rs, ok := r.Ruleset(1, types.UseCaseEnterMarket)
	require.True(t, ok)
	assert.Equal(t, "expert-1-enter_market", rs.ID)
	assert.Equal(t, int64(1), r.Snapshot().Version)
}
