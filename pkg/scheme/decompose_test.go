package scheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgct-project/combi/pkg/levelvector"
)

func twoDScheme() Scheme {
	// classical combination technique scheme for lmin=(1,1), lmax=(2,2):
	// terms at (2,1),(1,2) with coeff 1, and (1,1) with coeff -1.
	return Scheme{
		Dim: 2,
		Terms: []Term{
			{Level: levelvector.New(1, 1), Coeff: -1},
			{Level: levelvector.New(2, 1), Coeff: 1},
			{Level: levelvector.New(1, 2), Coeff: 1},
		},
	}
}

func TestValidateAcceptsCompleteScheme(t *testing.T) {
	assert.NoError(t, Validate(twoDScheme()))
}

func TestValidateRejectsEmptyScheme(t *testing.T) {
	err := Validate(Scheme{Dim: 2})
	require.Error(t, err)
}

func TestValidateRejectsBadCoeffSum(t *testing.T) {
	s := twoDScheme()
	s.Terms[0].Coeff += 0.5
	require.Error(t, Validate(s))
}

func TestValidateRejectsDuplicateLevels(t *testing.T) {
	s := twoDScheme()
	s.Terms = append(s.Terms, Term{Level: levelvector.New(1, 1), Coeff: 0})
	require.Error(t, Validate(s))
}

func TestDecomposeNoopBelowTwoSystems(t *testing.T) {
	part, common, err := Decompose(twoDScheme(), 0, 1)
	require.NoError(t, err)
	assert.Len(t, part.Terms, 3)
	assert.Empty(t, common)
}

func TestDecomposeDisjointAndCovering(t *testing.T) {
	full := twoDScheme()
	parts, _, err := DecomposeAll(full, 2)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	seen := make(map[string]bool)
	for _, p := range parts {
		for _, term := range p.Terms {
			key := term.Level.Key()
			assert.False(t, seen[key], "level %s appears in more than one part", key)
			seen[key] = true
		}
	}
	assert.Len(t, seen, len(full.Terms))
}

func TestDecomposeRejectsMoreThanTwoSystems(t *testing.T) {
	_, _, err := DecomposeAll(twoDScheme(), 3)
	require.Error(t, err)
}

func TestCommonSubspacesDeterministicOrder(t *testing.T) {
	full := twoDScheme()
	_, common1, err := DecomposeAll(full, 2)
	require.NoError(t, err)
	_, common2, err := DecomposeAll(full, 2)
	require.NoError(t, err)
	require.Equal(t, common1, common2)
	for i := 1; i < len(common1); i++ {
		assert.True(t, levelvector.Less(common1[i-1], common1[i]) || common1[i-1].Equal(common1[i]))
	}
}

func TestCommonSubspacesRetainedOnlyWhenDominatedByBothParts(t *testing.T) {
	// system 0 owns only (1,1); system 1 owns (2,1) and (1,2).
	// M = min(L_0, L_1) = min((1,1),(2,2)) = (1,1), so the only candidate
	// sigma is (1,1) itself, and it is dominated by (1,1) in part 0 and by
	// (2,1) (or (1,2)) in part 1, so it must be retained.
	parts := []Scheme{
		{Dim: 2, Terms: []Term{{Level: levelvector.New(1, 1), Coeff: 1}}},
		{Dim: 2, Terms: []Term{{Level: levelvector.New(2, 1), Coeff: 1}, {Level: levelvector.New(1, 2), Coeff: -1}}},
	}
	common := commonSubspaces(2, parts)
	require.Len(t, common, 1)
	assert.True(t, common[0].Equal(levelvector.New(1, 1)))
}

func TestCommonSubspacesEmptyWhenAnyPartEmpty(t *testing.T) {
	parts := []Scheme{
		{Dim: 2, Terms: nil},
		{Dim: 2, Terms: []Term{{Level: levelvector.New(2, 2), Coeff: 1}}},
	}
	assert.Empty(t, commonSubspaces(2, parts))
}
