package utxo

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libtoken-go/color"
)

func seed(t *testing.T, repo Repository, values ...uint64) []*Output {
	t.Helper()
	outs := make([]*Output, len(values))
	for i, v := range values {
		outs[i] = testOutput(byte(i+1), uint32(i), v)
		require.NoError(t, repo.Upsert(outs[i]))
	}
	return outs
}

func claimedCount(t *testing.T, repo Repository) int {
	t.Helper()
	all, err := repo.ListOutputs(testWallet, Filter{IncludeClaimed: true})
	require.NoError(t, err)
	n := 0
	for _, o := range all {
		if o.State == Claimed {
			n++
		}
	}
	return n
}

func TestSelect_Greedy(t *testing.T) {
	repo := NewMemoryStore()
	seed(t, repo, 1000, 2000, 3000)
	sel := NewSelector(repo)

	got, err := sel.Select(testWallet, color.Default, 2500, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), got.Sum)
	assert.Len(t, got.Outputs, 2)
	assert.NotEmpty(t, got.Owner)
	assert.Equal(t, 2, claimedCount(t, repo))

	stored, err := repo.Get(got.Outputs[0].Outpoint())
	require.NoError(t, err)
	assert.Equal(t, got.Owner, stored.ClaimedBy)
}

func TestSelect_AllWhenAmountZero(t *testing.T) {
	repo := NewMemoryStore()
	seed(t, repo, 10, 20, 30)

	got, err := NewSelector(repo).Select(testWallet, color.Default, 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(60), got.Sum)
	assert.Len(t, got.Outputs, 3)

	// Nothing left: selecting everything again is an empty success.
	again, err := NewSelector(repo).Select(testWallet, color.Default, 0, Options{})
	require.NoError(t, err)
	assert.Empty(t, again.Outputs)
}

func TestSelect_InsufficientReleasesClaims(t *testing.T) {
	token := color.NonReissuable(testOutpoint(9, 0).TxID, 0)
	repo := NewMemoryStore()
	for i, v := range []uint64{100, 200} {
		o := testOutput(byte(i+1), 0, v)
		o.ColorID = token
		require.NoError(t, repo.Upsert(o))
	}
	require.NoError(t, repo.Upsert(testOutput(10, 0, 5000)))

	sel := NewSelector(repo)
	_, err := sel.Select(testWallet, token, 301, Options{})
	assert.ErrorIs(t, err, ErrInsufficientTokens)
	assert.Zero(t, claimedCount(t, repo))

	_, err = sel.Select(testWallet, color.Default, 5001, Options{})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, claimedCount(t, repo))
}

func TestSelect_Options(t *testing.T) {
	repo := NewMemoryStore()
	outs := seed(t, repo, 100, 200, 300, 400)
	outs[3].Label = "savings"
	outs[2].Finalized = false
	for _, o := range outs[2:] {
		require.NoError(t, repo.Delete(o.Outpoint()))
		require.NoError(t, repo.Upsert(o))
	}
	sel := NewSelector(repo)

	tests := []struct {
		name    string
		opts    Options
		wantSum uint64
	}{
		{"only finalized", Options{OnlyFinalized: true}, 700},
		{"label", Options{Label: "savings"}, 400},
		{"excludes", Options{Excludes: []Outpoint{outs[0].Outpoint(), outs[1].Outpoint()}}, 700},
		{"predicate", Options{Predicate: func(o *Output) bool { return o.Value > 150 }}, 900},
		{"owner", Options{Owner: "attempt-1"}, 1000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sel.Select(testWallet, color.Default, 0, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSum, got.Sum)
			if tc.opts.Owner != "" {
				assert.Equal(t, tc.opts.Owner, got.Owner)
			}
			require.NoError(t, sel.Release(got.Outputs...))
			assert.Zero(t, claimedCount(t, repo))
		})
	}
}

func TestSelect_ShuffleStillSufficient(t *testing.T) {
	repo := NewMemoryStore()
	seed(t, repo, 5, 5, 5, 5, 5, 5, 5, 5)
	sel := NewSelector(repo)
	for i := 0; i < 20; i++ {
		got, err := sel.Select(testWallet, color.Default, 12, Options{Shuffle: true})
		require.NoError(t, err)
		assert.Equal(t, uint64(15), got.Sum)
		require.NoError(t, sel.Release(got.Outputs...))
	}
}

// For random candidate sets, Select succeeds exactly when the candidates
// cover the target, and a failure leaves nothing claimed.
func TestSelect_CorrectnessProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 200; round++ {
		repo := NewMemoryStore()
		n := rng.IntN(8)
		values := make([]uint64, n)
		var total uint64
		for i := range values {
			values[i] = 1 + rng.Uint64N(1000)
			total += values[i]
		}
		seed(t, repo, values...)
		target := 1 + rng.Uint64N(total+500)

		got, err := NewSelector(repo).Select(testWallet, color.Default, target, Options{Shuffle: round%2 == 0})
		if total >= target {
			require.NoError(t, err, "round %d", round)
			assert.GreaterOrEqual(t, got.Sum, target)
			assert.Equal(t, Sum(got.Outputs), got.Sum)
			assert.Equal(t, len(got.Outputs), claimedCount(t, repo))
		} else {
			assert.ErrorIs(t, err, ErrInsufficientFunds, "round %d", round)
			assert.Zero(t, claimedCount(t, repo))
		}
	}
}

func TestRelease_RepeatedKeepsLaterClaim(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, repo, 1000)
			sel := NewSelector(repo)

			a, err := sel.Select(testWallet, color.Default, 1000, Options{Owner: "a"})
			require.NoError(t, err)
			stale := a.Outputs[0].Clone()
			require.NoError(t, sel.Release(a.Outputs...))

			b, err := sel.Select(testWallet, color.Default, 1000, Options{Owner: "b"})
			require.NoError(t, err)
			require.Equal(t, stale.Outpoint(), b.Outputs[0].Outpoint())

			require.NoError(t, sel.Release(a.Outputs...))
			require.NoError(t, sel.Release(stale))

			_, err = sel.Select(testWallet, color.Default, 1000, Options{Owner: "c"})
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			got, err := repo.Get(stale.Outpoint())
			require.NoError(t, err)
			assert.Equal(t, "b", got.ClaimedBy)
		})
	}
}

func TestSelect_ConcurrentMutualExclusion(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const callers = 16
			values := make([]uint64, callers*2)
			for i := range values {
				values[i] = 1000
			}
			seed(t, repo, values...)
			sel := NewSelector(repo)

			var (
				mu      sync.Mutex
				owners  = make(map[Outpoint]string)
				success int
			)
			var g errgroup.Group
			for i := 0; i < callers; i++ {
				g.Go(func() error {
					got, err := sel.Select(testWallet, color.Default, 1000, Options{Shuffle: true})
					if err != nil {
						return nil
					}
					mu.Lock()
					defer mu.Unlock()
					success++
					for _, o := range got.Outputs {
						if prev, dup := owners[o.Outpoint()]; dup {
							t.Errorf("%s claimed by %s and %s", o.Outpoint(), prev, got.Owner)
						}
						owners[o.Outpoint()] = got.Owner
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			assert.Equal(t, len(owners), claimedCount(t, repo))
			assert.Equal(t, callers, success, "every caller had a free output")
		})
	}
}
