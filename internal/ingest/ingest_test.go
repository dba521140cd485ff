package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const s5Body = "_numIter = 3\n" +
	"iterId\tseqId\teventId\tloss\treinstatementPrem\triskGroup\n" +
	"1\t1\t100\t50.0\t5.0\tRisk1\n" +
	"2\t1\t101\t0.5\t0.0\tNoncat\n"

func TestIngestor_Run_MinLossToInclude_DropsBelowThreshold(t *testing.T) {
	// S5, first half: min_loss_to_include = 1.0 keeps only the iter-1 row.
	path := writeTempFile(t, s5Body)

	ing := New(Options{MinLossToInclude: 1.0, Workers: 2, BlockSize: 4096})
	sim, err := ing.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, sim.CountEvents())
	y, ok := sim.IterationIfPresent(1)
	require.True(t, ok)
	assert.Equal(t, 1, y.Size())
}

func TestIngestor_Run_MfidRenamesNoncatGroup(t *testing.T) {
	// S5, second half: min_loss_to_include = 0.0 and mfid = "X" retains the
	// Noncat row, renamed to "Noncat-X".
	path := writeTempFile(t, s5Body)

	ing := New(Options{MinLossToInclude: 0.0, Mfid: "X", Workers: 2, BlockSize: 4096})
	sim, err := ing.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, sim.CountEvents())
	y, ok := sim.IterationIfPresent(2)
	require.True(t, ok)
	e := y.Event(1)
	require.NotNil(t, e)
	assert.Equal(t, "Noncat-X", e.RiskGroup)
}

func TestIngestor_Run_HeaderMalformed_IsFatal(t *testing.T) {
	path := writeTempFile(t, "not the right header\n1\t2\t3\n")

	ing := New(Options{Workers: 2, BlockSize: 4096})
	_, err := ing.Run(context.Background(), path)
	assert.Error(t, err)
}

func TestIngestor_Run_UnsupportedColumnCount_IsFatal(t *testing.T) {
	path := writeTempFile(t, "_numIter = 1\na\tb\tc\tonly\n1\t1\t1\t1\n")

	ing := New(Options{Workers: 2, BlockSize: 4096})
	_, err := ing.Run(context.Background(), path)
	assert.Error(t, err)
}

func TestIngestor_Run_FiveColumnVariant_DerivesFullRipFromScale(t *testing.T) {
	body := "_numIter = 1\n" +
		"iterId\tseqId\teventId\tloss\treinstatementPrem\n" +
		"1\t1\t100\t10.0\t1.0\n"
	path := writeTempFile(t, body)

	ing := New(Options{Workers: 1, FullRipScale: 1, BlockSize: 4096})
	sim, err := ing.Run(context.Background(), path)
	require.NoError(t, err)

	y, ok := sim.IterationIfPresent(1)
	require.True(t, ok)
	e := y.Event(1)
	require.NotNil(t, e)
	assert.Equal(t, 10.0, e.FullRip)
}
