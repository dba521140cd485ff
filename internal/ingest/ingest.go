// Package ingest orchestrates the worker pool, BlockReader, schema
// detection, and terminal merge that turn a delimited text file into a
// single catmodel.Simulation.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/riskmodels/catagg/internal/blockreader"
	"github.com/riskmodels/catagg/internal/catmodel"
	"github.com/riskmodels/catagg/internal/errs"
	"github.com/riskmodels/catagg/internal/parse"
)

// Options configures a single ingestion run, mirroring the CLI/caller
// knobs named in spec §6's "external interfaces".
type Options struct {
	MinLossToInclude float64
	Mfid             string
	IgnoreOrdering   bool
	FullRipScale     float64
	Workers          int
	BlockSize        int // 0 selects blockreader.DefaultBlockSize

	// Deterministic, when set, sorts shard iteration ids before the
	// terminal merge so repeated runs over the same input produce
	// bit-identical floating-point sums (spec §9 design note on
	// non-deterministic shard merge order).
	Deterministic bool

	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Ingestor runs one ingestion pass per call to Run.
type Ingestor struct {
	opts Options
}

// New returns an Ingestor configured with opts.
func New(opts Options) *Ingestor {
	if opts.Workers <= 0 {
		opts.Workers = 12
	}
	return &Ingestor{opts: opts}
}

// schema describes the detected column layout for one file.
type schema struct {
	hasRiskGroup bool
	hasFullRip   bool
}

// Run ingests path and returns the merged Simulation.
func (ing *Ingestor) Run(ctx context.Context, path string) (*catmodel.Simulation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.FileOpenError{Path: path, Err: err}
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)

	numIter, err := readNumIterHeader(br)
	if err != nil {
		return nil, err
	}

	sch, err := readColumnHeader(br)
	if err != nil {
		return nil, err
	}

	blockRd := blockreader.New(br, ing.opts.Workers, ing.opts.BlockSize)
	if err := blockRd.Init(); err != nil {
		return nil, err
	}

	shards := make([]*catmodel.Simulation, ing.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	// Watch the group context so one worker's error also wakes the
	// workers parked at the barrier.
	blockRd.WatchCancel(gctx)
	for w := 0; w < ing.opts.Workers; w++ {
		w := w
		g.Go(func() error {
			shard := catmodel.NewSimulation(numIter)
			shards[w] = shard
			return ing.runWorker(gctx, blockRd, w, sch, shard)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeShards(shards, ing.opts.Deterministic)
}

// readNumIterHeader reads (and skips comment/blank lines before) the
// mandatory "_numIter = <n>" line.
func readNumIterHeader(r *bufio.Reader) (int, error) {
	line, err := nextNonCommentLine(r)
	if err != nil {
		return 0, &errs.HeaderMalformedError{Reason: fmt.Sprintf("could not read header: %v", err)}
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "_numIter" || fields[1] != "=" {
		return 0, &errs.HeaderMalformedError{Reason: fmt.Sprintf("first line must be '_numIter = <n>', got %q", line)}
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n <= 0 {
		return 0, &errs.HeaderMalformedError{Reason: fmt.Sprintf("_numIter must be a positive integer, got %q", fields[2])}
	}
	return n, nil
}

// readColumnHeader reads the tab-separated column header line and
// infers the schema from its tab count.
func readColumnHeader(r *bufio.Reader) (schema, error) {
	line, err := nextNonCommentLine(r)
	if err != nil {
		return schema{}, &errs.HeaderMalformedError{Reason: fmt.Sprintf("could not read column header: %v", err)}
	}
	n := strings.Count(line, "\t") + 1
	switch n {
	case 5:
		return schema{hasRiskGroup: false, hasFullRip: false}, nil
	case 6:
		return schema{hasRiskGroup: true, hasFullRip: false}, nil
	case 7:
		return schema{hasRiskGroup: true, hasFullRip: true}, nil
	default:
		return schema{}, &errs.ColumnCountUnsupportedError{N: n}
	}
}

func nextNonCommentLine(r *bufio.Reader) (string, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if err != nil {
				return "", err
			}
			continue
		}
		return line, nil
	}
}

// runWorker drains lines from blockRd for thread id, parsing and
// inserting each into shard per spec §4.6's per-row post-processing.
func (ing *Ingestor) runWorker(ctx context.Context, blockRd *blockreader.BlockReader, thread int, sch schema, shard *catmodel.Simulation) error {
	log := ing.opts.logger()
	lineNo := int64(0)
	for {
		line, ok, err := blockRd.NextLine(ctx, thread)
		if err != nil {
			if err == blockreader.ErrCanceled {
				return ctx.Err()
			}
			var tooLong *blockreader.LineTooLongError
			if as, isLTL := err.(*blockreader.LineTooLongError); isLTL {
				tooLong = as
				return &errs.LineTooLongError{Thread: tooLong.Thread, Line: int64(tooLong.Line)}
			}
			return err
		}
		if !ok {
			return nil
		}
		lineNo++

		trimmed := trimLeadingSpace(line)
		if len(trimmed) > 0 && trimmed[0] == '#' {
			continue
		}
		if len(trimmed) == 0 {
			continue
		}

		row, skip, err := ing.parseRow(line, sch, lineNo)
		if err != nil {
			log.WithError(err).Warn("ingest: skipping row with unparseable field")
			continue
		}
		if skip {
			continue
		}

		shard.AddRiskGroup(row.RiskGroup)
		if err := shard.Iteration(row.IterID).AddEvent(row.SeqID, catmodel.Event{
			EventID:           row.EventID,
			Loss:              row.Loss,
			ReinstatementPrem: row.Rip,
			FullRip:           row.FullRip,
			RiskGroup:         row.RiskGroup,
		}, 1.0, row.IterID, true); err != nil {
			return err
		}
	}
}

// ingestedRow is the post-processed, iter-id-resolved row ready for
// insertion into a shard.
type ingestedRow struct {
	IterID  int64
	SeqID   int
	EventID int
	Loss    float64
	Rip     float64
	FullRip float64

	RiskGroup string
}

// parseRow splits and decodes one tab-separated line, applying the
// mfid/noncat/min-loss/ignore-ordering post-processing rules of spec
// §4.6. skip reports a row filtered out by min_loss_to_include.
func (ing *Ingestor) parseRow(line []byte, sch schema, lineNo int64) (ingestedRow, bool, error) {
	fields := parse.SplitLine(line, '\t')
	want := 5
	if sch.hasRiskGroup {
		want++
	}
	if sch.hasFullRip {
		want++
	}
	if len(fields) < want {
		return ingestedRow{}, false, &errs.FieldParseError{
			Line: lineNo, Column: "row", Content: string(line),
			Err: fmt.Errorf("expected %d fields, got %d", want, len(fields)),
		}
	}

	oldIterID := int64(parse.ParseInt64(fields[0]))
	seqID := int(parse.ParseInt32(fields[1]))
	eventID := int(parse.ParseInt32(fields[2]))
	loss := parse.ParseFloat64(fields[3])
	rip := parse.ParseFloat64(fields[4])

	riskGroup := "NA"
	if sch.hasRiskGroup {
		riskGroup = string(fields[5])
	}

	var fullRip float64
	if sch.hasFullRip {
		fullRip = parse.ParseFloat64(fields[6])
	} else {
		switch ing.opts.FullRipScale {
		case 1:
			fullRip = loss
		case 0:
			fullRip = 0
		default:
			fullRip = loss * ing.opts.FullRipScale
		}
	}

	filterRipAndRG := ing.opts.Mfid != ""
	if filterRipAndRG && riskGroup == "Noncat" {
		riskGroup = "Noncat-" + ing.opts.Mfid
	}
	if filterRipAndRG && absFloat(rip) < 1 {
		rip = 0
	}

	if loss < ing.opts.MinLossToInclude {
		return ingestedRow{}, true, nil
	}

	if strings.ToUpper(riskGroup) == "NONCAT" {
		riskGroup = "Noncat"
	}

	iterID := oldIterID
	if ing.opts.IgnoreOrdering {
		iterID = ((oldIterID + 1) << 32) | int64(seqID)
	}

	return ingestedRow{
		IterID:    iterID,
		SeqID:     seqID,
		EventID:   eventID,
		Loss:      loss,
		Rip:       rip,
		FullRip:   fullRip,
		RiskGroup: riskGroup,
	}, false, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}

// mergeShards implements spec §4.6's terminal merge: shard 0 becomes the
// base Simulation; every other shard's years are merge-forwarded in
// (optionally sorted) iter-id order, and risk-group sets are unioned.
func mergeShards(shards []*catmodel.Simulation, deterministic bool) (*catmodel.Simulation, error) {
	if len(shards) == 0 {
		return catmodel.NewSimulation(0), nil
	}
	base := shards[0]

	for _, shard := range shards[1:] {
		iterIDs := make([]int64, 0, len(shard.Iterations()))
		for id := range shard.Iterations() {
			iterIDs = append(iterIDs, id)
		}
		if deterministic {
			sort.Slice(iterIDs, func(i, j int) bool { return iterIDs[i] < iterIDs[j] })
		}
		for _, id := range iterIDs {
			year := shard.Iterations()[id]
			if existing, ok := base.IterationIfPresent(id); ok {
				if err := existing.MergeForward(year); err != nil {
					return nil, err
				}
			} else {
				base.Iteration(id) // creates the slot
				if err := base.Iteration(id).MergeForward(year); err != nil {
					return nil, err
				}
			}
		}
		for rg := range shard.RiskGroups() {
			base.AddRiskGroup(rg)
		}
	}

	return base, nil
}
