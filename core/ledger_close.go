package core

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/Bloxxix/stellar-core/common"
	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/core/vm"
	"github.com/Bloxxix/stellar-core/invariant"
	"github.com/Bloxxix/stellar-core/params"
)

// defaultModuleCacheSize bounds the compiled module cache.
const defaultModuleCacheSize = 4096

// defaultPrefetchBytes bounds the footprint prefetch cache.
const defaultPrefetchBytes = 64 << 20

// CloseData is one ledger's worth of work: the header it closes under, the
// base PRNG seed and the ordered transactions.
type CloseData struct {
	Header   types.LedgerHeader
	PRNGSeed common.Hash
	Txs      []*Transaction
}

// OpResult is the outcome of one operation.
type OpResult struct {
	Code ResultCode
	Meta OpMeta
}

// TxResult is the outcome of one transaction. Operations within a
// transaction apply atomically: one failing operation discards the state
// effects of all of them.
type TxResult struct {
	Ops         []OpResult
	FeeRefunded int64
	FeeConsumed int64
}

// CloseResult is the committed outcome of one ledger close.
type CloseResult struct {
	TxResults []TxResult
	Eviction  EvictionResult
	Deltas    state.Deltas
	Live      *state.LiveSnapshot
	Archive   *state.ArchiveSnapshot
}

// Processor owns the apply-side state and drives ledger closes. Exactly one
// goroutine may call CloseLedger at a time; published snapshots are free to
// travel.
type Processor struct {
	chainCfg *params.ChainConfig
	netCfg   *params.NetworkConfig
	host     vm.Host

	live       *state.LiveStore
	archive    *state.HotArchive
	modules    *ModuleCache
	prefetch   *Prefetcher
	invariants *invariant.Manager

	lastLive    *state.LiveSnapshot
	lastArchive *state.ArchiveSnapshot

	// background joins the module compilation kicked off after the
	// previous close.
	background sync.WaitGroup
}

// NewProcessor wires a processor over the given stores. header is the last
// closed ledger's header.
func NewProcessor(chainCfg *params.ChainConfig, netCfg *params.NetworkConfig, host vm.Host,
	live *state.LiveStore, archive *state.HotArchive, invariants *invariant.Manager,
	header types.LedgerHeader) *Processor {
	p := &Processor{
		chainCfg:    chainCfg,
		netCfg:      netCfg,
		host:        host,
		live:        live,
		archive:     archive,
		modules:     NewModuleCache(defaultModuleCacheSize),
		prefetch:    NewPrefetcher(defaultPrefetchBytes),
		invariants:  invariants,
		lastLive:    live.Snapshot(header),
		lastArchive: archive.Snapshot(),
	}
	return p
}

// ModuleCache exposes the shared compiled module cache.
func (p *Processor) ModuleCache() *ModuleCache { return p.modules }

// LastSnapshots returns the snapshots of the last closed ledger.
func (p *Processor) LastSnapshots() (*state.LiveSnapshot, *state.ArchiveSnapshot) {
	return p.lastLive, p.lastArchive
}

// StartupCheck runs the invariant startup scan against the last closed
// snapshots.
func (p *Processor) StartupCheck() error {
	return p.invariants.Start(p.lastLive, p.lastArchive)
}

// opSeed derives the per-operation PRNG seed from the ledger's base seed.
func opSeed(base common.Hash, txIdx, opIdx int) common.Hash {
	var idx [16]byte
	binary.BigEndian.PutUint64(idx[:8], uint64(txIdx))
	binary.BigEndian.PutUint64(idx[8:], uint64(opIdx))
	w := sha3.NewLegacyKeccak256()
	w.Write(base[:])
	w.Write(idx[:])
	var h common.Hash
	w.Sum(h[:0])
	return h
}

// CloseLedger applies one ledger: runs the transactions in order against an
// overlay rooted at the committed state, sweeps expired entries, commits,
// publishes fresh snapshots and hands the deltas to the invariant manager.
//
// Operation-level failures are mapped into the result set and never abort
// the close. A returned error is fatal: an internal inconsistency or a
// strict invariant failure.
func (p *Processor) CloseLedger(cd CloseData) (*CloseResult, error) {
	if cd.Header.Seq != p.lastLive.Header().Seq+1 {
		return nil, fmt.Errorf("core: closing ledger %d on top of %d", cd.Header.Seq, p.lastLive.Header().Seq)
	}

	// Join background compilation from the previous close before touching
	// apply-visible state.
	p.background.Wait()

	lclLive, lclArchive := p.lastLive, p.lastArchive
	p.prefetch.Warm(lclLive, cd.Txs)

	root := state.NewOverlay(p.live, p.archive, cd.Header)
	result := &CloseResult{}

	for txIdx, tx := range cd.Txs {
		txOverlay := root.Begin()
		refundable := NewRefundableFeeTracker(tx.RefundableFee)
		txRes := TxResult{}
		txFailed := false

		for opIdx := range tx.Ops {
			op := &tx.Ops[opIdx]
			meta := OpMeta{Diagnostics: NewDiagnosticEventManager(p.chainCfg.EnableDiagnosticEvents)}
			ctx := &applyContext{
				chainCfg:   p.chainCfg,
				netCfg:     p.netCfg,
				header:     cd.Header,
				host:       p.host,
				modules:    p.modules,
				refundable: refundable,
				prngSeed:   opSeed(cd.PRNGSeed, txIdx, opIdx),
				tx:         tx,
				meta:       &meta,
			}

			code := ResultMalformed
			if isOpSupported(op, cd.Header.Protocol) {
				opOverlay := txOverlay.Begin()
				ctx.overlay = opOverlay
				ap := applierFor(op, tx)
				code = ap.checkValid(ctx)
				if code == ResultSuccess {
					code = ap.apply(ctx)
				}
				if code == ResultSuccess {
					deltas := opOverlay.Commit()
					if err := p.invariants.CheckOnOperationApply(cd.Header.Seq, op.Type.String(), code.String(), deltas); err != nil {
						return nil, err
					}
				} else {
					opOverlay.Abort()
				}
			} else {
				meta.Diagnostics.PushError("operation not supported at this protocol",
					U64Val(uint64(cd.Header.Protocol)))
			}

			txRes.Ops = append(txRes.Ops, OpResult{Code: code, Meta: meta})
			if code != ResultSuccess {
				txFailed = true
				break
			}
		}

		if txFailed {
			txOverlay.Abort()
			txRes.FeeRefunded = tx.RefundableFee
		} else {
			txOverlay.Commit()
			txRes.FeeConsumed = refundable.Consumed()
			txRes.FeeRefunded = refundable.Remaining()
		}
		result.TxResults = append(result.TxResults, txRes)
	}

	result.Deltas = root.Commit()
	if n := len(result.Deltas.RestoredFromArchive); n > 0 {
		restoredArchiveMeter.Mark(int64(n))
	}
	if n := len(result.Deltas.RestoredFromLive); n > 0 {
		restoredLiveMeter.Mark(int64(n))
	}

	eviction, err := evictExpired(p.live, p.archive, p.modules, cd.Header)
	if err != nil {
		return nil, err
	}
	result.Eviction = eviction

	result.Live = p.live.Snapshot(cd.Header)
	result.Archive = p.archive.Snapshot()

	// The commit establishes the happens-before edge: the checker sees the
	// last closed snapshots and the deltas that produced the new state.
	if err := p.invariants.CheckOnLedgerCommit(lclLive, lclArchive,
		eviction.Evicted, eviction.DeletedKeys,
		result.Deltas.RestoredFromArchive, result.Deltas.RestoredFromLive); err != nil {
		return nil, err
	}

	p.lastLive = result.Live
	p.lastArchive = result.Archive

	// Apply-thread cache maintenance, then background compilation of any
	// contracts this ledger introduced.
	p.modules.MaybeRebuild(p.host, result.Live, p.chainCfg.CompilationThreads)
	if p.chainCfg.CompilationThreads > 0 {
		snap := result.Live
		p.background.Add(1)
		go func() {
			defer p.background.Done()
			p.modules.CompileContracts(p.host, snap, p.chainCfg.CompilationThreads)
		}()
	}

	logger.Debug("Closed ledger", "ledger", cd.Header.Seq, "txs", len(cd.Txs),
		"archived", len(eviction.Evicted), "restored", len(result.Deltas.RestoredFromArchive))
	return result, nil
}
