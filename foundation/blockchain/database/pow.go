package database

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"golang.org/x/sync/errgroup"
)

// ErrProofOfWorkExhausted is returned when the nonce search gives up without
// finding a hash below the target.
var ErrProofOfWorkExhausted = errors.New("proof of work exhausted")

// DigestBits is the width of the block hash.
const DigestBits = 512

// DifficultyFunc derives the difficulty of a block from its total size.
type DifficultyFunc func(totalSize uint64) int

// SizeDifficulty derives a difficulty from the block's own size:
// floor(512 - ln(sqrt(size))^2 + 1). There is no chain wide difficulty and
// no retargeting. Read as leading zero bits it is not practical to mine, see
// SizeTarget for the rule miners use.
func SizeDifficulty(totalSize uint64) int {
	return int(math.Floor(DigestBits - math.Pow(math.Log(math.Sqrt(float64(totalSize))), 2) + 1))
}

// SizeTarget is the default rule. It keeps the size formula of
// SizeDifficulty but uses its result as the exponent of the target itself,
// so a hash must be below 2^SizeDifficulty(size). That makes the work grow
// slowly with block size: a small block needs about 12 leading zero bits.
func SizeTarget(totalSize uint64) int {
	return DigestBits - SizeDifficulty(totalSize)
}

// FixedDifficulty returns a rule that ignores the block size. Development
// nodes and tests use it since the size rule is not practical to mine.
func FixedDifficulty(difficulty int) DifficultyFunc {
	return func(uint64) int {
		return difficulty
	}
}

// Target returns 2^(512-difficulty), the value a block hash must be below.
func Target(difficulty int) *big.Int {
	difficulty = max(0, min(difficulty, DigestBits))
	return new(big.Int).Lsh(big.NewInt(1), uint(DigestBits-difficulty))
}

// isHashSolved checks the hash against the target using the full 512 bits.
func isHashSolved(hash []byte, target *big.Int) bool {
	return new(big.Int).SetBytes(hash).Cmp(target) < 0
}

// =============================================================================

// MinerConfig represents the settings for a miner.
type MinerConfig struct {
	Difficulty  DifficultyFunc
	Workers     int
	MaxAttempts uint64
	Now         func() time.Time
	EvHandler   func(v string, args ...any)
}

// Miner builds blocks and performs the proof of work to seal them.
type Miner struct {
	difficulty  DifficultyFunc
	workers     int
	maxAttempts uint64
	now         func() time.Time
	evHandler   func(v string, args ...any)
}

// NewMiner constructs a miner. Unset fields use the SizeTarget rule,
// one worker per CPU, an unbounded search and the wall clock.
func NewMiner(cfg MinerConfig) *Miner {
	if cfg.Difficulty == nil {
		cfg.Difficulty = SizeTarget
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	return &Miner{
		difficulty:  cfg.Difficulty,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		now:         cfg.Now,
		evHandler:   cfg.EvHandler,
	}
}

// Mine constructs a new block for the payload, signs it with the account
// and performs the work to find a nonce that solves the POW puzzle.
// The previous block is accepted but not linked into the header.
func (m *Miner) Mine(ctx context.Context, acct *accounts.Account, previous *Block, payload []byte) (Block, error) {
	if previous != nil {
		m.evHandler("miner: Mine: previous block provided, not linked")
	}

	nb := NewBlock(payload, m.now())

	// The signature only covers the payload, which the nonce search never
	// changes, so signing happens once up front.
	if err := nb.Sign(acct); err != nil {
		return Block{}, err
	}

	if err := m.performPOW(ctx, &nb); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for the block.
// Pointer semantics are being used since a nonce is being discovered.
func (m *Miner) performPOW(ctx context.Context, b *Block) error {
	difficulty := m.difficulty(b.Header.TotalSize)
	target := Target(difficulty)

	m.evHandler("miner: PerformPOW: MINING: started: size[%d] difficulty[%d] workers[%d]", b.Header.TotalSize, difficulty, m.workers)
	defer m.evHandler("miner: PerformPOW: MINING: completed")

	b.Header.Nonce = 0
	data, err := b.Encode()
	if err != nil {
		return err
	}

	nonce, err := m.search(ctx, data, target)
	if err != nil {
		m.evHandler("miner: PerformPOW: MINING: STOPPED: %s", err)
		return err
	}
	b.Header.Nonce = nonce

	m.evHandler("miner: PerformPOW: MINING: SOLVED: nonce[%d]", nonce)

	return nil
}

// search partitions the nonce space by stride across the workers. Worker w
// tries w, w+n, w+2n and so on. The first worker to solve the puzzle wins
// the found flag and the rest stop.
func (m *Miner) search(ctx context.Context, data []byte, target *big.Int) (uint64, error) {
	var (
		found    atomic.Bool
		solution uint64
		attempts atomic.Uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	stride := uint64(m.workers)

	for w := range stride {
		g.Go(func() error {
			buf := make([]byte, len(data))
			copy(buf, data)

			for nonce := w; ; nonce += stride {
				if gctx.Err() != nil || found.Load() {
					return nil
				}

				binary.LittleEndian.PutUint64(buf[nonceOffset:], nonce)
				hash := sha512.Sum512(buf)

				if isHashSolved(hash[:], target) {
					if found.CompareAndSwap(false, true) {
						solution = nonce
					}
					return nil
				}

				n := attempts.Add(1)
				if n%1_000_000 == 0 {
					m.evHandler("miner: PerformPOW: MINING: attempts[%d]", n)
				}
				if m.maxAttempts > 0 && n >= m.maxAttempts {
					return ErrProofOfWorkExhausted
				}

				// This worker covered its share of the 64 bit space.
				if nonce > math.MaxUint64-stride {
					return nil
				}
			}
		})
	}

	err := g.Wait()

	switch {
	case found.Load():
		return solution, nil
	case err != nil:
		return 0, err
	case ctx.Err() != nil:
		return 0, ctx.Err()
	}

	return 0, ErrProofOfWorkExhausted
}

// =============================================================================

// ValidateHash recomputes the target from the block's stored size and
// checks the block hash is below it.
func (m *Miner) ValidateHash(b Block) bool {
	return ValidateHash(b, m.difficulty)
}

// Validate checks both the proof of work and the signature. The two checks
// are independent of each other.
func (m *Miner) Validate(b Block) bool {
	return m.ValidateHash(b) && b.VerifySignature()
}

// ValidateHash checks the block hash against the target derived by the
// difficulty rule.
func ValidateHash(b Block, difficulty DifficultyFunc) bool {
	hash, err := b.Hash()
	if err != nil {
		return false
	}

	return isHashSolved(hash, Target(difficulty(b.Header.TotalSize)))
}
