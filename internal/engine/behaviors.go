package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/faultmesh/faultline/internal/models"
)

// Synthetic perturbation budgets. These keep Simulate bounded; the point is
// to nudge the sampled metrics, not to genuinely degrade the host.
const (
	cpuBurnBudget   = 100 * time.Millisecond
	leakChunkSize   = 1 << 20
	leakChunkCount  = 10
	scratchFileSize = 1 << 20
	ioStressRounds  = 5
)

// behaviorFor maps a kind to its remediation capability. Unlisted kinds
// (catalog overrides can add them) fall back to a no-op remediation that
// reports every step as done.
func behaviorFor(kind models.FaultKind) Behavior {
	switch kind {
	case models.KindCPUOverload:
		return cpuOverloadBehavior{}
	case models.KindMemoryLeak:
		return memoryLeakBehavior{}
	case models.KindDiskFill:
		return diskFillBehavior{}
	case models.KindIOStress:
		return ioStressBehavior{}
	default:
		return noopBehavior{}
	}
}

type cpuOverloadBehavior struct{}

// Simulate spins the CPU for a short, bounded window.
func (cpuOverloadBehavior) Simulate(ctx context.Context) error {
	deadline := time.Now().Add(cpuBurnBudget)
	sink := 0
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < 10000; i++ {
			sink += i * i
		}
	}
	_ = sink
	return nil
}

func (cpuOverloadBehavior) Recover(ctx context.Context, step int) bool {
	if ctx.Err() != nil {
		return false
	}
	// Yield so the scheduler can drain any synthetic load.
	runtime.Gosched()
	return true
}

type memoryLeakBehavior struct{}

// Simulate briefly holds a batch of heap allocations before releasing them.
func (memoryLeakBehavior) Simulate(ctx context.Context) error {
	chunks := make([][]byte, 0, leakChunkCount)
	for i := 0; i < leakChunkCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks = append(chunks, make([]byte, leakChunkSize))
	}
	for i := range chunks {
		chunks[i][0] = byte(i)
	}
	return nil
}

func (memoryLeakBehavior) Recover(ctx context.Context, step int) bool {
	if ctx.Err() != nil {
		return false
	}
	runtime.GC()
	return true
}

type diskFillBehavior struct{}

// Simulate writes and removes a scratch file in the temp directory.
func (diskFillBehavior) Simulate(ctx context.Context) error {
	return writeScratchFile(ctx, "faultline-diskfill-*.tmp", scratchFileSize)
}

func (diskFillBehavior) Recover(ctx context.Context, step int) bool {
	if ctx.Err() != nil {
		return false
	}
	// Sweep any scratch files a crashed simulation may have left behind.
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "faultline-*.tmp"))
	if err != nil {
		return false
	}
	for _, match := range matches {
		_ = os.Remove(match)
	}
	return true
}

type ioStressBehavior struct{}

// Simulate performs a handful of write-then-delete rounds.
func (ioStressBehavior) Simulate(ctx context.Context) error {
	for i := 0; i < ioStressRounds; i++ {
		if err := writeScratchFile(ctx, "faultline-iostress-*.tmp", scratchFileSize/4); err != nil {
			return err
		}
	}
	return nil
}

func (ioStressBehavior) Recover(ctx context.Context, step int) bool {
	return ctx.Err() == nil
}

type noopBehavior struct{}

func (noopBehavior) Simulate(context.Context) error { return nil }

func (noopBehavior) Recover(context.Context, int) bool { return true }

func writeScratchFile(ctx context.Context, pattern string, size int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.CreateTemp("", pattern)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	name := file.Name()
	defer os.Remove(name)

	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		file.Close()
		return fmt.Errorf("fill scratch payload: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("write scratch file: %w", err)
	}
	return file.Close()
}
