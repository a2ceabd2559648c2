package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/faultmesh/faultline/internal/models"
)

// ProcFSProvider reads cpu, memory and disk utilisation from the local host
// via /proc and statfs. CPU usage is derived from the delta between
// consecutive readings; the first call reports the since-boot average.
type ProcFSProvider struct {
	fs       procfs.FS
	diskPath string

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
	havePrev  bool
}

// NewProcFSProvider constructs a provider sampling the default /proc mount
// and the filesystem containing diskPath ("/" when empty).
func NewProcFSProvider(diskPath string) (*ProcFSProvider, error) {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &ProcFSProvider{fs: fs, diskPath: diskPath}, nil
}

// Snapshot reads the current utilisation figures.
func (p *ProcFSProvider) Snapshot(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	cpu, err := p.cpuUsage()
	if err != nil {
		return models.Snapshot{}, err
	}
	memory, err := p.memoryUsage()
	if err != nil {
		return models.Snapshot{}, err
	}
	disk, err := p.diskUsage()
	if err != nil {
		return models.Snapshot{}, err
	}

	return models.Snapshot{
		CPUUsage:    cpu,
		MemoryUsage: memory,
		DiskUsage:   disk,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (p *ProcFSProvider) cpuUsage() (float64, error) {
	stat, err := p.fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read /proc/stat: %w", err)
	}

	c := stat.CPUTotal
	busy := c.User + c.Nice + c.System + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	total := busy + c.Idle

	p.mu.Lock()
	defer p.mu.Unlock()

	deltaBusy := busy
	deltaTotal := total
	if p.havePrev {
		deltaBusy = busy - p.prevBusy
		deltaTotal = total - p.prevTotal
	}
	p.prevBusy = busy
	p.prevTotal = total
	p.havePrev = true

	if deltaTotal <= 0 {
		return 0, nil
	}
	return clampPercent(deltaBusy / deltaTotal * 100), nil
}

func (p *ProcFSProvider) memoryUsage() (float64, error) {
	meminfo, err := p.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read /proc/meminfo: %w", err)
	}
	if meminfo.MemTotal == nil || *meminfo.MemTotal == 0 {
		return 0, fmt.Errorf("meminfo reports no total memory")
	}

	total := float64(*meminfo.MemTotal)
	available := 0.0
	if meminfo.MemAvailable != nil {
		available = float64(*meminfo.MemAvailable)
	} else if meminfo.MemFree != nil {
		available = float64(*meminfo.MemFree)
	}
	return clampPercent((total - available) / total * 100), nil
}

func (p *ProcFSProvider) diskUsage() (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(p.diskPath, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", p.diskPath, err)
	}

	used := float64(st.Blocks - st.Bfree)
	usable := used + float64(st.Bavail)
	if usable <= 0 {
		return 0, nil
	}
	return clampPercent(used / usable * 100), nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
