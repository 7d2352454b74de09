package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/couchcryptid/hdd-momentum-service/internal/app"
	"github.com/couchcryptid/hdd-momentum-service/internal/archive"
	"github.com/couchcryptid/hdd-momentum-service/internal/config"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// endOfTime sorts after every real key, so LatestBefore(endOfTime) is the
// newest record.
var endOfTime = domain.Key{Date: "9999-12-31", Cycle: domain.Cycle12Z}

// runValidate checks the registry, threshold tables, and every archived
// record, and prints a pass/fail report.
func runValidate(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "=== HDD Archive Validation ===")
	fmt.Fprintln(stdout)

	reg, tables, err := config.LoadRegistry(ctx, cfg.RegistryPath, app.NewGeocoder(cfg, logger), logger)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load registry: %v\n", err)
		return 1
	}

	var arch archive.Archive
	if cfg.ArchiveBackend == "sqlite" {
		arch = archive.NewSQLiteArchive(ctx, cfg.ArchivePath, nil, logger)
	} else {
		arch = archive.NewFileArchive(cfg.ArchivePath, nil, logger)
	}
	defer arch.Close()

	phases := []*phase{
		validateRegistry(reg),
		validateTables(tables),
		validateArchive(ctx, arch, reg),
	}

	fmt.Fprintln(stdout)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(stdout, "  %-32s %s\n", p.name, status)
		for _, n := range p.notes {
			fmt.Fprintf(stdout, "    - %s\n", n)
		}
		for _, e := range p.errors {
			fmt.Fprintf(stdout, "    ✗ %s\n", e)
		}
	}
	fmt.Fprintln(stdout)

	if !allPassed {
		return 1
	}
	return 0
}

func validateRegistry(reg *domain.Registry) *phase {
	p := &phase{name: "Location registry"}
	p.notef("version %s, %d locations", reg.Version(), reg.Len())

	var sum float64
	for _, loc := range reg.Locations() {
		sum += loc.Weight
	}
	if math.Abs(sum-1) > 1e-9 {
		p.errorf("normalised weights sum to %.6f", sum)
	}
	return p
}

func validateTables(tables map[domain.Indicator]domain.ThresholdTable) *phase {
	p := &phase{name: "Threshold tables"}
	for ind, t := range tables {
		if err := t.Validate(); err != nil {
			p.errorf("%s: %v", ind, err)
		}
	}
	p.notef("%d indicators", len(tables))
	return p
}

// validateArchive walks every record newest-first through LatestBefore.
func validateArchive(ctx context.Context, arch archive.Archive, reg *domain.Registry) *phase {
	p := &phase{name: "Snapshot archive"}

	st := arch.Status()
	if st.Corrupt {
		p.errorf("archive unreadable: %s", st.Detail)
		return p
	}

	var (
		count       int
		foreignVers = map[string]int{}
		cursor      = endOfTime
	)
	for {
		rec, ok, err := arch.LatestBefore(ctx, cursor)
		if err != nil {
			p.errorf("read before %s: %v", cursor, err)
			break
		}
		if !ok {
			break
		}
		count++
		cursor = rec.Key
		checkRecord(p, rec, reg)
		if rec.WeightTableVersion != reg.Version() {
			foreignVers[rec.WeightTableVersion]++
		}
	}

	p.notef("%d records", count)
	for v, n := range foreignVers {
		p.notef("%d records written under weight table %s (rebuilt with current weights on read)", n, v)
	}
	return p
}

func checkRecord(p *phase, rec archive.Record, reg *domain.Registry) {
	if rec.Horizon != domain.Horizon {
		p.errorf("%s: horizon %d, want %d", rec.Key, rec.Horizon, domain.Horizon)
	}
	for id, values := range rec.Series {
		if _, ok := reg.Location(id); !ok {
			p.notef("%s: series for %q is not in the current registry", rec.Key, id)
		}
		if len(values) != domain.Horizon {
			p.errorf("%s: %s has %d values, want %d", rec.Key, id, len(values), domain.Horizon)
			continue
		}
		for i, v := range values {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				p.errorf("%s: %s day %d is %v", rec.Key, id, i, v)
			}
		}
	}
	if len(rec.Series) == 0 {
		p.errorf("%s: no series", rec.Key)
	}
}
