/*
Copyright © 2024 the ARTMIPStandardizer authors.
This file is part of ARTMIPStandardizer.

ARTMIPStandardizer is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ARTMIPStandardizer is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ARTMIPStandardizer.  If not, see <http://www.gnu.org/licenses/>.
*/

package artmiputil

import (
	"fmt"

	"github.com/sirupsen/logrus"

	artmip "github.com/taobrienlbl/ARTMIPStandardizer"
)

// Scatter returns the contiguous sublist of work items assigned to one of
// size cooperating processes. The partition is static: the first
// len(items) mod size processes receive one extra item, and every item is
// assigned to exactly one process.
func Scatter(items []WorkItem, rank, size int) ([]WorkItem, error) {
	if size < 1 {
		return nil, fmt.Errorf("artmiputil: process count must be positive, got %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("artmiputil: process rank %d out of range [0,%d)", rank, size)
	}
	n := len(items)
	base, extra := n/size, n%size
	begin := rank*base + min(rank, extra)
	end := begin + base
	if rank < extra {
		end++
	}
	return items[begin:end], nil
}

// RunOptions carry the per-run settings shared by all work items.
type RunOptions struct {
	CompressionLevel      int
	DecodeFilesSeparately bool
	Verbose               bool
	// ExtraMetadata is applied on top of the per-experiment coordinate
	// attribute overrides.
	ExtraMetadata map[string]map[string]string
	// TagFillValue, when non-nil, is written as the AR tag variable's
	// fill value.
	TagFillValue *float64
}

// itemMetadata merges the extra overrides over the per-experiment
// defaults.
func itemMetadata(item WorkItem, extra map[string]map[string]string) map[string]map[string]string {
	overrides := CoordOverrides(item.Experiment)
	for v, attrs := range extra {
		if overrides[v] == nil {
			overrides[v] = make(map[string]string)
		}
		for att, val := range attrs {
			overrides[v][att] = val
		}
	}
	return overrides
}

// RunWorkPlan runs one standardization per work item, strictly in
// sequence. A failed item aborts only that item's run; the loop continues
// with the next item and the number of failures is reported at the end.
// Runs are kept sequential within the process because the NetCDF layer is
// not safe under concurrent access; parallelism comes from scattering
// items across processes.
func RunWorkPlan(items []WorkItem, opts RunOptions, log *logrus.Logger) error {
	failures := 0
	for _, item := range items {
		l := log.WithFields(logrus.Fields{
			"algorithm":  item.Algorithm,
			"experiment": item.Experiment,
		})
		l.Info("standardizing")

		progress := make(chan string)
		done := make(chan struct{})
		go func() {
			for msg := range progress {
				l.Info(msg)
			}
			close(done)
		}()

		cfg := artmip.DefaultConfig()
		cfg.CandidateFiles = artmip.FileSpec{Pattern: item.CandidatePattern}
		cfg.ReferenceFiles = artmip.FileSpec{Pattern: item.ReferencePattern}
		cfg.OutputTemplate = item.OutputTemplate
		cfg.CompressionLevel = opts.CompressionLevel
		cfg.CandidateMetadata = itemMetadata(item, opts.ExtraMetadata)
		cfg.ReferenceMetadata = itemMetadata(item, opts.ExtraMetadata)
		cfg.TagFillValue = opts.TagFillValue
		cfg.DecodeFilesSeparately = opts.DecodeFilesSeparately
		cfg.Verbose = opts.Verbose
		cfg.Progress = progress

		_, err := artmip.New(cfg, nil)
		close(progress)
		<-done
		if err != nil {
			l.WithError(err).Error("standardization failed")
			failures++
			continue
		}
		l.Info("done")
	}
	if failures > 0 {
		return fmt.Errorf("artmiputil: %d of %d work items failed", failures, len(items))
	}
	return nil
}
