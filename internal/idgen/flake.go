// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sony/sonyflake"
)

// DefaultFlakeGenerator hands out process-wide dispatch and instance IDs.
var DefaultFlakeGenerator *SonyFlakeGenerator

var flakeEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func init() {
	var err error
	DefaultFlakeGenerator, err = NewFlakeGenerator()
	if err != nil {
		slog.Warn("Falling back to random IDs", slog.Any("error", err))
		DefaultFlakeGenerator = &SonyFlakeGenerator{}
	}
}

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewFlakeGenerator derives the machine ID from a private IPv4 address, or
// from the hostname when the host has none.
func NewFlakeGenerator() (*SonyFlakeGenerator, error) {
	return newFlakeGenerator(nil)
}

func newFlakeGenerator(machineID func() (uint16, error)) (*SonyFlakeGenerator, error) {
	st := sonyflake.Settings{StartTime: flakeEpoch, MachineID: machineID}
	sf, err := sonyflake.New(st)
	if err != nil {
		st.MachineID = hostnameMachineID
		sf, err = sonyflake.New(st)
	}
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// hostnameMachineID hashes the hostname into sonyflake's 16 bit machine ID.
// A random ID is used when even the hostname is unavailable.
func hostnameMachineID() (uint16, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uint16(rand.Uint32()), nil
	}
	return uint16(xxhash.Sum64String(host)), nil
}

// NextID returns a positive int64 that increases roughly in time order.
// If the generator is exhausted or unavailable a random ID is returned instead.
func (g *SonyFlakeGenerator) NextID() int64 {
	if g.sf == nil {
		return rand.Int64()
	}
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// NextDispatchID tags one pass of a clip through the pipeline.
func NextDispatchID() int64 {
	return DefaultFlakeGenerator.NextID()
}
