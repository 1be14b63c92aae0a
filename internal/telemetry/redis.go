// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package telemetry mirrors engine snapshots into Redis as plain keys, one
// value per key, for dashboards and scripts that poll the lab Redis
// instead of scraping Prometheus. Everything here is best-effort: a dead
// Redis never affects the emulation.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
)

// PublishInterval is how often the snapshot is pushed to Redis.
const PublishInterval = time.Second

// Mirror owns the Redis client and the snapshot source.
type Mirror struct {
	log      *logrus.Logger
	db       *redis.Client
	snapshot func() *engine.Snapshot

	healthy bool
}

// NewMirror connects a mirror to the given Redis address. The connection
// itself is lazy; the first publish reports whether Redis is reachable.
func NewMirror(log *logrus.Logger, addr string, snapshot func() *engine.Snapshot) *Mirror {
	return &Mirror{
		log:      log,
		db:       redis.NewClient(&redis.Options{Addr: addr}),
		snapshot: snapshot,
		healthy:  true,
	}
}

// Run publishes snapshots until the context ends.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := m.db.Close(); err != nil {
				m.log.WithError(err).Debug("Redis close failed")
			}
			return
		case <-ticker.C:
			m.publish(ctx)
		}
	}
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// publish writes one snapshot worth of keys. Failures flip the mirror
// unhealthy and are logged once, not per key and not per tick.
func (m *Mirror) publish(ctx context.Context) {
	snap := m.snapshot()
	if snap == nil {
		return
	}

	pipe := m.db.Pipeline()
	pipe.Set(ctx, "fae:relay:on", boolKey(snap.RelayOn), 0)
	pipe.Set(ctx, "fae:relay:work_mask", strconv.Itoa(int(snap.WorkMask)), 0)
	pipe.Set(ctx, "fae:relay:afterrun_ms", strconv.FormatInt(snap.AfterRunRemaining.Milliseconds(), 10), 0)
	pipe.Set(ctx, "fae:suction", strconv.Itoa(int(snap.Settings.SuctionLevel)), 0)
	pipe.Set(ctx, "fae:select_flow", strconv.Itoa(int(snap.Settings.SelectFlow)), 0)
	pipe.Set(ctx, "fae:flow", strconv.Itoa(int(snap.Flow)), 0)
	pipe.Set(ctx, "fae:speed", strconv.Itoa(int(snap.Speed)), 0)
	pipe.Set(ctx, "fae:continuous", boolKey(snap.Settings.ContinuousSuction), 0)
	pipe.Set(ctx, "fae:filter:status", strconv.Itoa(int(snap.Settings.FilterStatus)), 0)
	pipe.Set(ctx, "fae:filter:saturation", strconv.Itoa(int(snap.Settings.FilterSaturation)), 0)
	pipe.Set(ctx, "fae:error_mask", strconv.Itoa(int(snap.ErrorMask)), 0)
	pipe.Set(ctx, "fae:name", snap.Settings.Name, 0)

	for _, c := range snap.Channels {
		prefix := "fae:channel:" + strconv.Itoa(c.Index)
		pipe.Set(ctx, prefix+":link", c.Link.String(), 0)
		pipe.Set(ctx, prefix+":address", strconv.Itoa(int(c.OwnAddress)), 0)
		pipe.Set(ctx, prefix+":locked", boolKey(c.AddressLocked), 0)
		pipe.Set(ctx, prefix+":frames", strconv.FormatUint(c.FramesValid, 10), 0)
		pipe.Set(ctx, prefix+":errors", strconv.FormatUint(c.Errors, 10), 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		if m.healthy {
			m.log.WithError(err).Warn("Redis mirror unavailable, telemetry paused")
			m.healthy = false
		}
		return
	}
	if !m.healthy {
		m.log.Info("Redis mirror recovered")
		m.healthy = true
	}
}
