// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package metrics exposes the engine snapshot as Prometheus metrics. The
// exporter is a custom collector over the published snapshot, so scrapes
// never touch engine internals or block the cycle.
package metrics

import (
	"net/http"
	_ "net/http/pprof"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
)

type Exporter struct {
	relayOn          *prometheus.Desc
	relayTransitions *prometheus.Desc
	relayWorkMask    *prometheus.Desc
	relayAfterRun    *prometheus.Desc
	relayOwner       *prometheus.Desc

	suctionLevel      *prometheus.Desc
	selectFlow        *prometheus.Desc
	flow              *prometheus.Desc
	speed             *prometheus.Desc
	filterStatus      *prometheus.Desc
	filterSaturation  *prometheus.Desc
	errorMask         *prometheus.Desc
	continuousSuction *prometheus.Desc
	settingsDirty     *prometheus.Desc

	chActive      *prometheus.Desc
	chLinkState   *prometheus.Desc
	chLocked      *prometheus.Desc
	chIdleSeconds *prometheus.Desc
	chFrames      *prometheus.Desc
	chFramesValid *prometheus.Desc
	chFrameErrors *prometheus.Desc
	chReplies     *prometheus.Desc
	chSyns        *prometheus.Desc
	chHandshakes  *prometheus.Desc
	chWriteErrors *prometheus.Desc

	snapshot func() *engine.Snapshot
}

func boolValue(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}

func (p *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := p.snapshot()
	if snap == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(
		p.relayOn,
		prometheus.GaugeValue,
		boolValue(snap.RelayOn),
	)
	ch <- prometheus.MustNewConstMetric(
		p.relayTransitions,
		prometheus.CounterValue,
		float64(snap.RelayTransitions),
	)
	ch <- prometheus.MustNewConstMetric(
		p.relayWorkMask,
		prometheus.GaugeValue,
		float64(snap.WorkMask),
	)
	ch <- prometheus.MustNewConstMetric(
		p.relayAfterRun,
		prometheus.GaugeValue,
		snap.AfterRunRemaining.Seconds(),
	)
	ch <- prometheus.MustNewConstMetric(
		p.relayOwner,
		prometheus.GaugeValue,
		float64(snap.AfterRunOwner),
	)

	ch <- prometheus.MustNewConstMetric(
		p.suctionLevel,
		prometheus.GaugeValue,
		float64(snap.Settings.SuctionLevel),
	)
	ch <- prometheus.MustNewConstMetric(
		p.selectFlow,
		prometheus.GaugeValue,
		float64(snap.Settings.SelectFlow),
	)
	ch <- prometheus.MustNewConstMetric(
		p.flow,
		prometheus.GaugeValue,
		float64(snap.Flow),
	)
	ch <- prometheus.MustNewConstMetric(
		p.speed,
		prometheus.GaugeValue,
		float64(snap.Speed),
	)
	ch <- prometheus.MustNewConstMetric(
		p.filterStatus,
		prometheus.GaugeValue,
		float64(snap.Settings.FilterStatus),
	)
	ch <- prometheus.MustNewConstMetric(
		p.filterSaturation,
		prometheus.GaugeValue,
		float64(snap.Settings.FilterSaturation),
	)
	ch <- prometheus.MustNewConstMetric(
		p.errorMask,
		prometheus.GaugeValue,
		float64(snap.ErrorMask),
	)
	ch <- prometheus.MustNewConstMetric(
		p.continuousSuction,
		prometheus.GaugeValue,
		boolValue(snap.Settings.ContinuousSuction),
	)
	ch <- prometheus.MustNewConstMetric(
		p.settingsDirty,
		prometheus.GaugeValue,
		boolValue(snap.SettingsDirty),
	)

	for _, c := range snap.Channels {
		labels := []string{
			strconv.Itoa(c.Index),
		}

		ch <- prometheus.MustNewConstMetric(
			p.chActive,
			prometheus.GaugeValue,
			boolValue(c.Active),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chLinkState,
			prometheus.GaugeValue,
			float64(c.Link),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chLocked,
			prometheus.GaugeValue,
			boolValue(c.AddressLocked),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chIdleSeconds,
			prometheus.GaugeValue,
			c.IdleFor.Seconds(),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chFrames,
			prometheus.CounterValue,
			float64(c.FramesTotal),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chFramesValid,
			prometheus.CounterValue,
			float64(c.FramesValid),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chFrameErrors,
			prometheus.CounterValue,
			float64(c.Errors),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chReplies,
			prometheus.CounterValue,
			float64(c.RepliesSent),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chSyns,
			prometheus.CounterValue,
			float64(c.SynsSent),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chHandshakes,
			prometheus.CounterValue,
			float64(c.Handshakes),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			p.chWriteErrors,
			prometheus.CounterValue,
			float64(c.WriteErrors),
			labels...,
		)
	}
}

func (p *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.relayOn
	ch <- p.relayTransitions
	ch <- p.relayWorkMask
	ch <- p.relayAfterRun
	ch <- p.relayOwner
	ch <- p.suctionLevel
	ch <- p.selectFlow
	ch <- p.flow
	ch <- p.speed
	ch <- p.filterStatus
	ch <- p.filterSaturation
	ch <- p.errorMask
	ch <- p.continuousSuction
	ch <- p.settingsDirty
	ch <- p.chActive
	ch <- p.chLinkState
	ch <- p.chLocked
	ch <- p.chIdleSeconds
	ch <- p.chFrames
	ch <- p.chFramesValid
	ch <- p.chFrameErrors
	ch <- p.chReplies
	ch <- p.chSyns
	ch <- p.chHandshakes
	ch <- p.chWriteErrors
}

// NewExporter builds the collector over a snapshot source, usually
// Engine.Snapshot. A nil snapshot (engine not cycled yet) collects
// nothing.
func NewExporter(snapshot func() *engine.Snapshot) *Exporter {
	namespace := "fae"
	chLabels := []string{"channel"}

	return &Exporter{
		snapshot: snapshot,
		relayOn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "on"),
			"Relay output state (1=on, 0=off)",
			[]string{},
			nil,
		),
		relayTransitions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "transitions_total"),
			"Number of relay output changes",
			[]string{},
			nil,
		),
		relayWorkMask: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "work_mask"),
			"Bitmask of channels with an active work signal",
			[]string{},
			nil,
		),
		relayAfterRun: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "afterrun_seconds"),
			"Remaining after-run time in seconds, 0 when none is pending",
			[]string{},
			nil,
		),
		relayOwner: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "afterrun_owner"),
			"Channel owning the pending after-run, -1 when none",
			[]string{},
			nil,
		),
		suctionLevel: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "suction_level"),
			"Configured suction level (0-3)",
			[]string{},
			nil,
		),
		selectFlow: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "select_flow"),
			"Selected flow setpoint",
			[]string{},
			nil,
		),
		flow: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "flow"),
			"Emulated measured flow",
			[]string{},
			nil,
		),
		speed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "speed"),
			"Emulated turbine speed",
			[]string{},
			nil,
		),
		filterStatus: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "filter_status"),
			"Remaining filter life (0-1000)",
			[]string{},
			nil,
		),
		filterSaturation: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "filter_saturation"),
			"Filter saturation (0-1000)",
			[]string{},
			nil,
		),
		errorMask: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "error_mask"),
			"Station error bitmask",
			[]string{},
			nil,
		),
		continuousSuction: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "station", "continuous_suction"),
			"Continuous suction override (1=on, 0=off)",
			[]string{},
			nil,
		),
		settingsDirty: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "persist", "dirty"),
			"Settings changed but not yet written to disk (1=dirty)",
			[]string{},
			nil,
		),
		chActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "active"),
			"Channel enabled (1=active, 0=disabled)",
			chLabels,
			nil,
		),
		chLinkState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "link_state"),
			"Link state (0=down, 1=connecting, 2=up)",
			chLabels,
			nil,
		),
		chLocked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "address_locked"),
			"Protocol address adopted and locked (1=locked)",
			chLabels,
			nil,
		),
		chIdleSeconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "idle_seconds"),
			"Seconds since the last received byte",
			chLabels,
			nil,
		),
		chFrames: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "frames_total"),
			"Frames decoded, valid or not",
			chLabels,
			nil,
		),
		chFramesValid: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "frames_valid_total"),
			"Frames decoded with a good checksum",
			chLabels,
			nil,
		),
		chFrameErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "frame_errors_total"),
			"Decode errors of any kind",
			chLabels,
			nil,
		),
		chReplies: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "replies_sent_total"),
			"Reply frames transmitted",
			chLabels,
			nil,
		),
		chSyns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "syns_sent_total"),
			"SYN bytes transmitted during handshakes",
			chLabels,
			nil,
		),
		chHandshakes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "handshakes_total"),
			"Completed link handshakes",
			chLabels,
			nil,
		),
		chWriteErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "write_errors_total"),
			"Transport write failures",
			chLabels,
			nil,
		),
	}
}

// Serve registers the exporter and serves /metrics (plus pprof) until the
// listener fails. Run it on its own goroutine.
func Serve(log *logrus.Logger, addr string, snapshot func() *engine.Snapshot) error {
	prometheus.MustRegister(NewExporter(snapshot))

	http.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("Serving Prometheus metrics")
	return http.ListenAndServe(addr, nil)
}
