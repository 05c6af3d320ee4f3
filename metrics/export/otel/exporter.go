package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() shelfauth.MetricsSnapshot
	MailDropped() uint64
}

// series is one family member with its pre-built attribute option.
type series struct {
	id    shelfauth.MetricID
	attrs metric.ObserveOption
}

type family struct {
	counter metric.Int64ObservableCounter
	series  []series
}

type histogram struct {
	id      shelfauth.MetricID
	buckets metric.Int64ObservableGauge
	le      [8]metric.ObserveOption
	count   metric.Int64ObservableCounter
	sum     metric.Float64ObservableCounter
}

// OTelExporter publishes engine metrics as observable OTel instruments. Each
// counter family is one instrument with a label attribute. Histograms are
// exposed as a cumulative bucket gauge keyed by le plus count and sum.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []family
	histograms   []histogram
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *shelfauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is NewOTelExporter for any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{counter: ins, series: make([]series, 0, len(def.Members))}
		for _, m := range def.Members {
			s := series{id: m.ID}
			if def.Label != "" {
				s.attrs = metric.WithAttributes(attribute.String(def.Label, m.Value))
			}
			f.series = append(f.series, s)
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.Histograms {
		h := histogram{id: def.ID}
		var err error
		if h.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative bucket counts.")); err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		if h.count, err = meter.Int64ObservableCounter(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count.")); err != nil {
			return nil, fmt.Errorf("create count %s: %w", def.Name, err)
		}
		if h.sum, err = meter.Float64ObservableCounter(def.Name+"_sum",
			metric.WithDescription(def.Help+" Total observed time."), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("create sum %s: %w", def.Name, err)
		}
		for i, le := range internaldefs.BucketLabels {
			h.le[i] = metric.WithAttributes(attribute.String("le", le))
		}
		e.histograms = append(e.histograms, h)
		observables = append(observables, h.buckets, h.count, h.sum)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	values := internaldefs.Values(snapshot, e.source.MailDropped())

	for _, f := range e.families {
		for _, s := range f.series {
			if s.attrs == nil {
				o.ObserveInt64(f.counter, int64(values[s.id]))
				continue
			}
			o.ObserveInt64(f.counter, int64(values[s.id]), s.attrs)
		}
	}

	for _, h := range e.histograms {
		if _, ok := snapshot.Histograms[h.id]; !ok {
			continue
		}
		p := internaldefs.Point(snapshot, h.id)
		for i, v := range p.Buckets {
			o.ObserveInt64(h.buckets, int64(v), h.le[i])
		}
		o.ObserveInt64(h.count, int64(p.Count))
		o.ObserveFloat64(h.sum, p.Sum.Seconds())
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
