// Package discovery crawls every upstream datastream, classifies it and
// persists the normalized metadata.
package discovery

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/classify"
	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/metrics"
	"github.com/verkehr-aachen/frost-crawler/internal/specialize"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

// Source yields datastream pages with their Thing expanded.
type Source interface {
	Datastreams(ctx context.Context) iter.Seq2[frost.Page[frost.Datastream], error]
}

// Result counts one discovery pass.
type Result struct {
	Seen   int `json:"seen"`
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
	// Malformed counts upstream records that could not be decoded.
	Malformed int            `json:"malformed"`
	Klassen   map[string]int `json:"klassen"`
}

// Discoverer runs discovery passes.
type Discoverer struct {
	source     Source
	writer     store.EntityWriter
	classifier *classify.Classifier
	logger     *zap.Logger
}

// New builds a Discoverer. A nil classifier uses the default rules.
func New(source Source, writer store.EntityWriter, classifier *classify.Classifier, logger *zap.Logger) *Discoverer {
	metrics.Init()
	if classifier == nil {
		classifier = classify.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		source:     source,
		writer:     writer,
		classifier: classifier,
		logger:     logger.Named("discovery"),
	}
}

// Run crawls all datastreams. A failed save is logged and skipped; a failed
// fetch ends the pass and is returned with the counts so far.
func (d *Discoverer) Run(ctx context.Context) (Result, error) {
	res := Result{Klassen: make(map[string]int)}
	for page, err := range d.source.Datastreams(ctx) {
		if err != nil {
			metrics.ObserveDiscovery("fetch_failed")
			return res, fmt.Errorf("crawl datastreams: %w", err)
		}
		if page.Malformed > 0 {
			res.Malformed += page.Malformed
			metrics.ObserveDiscoveryN("malformed", page.Malformed)
			d.logger.Warn("skipped malformed datastream records", zap.Int("count", page.Malformed))
		}
		for _, ds := range page.Value {
			res.Seen++
			class := d.classifier.Classify(ds)
			res.Klassen[class.Klasse]++
			if err := d.writer.SaveEntity(ctx, BuildEntity(ds, class)); err != nil {
				res.Failed++
				metrics.ObserveDiscovery("failed")
				d.logger.Warn("save datastream failed", zap.Int64("ds_id", ds.ID), zap.Error(err))
				continue
			}
			res.Saved++
			metrics.ObserveDiscovery("saved")
		}
	}
	d.logger.Info("discovery finished",
		zap.Int("seen", res.Seen),
		zap.Int("saved", res.Saved),
		zap.Int("failed", res.Failed),
		zap.Int("malformed", res.Malformed),
	)
	return res, nil
}

// BuildEntity assembles the rows persisted for one classified datastream.
func BuildEntity(ds frost.Datastream, class classify.Result) store.Entity {
	row := store.Datastream{
		ID:              ds.ID,
		Klasse:          class.Klasse,
		Beschreibung:    ds.Description,
		Unit:            class.Labels.Unit,
		MeasurementType: class.Labels.MeasurementType,
		Confidential:    class.Confidential,
	}
	if ds.Thing != nil {
		thingID := ds.Thing.ID
		row.ThingID = &thingID
	}
	if loc := class.Location; loc != nil {
		lon, lat := loc.Longitude(), loc.Latitude()
		row.Geometry = loc.Geometry
		row.Longitude = &lon
		row.Latitude = &lat
	}
	e := store.Entity{
		Datastream:      row,
		Specializations: specialize.For(ds, class),
	}
	if class.KlasseID != 0 {
		e.Klasse = &store.Klasse{Klasse: class.Klasse, KlasseID: class.KlasseID}
	}
	return e
}
