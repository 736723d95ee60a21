package discovery

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/classify"
	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/storage/memory"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

const firstPage = `{
	"value": [
		{
			"@iot.id": 11,
			"name": "Kfz Nord",
			"description": "Zählstelle Nord Fahrspur 3",
			"properties": {"klasse": "Kfz", "klasseId": 7, "fahrspur": "Nord", "fahrspurId": 3, "speedlimit": 50},
			"observedArea": {"type": "Point", "coordinates": [6.0839, 50.7753]},
			"Thing": {"@iot.id": 4, "properties": {"species": "Zaehlstelle"}}
		}
	],
	"@iot.nextLink": "Datastreams?$top=1&$skip=1"
}`

const secondPage = `{
	"value": [
		{
			"@iot.id": 12,
			"description": "AIR_TEMPERATURE",
			"properties": {"klasse": "Luft"},
			"Thing": {"@iot.id": 5, "properties": {}}
		}
	]
}`

func TestDiscoveryLaneEndToEnd(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skip") == "1" {
			_, _ = w.Write([]byte(secondPage))
			return
		}
		_, _ = w.Write([]byte(firstPage))
	}))
	defer srv.Close()

	client, err := frost.New(frost.Config{
		BaseURL:  srv.URL + "/v1.1",
		PageSize: 1,
		Timeout:  2 * time.Second,
		Retry:    frost.NewExponentialRetryPolicy(1, time.Millisecond, time.Millisecond),
	}, zap.NewNop())
	require.NoError(t, err)

	st := memory.NewStore()
	res, err := New(client, st, nil, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, map[string]int{"Kfz": 1, classify.KlasseWeather: 1}, res.Klassen)

	ds, ok := st.Datastream(11)
	require.True(t, ok)
	assert.Equal(t, "Kfz", ds.Klasse)
	require.NotNil(t, ds.ThingID)
	assert.Equal(t, int64(4), *ds.ThingID)
	require.NotNil(t, ds.Longitude)
	assert.InDelta(t, 6.0839, *ds.Longitude, 1e-9)
	assert.InDelta(t, 50.7753, *ds.Latitude, 1e-9)

	spec, ok := st.Specialization("fahrspuren", 11)
	require.True(t, ok)
	lane := spec.(store.Fahrspur)
	assert.Equal(t, "Nord", *lane.Fahrspur)
	assert.Equal(t, int64(3), *lane.FahrspurID)
	assert.Equal(t, int64(50), *lane.Speedlimit)

	id, ok := st.KlasseID("Kfz")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	weather, ok := st.Datastream(12)
	require.True(t, ok)
	assert.Equal(t, classify.KlasseWeather, weather.Klasse, "weather wins over properties.klasse")
	assert.Nil(t, weather.Longitude)
}

func TestDiscoverySkipsMalformedRecordsAndKeepsPaging(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skip") == "2" {
			_, _ = w.Write([]byte(`{"value":[{"@iot.id":3,"description":"Rad","properties":{"klasse":"Bike"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":[
			{"@iot.id":1,"properties":{"klasse":"cC1"}},
			{"@iot.id":2,"properties":[]},
			{"@iot.id":"x","properties":{"klasse":"cC2"}}
		],"@iot.nextLink":"Datastreams?$top=2&$skip=2"}`))
	}))
	defer srv.Close()

	client, err := frost.New(frost.Config{
		BaseURL:  srv.URL + "/v1.1",
		PageSize: 2,
		Timeout:  2 * time.Second,
		Retry:    frost.NewExponentialRetryPolicy(1, time.Millisecond, time.Millisecond),
	}, zap.NewNop())
	require.NoError(t, err)

	st := memory.NewStore()
	res, err := New(client, st, nil, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Seen)
	assert.Equal(t, 3, res.Saved)
	assert.Equal(t, 1, res.Malformed)

	ids, err := st.DatastreamIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ds, ok := st.Datastream(2)
	require.True(t, ok)
	assert.Equal(t, store.KlasseUnknown, ds.Klasse, "non-object properties classify as unknown")
	assert.Equal(t, store.LabelUnknown, ds.Unit)
	assert.True(t, ds.Confidential)

	ds, ok = st.Datastream(3)
	require.True(t, ok)
	assert.Equal(t, "Bikes counted", ds.Unit)
	assert.Equal(t, "bike traffic measurement", ds.MeasurementType)
}

type pagesSource struct {
	pages []frost.Page[frost.Datastream]
	err   error
}

func (s pagesSource) Datastreams(context.Context) iter.Seq2[frost.Page[frost.Datastream], error] {
	return func(yield func(frost.Page[frost.Datastream], error) bool) {
		for _, p := range s.pages {
			if !yield(p, nil) {
				return
			}
		}
		if s.err != nil {
			yield(frost.Page[frost.Datastream]{}, s.err)
		}
	}
}

type flakyWriter struct {
	*memory.Store
	failID int64
}

func (w flakyWriter) SaveEntity(ctx context.Context, e store.Entity) error {
	if e.Datastream.ID == w.failID {
		return fmt.Errorf("%w: deadlock detected", store.ErrWriteFailed)
	}
	return w.Store.SaveEntity(ctx, e)
}

func TestDiscoveryIsolatesSaveFailures(t *testing.T) {
	t.Parallel()

	src := pagesSource{pages: []frost.Page[frost.Datastream]{{Value: []frost.Datastream{
		{ID: 1, Properties: frost.Properties{"klasse": "Parkobjekt"}},
		{ID: 2, Properties: frost.Properties{"type": "E-Ladepunkt"}},
		{ID: 3},
	}}}}
	st := memory.NewStore()
	res, err := New(src, flakyWriter{Store: st, failID: 2}, nil, nil).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Seen: 3, Saved: 2, Failed: 1, Klassen: map[string]int{
		"Parkobjekt":        1,
		"E-Ladepunkt":       1,
		store.KlasseUnknown: 1,
	}}, res)
	ids, err := st.DatastreamIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestDiscoveryReturnsFetchError(t *testing.T) {
	t.Parallel()

	src := pagesSource{
		pages: []frost.Page[frost.Datastream]{{Value: []frost.Datastream{{ID: 1}}}},
		err:   fmt.Errorf("%w: unexpected status 502", frost.ErrFetchFailed),
	}
	st := memory.NewStore()
	res, err := New(src, st, nil, nil).Run(context.Background())

	require.ErrorIs(t, err, frost.ErrFetchFailed)
	assert.Equal(t, 1, res.Saved, "entities before the failure are kept")
}

func TestBuildEntity(t *testing.T) {
	t.Parallel()

	ds := frost.Datastream{
		ID:          21,
		Description: "Ladepunkt 1",
		Properties:  frost.Properties{"klasse": "E-Ladepunkt"},
		ChargePointLocation: frost.Properties{
			"coordinates": map[string]any{"lon": 6.1, "lat": 50.7},
		},
		Thing: &frost.Thing{ID: 9, Properties: frost.Properties{
			"species": "Ladestation",
			"props":   map[string]any{"chargePointType": "AC"},
		}},
	}
	e := BuildEntity(ds, classify.New().Classify(ds))

	assert.Nil(t, e.Klasse, "no klasse id, no mapping row")
	assert.Equal(t, "Ladepunkt 1", e.Datastream.Beschreibung)
	assert.Equal(t, "Occupancy status", e.Datastream.Unit)
	assert.Equal(t, "E-Ladepunkt", e.Datastream.MeasurementType)
	assert.True(t, e.Datastream.Confidential)
	require.NotNil(t, e.Datastream.Latitude)
	assert.InDelta(t, 50.7, *e.Datastream.Latitude, 1e-9)
	require.Len(t, e.Specializations, 1)
	charger, ok := e.Specializations[0].(store.Ladestation)
	require.True(t, ok)
	assert.Equal(t, int64(9), charger.ThingID)
	assert.Equal(t, "AC", *charger.Type)
}
