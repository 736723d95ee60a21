package frost

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatastreamsQuery(t *testing.T) {
	t.Parallel()

	got := DatastreamsQuery(1000)
	assert.Equal(t,
		"Datastreams?$top=1000&$orderby=@iot.id%20asc"+
			"&$select=@iot.id,name,description,properties,observedArea"+
			"&$expand=Thing($select=@iot.id,name,description,properties)",
		got,
	)
}

func TestObservationsQuery(t *testing.T) {
	t.Parallel()

	t.Run("from the beginning", func(t *testing.T) {
		t.Parallel()
		got := ObservationsQuery(42, 500, time.Time{})
		assert.Equal(t,
			"Datastreams(42)/Observations?$top=500&$orderby=phenomenonTime%20desc&$select=@iot.id,phenomenonTime,result",
			got,
		)
	})

	t.Run("resumed", func(t *testing.T) {
		t.Parallel()
		since := time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))
		got := ObservationsQuery(42, 1000, since)

		u, err := url.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, "phenomenonTime gt 2024-01-01T00:00:00Z", u.Query().Get("$filter"))
		assert.Equal(t, "phenomenonTime desc", u.Query().Get("$orderby"))
	})
}
