package frost

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	datastreamSelect  = "@iot.id,name,description,properties,observedArea"
	thingSelect       = "@iot.id,name,description,properties"
	observationSelect = "@iot.id,phenomenonTime,result"
)

// FROST accepts raw "$", "@", "," and parentheses in query values; only the
// characters that would break the query string itself are escaped.
var queryValueEscaper = strings.NewReplacer(
	" ", "%20",
	"&", "%26",
	"#", "%23",
	"+", "%2B",
)

type queryParam struct {
	key   string
	value string
}

func buildQuery(path string, params ...queryParam) string {
	var b strings.Builder
	b.WriteString(path)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(queryValueEscaper.Replace(p.value))
	}
	return b.String()
}

// DatastreamsQuery lists all datastreams in id order with their Thing.
func DatastreamsQuery(pageSize int) string {
	return buildQuery("Datastreams",
		queryParam{"$top", strconv.Itoa(pageSize)},
		queryParam{"$orderby", "@iot.id asc"},
		queryParam{"$select", datastreamSelect},
		queryParam{"$expand", "Thing($select=" + thingSelect + ")"},
	)
}

// ObservationsQuery lists a datastream's observations newest first. A
// non-zero since adds a strict lower bound on phenomenon time.
func ObservationsQuery(dsID int64, pageSize int, since time.Time) string {
	params := []queryParam{
		{"$top", strconv.Itoa(pageSize)},
		{"$orderby", "phenomenonTime desc"},
		{"$select", observationSelect},
	}
	if !since.IsZero() {
		params = append(params, queryParam{"$filter", "phenomenonTime gt " + since.UTC().Format(time.RFC3339Nano)})
	}
	return buildQuery(fmt.Sprintf("Datastreams(%d)/Observations", dsID), params...)
}
