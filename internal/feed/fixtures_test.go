package feed

import (
	"testing"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

const fixtureTimestamp = 1700000000

type stopFixture struct {
	Sequence  uint32
	StopID    string
	Arrival   int64
	Departure int64
}

type tripFixture struct {
	TripID  string
	RouteID string
	Stops   []stopFixture
}

func buildTripUpdates(t *testing.T, trips []tripFixture) []byte {
	t.Helper()

	entities := make([]*gtfsrt.FeedEntity, 0, len(trips))
	for _, trip := range trips {
		updates := make([]*gtfsrt.TripUpdate_StopTimeUpdate, 0, len(trip.Stops))
		for _, stop := range trip.Stops {
			stu := &gtfsrt.TripUpdate_StopTimeUpdate{
				StopSequence: proto.Uint32(stop.Sequence),
				StopId:       proto.String(stop.StopID),
			}
			if stop.Arrival != 0 {
				stu.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(stop.Arrival)}
			}
			if stop.Departure != 0 {
				stu.Departure = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(stop.Departure)}
			}
			updates = append(updates, stu)
		}
		entities = append(entities, &gtfsrt.FeedEntity{
			Id: proto.String(trip.TripID),
			TripUpdate: &gtfsrt.TripUpdate{
				Trip: &gtfsrt.TripDescriptor{
					TripId:  proto.String(trip.TripID),
					RouteId: proto.String(trip.RouteID),
				},
				StopTimeUpdate: updates,
			},
		})
	}

	return marshalFeed(t, entities)
}

type alertFixture struct {
	ID          string
	Header      string
	Description string
	Routes      []string
}

// buildStandardAlerts encodes alerts with the published gtfs-realtime.proto
// field numbers.
func buildStandardAlerts(t *testing.T, alerts []alertFixture) []byte {
	t.Helper()

	entities := make([]*gtfsrt.FeedEntity, 0, len(alerts))
	for _, a := range alerts {
		alert := &gtfsrt.Alert{
			HeaderText:      translated(a.Header),
			DescriptionText: translated(a.Description),
		}
		for _, route := range a.Routes {
			alert.InformedEntity = append(alert.InformedEntity, &gtfsrt.EntitySelector{RouteId: proto.String(route)})
		}
		entities = append(entities, &gtfsrt.FeedEntity{Id: proto.String(a.ID), Alert: alert})
	}

	return marshalFeed(t, entities)
}

func translated(text string) *gtfsrt.TranslatedString {
	if text == "" {
		return nil
	}
	return &gtfsrt.TranslatedString{
		Translation: []*gtfsrt.TranslatedString_Translation{{Text: proto.String(text), Language: proto.String("en")}},
	}
}

func marshalFeed(t *testing.T, entities []*gtfsrt.FeedEntity) []byte {
	t.Helper()

	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	msg := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(fixtureTimestamp),
		},
		Entity: entities,
	}
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

// buildLegacyAlerts encodes alerts with the alert in FeedEntity field 2 and
// the route id in EntitySelector field 4, which no generated type can
// produce.
func buildLegacyAlerts(alerts []alertFixture) []byte {
	var msg []byte
	msg = appendMessage(msg, 1, protowire.AppendString(protowire.AppendTag(nil, 1, protowire.BytesType), "2.0"))
	for _, a := range alerts {
		var alert []byte
		for _, route := range a.Routes {
			sel := protowire.AppendTag(nil, 4, protowire.BytesType)
			sel = protowire.AppendString(sel, route)
			alert = appendMessage(alert, 5, sel)
		}
		if a.Header != "" {
			alert = appendMessage(alert, 10, translationBytes(a.Header))
		}
		if a.Description != "" {
			alert = appendMessage(alert, 11, translationBytes(a.Description))
		}

		entity := protowire.AppendTag(nil, 1, protowire.BytesType)
		entity = protowire.AppendString(entity, a.ID)
		entity = appendMessage(entity, 2, alert)
		msg = appendMessage(msg, 2, entity)
	}
	return msg
}

func translationBytes(text string) []byte {
	tr := protowire.AppendTag(nil, 1, protowire.BytesType)
	tr = protowire.AppendString(tr, text)
	return appendMessage(nil, 1, tr)
}

func appendMessage(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}
