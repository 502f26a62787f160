package feed

import (
	"fmt"
	"strings"

	"github.com/transitboard/transitboard/internal/wire"
)

const (
	fieldAlertInformedEntity  = 5
	fieldAlertHeaderText      = 10
	fieldAlertDescriptionText = 11

	fieldTranslatedStringTranslation = 1
	fieldTranslationText             = 1
)

// AlertSchema names the field numbers that locate an Alert inside a
// FeedEntity and a route id inside an EntitySelector. Feeds in the wild
// disagree on both, so the layout is chosen per feed.
type AlertSchema struct {
	Name          string
	EntityAlert   uint32
	SelectorRoute uint32
}

var (
	// LegacyAlertSchema reads the alert from FeedEntity field 2 and the route
	// from EntitySelector field 4.
	LegacyAlertSchema = AlertSchema{Name: "legacy", EntityAlert: 2, SelectorRoute: 4}
	// StandardAlertSchema follows the published gtfs-realtime.proto:
	// FeedEntity.alert is field 5 and EntitySelector.route_id is field 2.
	StandardAlertSchema = AlertSchema{Name: "standard", EntityAlert: 5, SelectorRoute: 2}
)

// ParseAlertSchema maps a configuration value to a schema. The empty string
// selects LegacyAlertSchema.
func ParseAlertSchema(name string) (AlertSchema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LegacyAlertSchema.Name:
		return LegacyAlertSchema, nil
	case StandardAlertSchema.Name:
		return StandardAlertSchema, nil
	}
	return AlertSchema{}, fmt.Errorf("unknown alert schema %q", name)
}

// DecodeAlerts extracts every alert from a FeedMessage buffer, in feed order.
// Entities without an alert are dropped. Like DecodeTripUpdates it never
// fails outright.
func DecodeAlerts(buf []byte, schema AlertSchema) *AlertFeed {
	f := &AlertFeed{}
	f.Aborted = walkMessage(buf, &f.Report, &f.Header, &f.Stats, func(r *wire.Reader) {
		e := alertEntityVisitor{schema: schema}
		_ = wire.Walk(r, &e)
		if e.alert == nil {
			f.Stats.Dropped++
			return
		}
		e.alert.EntityID = e.id
		f.Alerts = append(f.Alerts, *e.alert)
	})
	return f
}

type alertEntityVisitor struct {
	schema AlertSchema
	id     string
	alert  *Alert
}

func (e *alertEntityVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldEntityID, e.schema.EntityAlert:
		return wire.Bytes, true
	}
	return 0, false
}

func (e *alertEntityVisitor) Varint(uint32, uint64) {}

func (e *alertEntityVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldEntityID:
		e.id = r.String()
	case e.schema.EntityAlert:
		e.alert = &Alert{}
		_ = wire.Walk(r, &alertVisitor{alert: e.alert, routeField: e.schema.SelectorRoute})
	}
}

type alertVisitor struct {
	alert      *Alert
	routeField uint32
}

func (a *alertVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldAlertInformedEntity, fieldAlertHeaderText, fieldAlertDescriptionText:
		return wire.Bytes, true
	}
	return 0, false
}

func (a *alertVisitor) Varint(uint32, uint64) {}

func (a *alertVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldAlertInformedEntity:
		sel := selectorVisitor{routeField: a.routeField}
		_ = wire.Walk(r, &sel)
		if sel.route != "" {
			a.alert.InformedRoutes = append(a.alert.InformedRoutes, sel.route)
		}
	case fieldAlertHeaderText:
		a.alert.HeaderText = translatedText(r)
	case fieldAlertDescriptionText:
		a.alert.DescriptionText = translatedText(r)
	}
}

type selectorVisitor struct {
	routeField uint32
	route      string
}

func (s *selectorVisitor) Expect(num uint32) (wire.Type, bool) {
	if num == s.routeField {
		return wire.Bytes, true
	}
	return 0, false
}

func (s *selectorVisitor) Varint(uint32, uint64) {}

func (s *selectorVisitor) Bytes(num uint32, r *wire.Reader) {
	s.route = r.String()
}

// translatedText resolves a TranslatedString to its first non-empty
// translation. Later translations are still walked so that a malformed one is
// reported, then discarded.
func translatedText(r *wire.Reader) string {
	var ts translatedStringVisitor
	_ = wire.Walk(r, &ts)
	return ts.text
}

type translatedStringVisitor struct {
	text string
}

func (ts *translatedStringVisitor) Expect(num uint32) (wire.Type, bool) {
	if num == fieldTranslatedStringTranslation {
		return wire.Bytes, true
	}
	return 0, false
}

func (ts *translatedStringVisitor) Varint(uint32, uint64) {}

func (ts *translatedStringVisitor) Bytes(num uint32, r *wire.Reader) {
	var tr translationVisitor
	_ = wire.Walk(r, &tr)
	if ts.text == "" {
		ts.text = string(tr)
	}
}

type translationVisitor string

func (tr *translationVisitor) Expect(num uint32) (wire.Type, bool) {
	if num == fieldTranslationText {
		return wire.Bytes, true
	}
	return 0, false
}

func (tr *translationVisitor) Varint(uint32, uint64) {}

func (tr *translationVisitor) Bytes(num uint32, r *wire.Reader) {
	*tr = translationVisitor(r.String())
}
