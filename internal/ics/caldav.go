package ics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"calstat/internal/analyzer"
	"calstat/internal/config"
	appLog "calstat/internal/log"
	"calstat/internal/model"
)

// CalDAVLoader reads VEVENTs from one CalDAV calendar collection.
type CalDAVLoader struct {
	client   *caldav.Client
	endpoint string
	calendar string
}

// NewCalDAVLoader connects to cfg.Endpoint. httpClient may be nil; basic
// auth is layered on when a username is configured.
func NewCalDAVLoader(cfg config.CalDAVConfig, httpClient webdav.HTTPClient) (*CalDAVLoader, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("caldav: endpoint is empty")
	}
	if cfg.Calendar == "" {
		return nil, errors.New("caldav: calendar path is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}

	client, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: connect: %w", err)
	}
	return &CalDAVLoader{client: client, endpoint: cfg.Endpoint, calendar: cfg.Calendar}, nil
}

// openEnd stands in for a missing window end. go-webdav always writes both
// time-range attributes, and a zero end would match nothing.
var openEnd = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// queryRange returns the time-range sent to the server for w, widened by a
// day on each side because normalization may shift instants. Both bounds
// are zero when w is unbounded, which drops the time-range entirely.
func queryRange(w analyzer.Window) (start, end time.Time) {
	if w.Start.IsZero() && w.End.IsZero() {
		return time.Time{}, time.Time{}
	}
	if !w.Start.IsZero() {
		start = w.Start.AddDate(0, 0, -1).UTC()
	}
	end = openEnd
	if !w.End.IsZero() {
		end = w.End.AddDate(0, 0, 1).UTC()
	}
	return start, end
}

// Load queries the collection for events around w. The analyzer applies
// the exact window afterwards.
func (l *CalDAVLoader) Load(ctx context.Context, w analyzer.Window) ([]model.RawEvent, error) {
	filter := caldav.CompFilter{Name: ical.CompEvent}
	filter.Start, filter.End = queryRange(w)

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{filter},
		},
	}

	objects, err := l.client.QueryCalendar(ctx, l.calendar, query)
	if err != nil {
		appLog.Error("caldav query failed", err, "endpoint", redactURL(l.endpoint))
		return nil, fmt.Errorf("caldav: query calendar: %w", err)
	}

	events := make([]model.RawEvent, 0, len(objects))
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, rawFromCalendar(obj.Path, obj.Data)...)
	}

	appLog.Info("caldav load completed", "endpoint", redactURL(l.endpoint), "objects", len(objects), "event_count", len(events))
	return events, nil
}

// rawFromCalendar converts every VEVENT child of cal. Events whose start
// cannot be parsed are logged and skipped.
func rawFromCalendar(path string, cal *ical.Calendar) []model.RawEvent {
	var out []model.RawEvent
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := rawFromComponent(comp)
		if err != nil {
			appLog.Error("caldav vevent parse failed", err, "path", path, "uid", ev.UID)
			continue
		}
		out = append(out, ev)
	}
	return out
}

func rawFromComponent(comp *ical.Component) (model.RawEvent, error) {
	var out model.RawEvent

	if p := comp.Props.Get(ical.PropUID); p != nil {
		out.UID = p.Value
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		out.Summary = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		out.Description = p.Value
	}

	if p := comp.Props.Get(ical.PropDateTimeStart); p != nil {
		m, err := parseMarker(p.Value, p.Params.Get(ical.ParamValue), p.Params.Get(ical.ParamTimezoneID))
		if err != nil {
			return out, fmt.Errorf("DTSTART %q: %w", p.Value, err)
		}
		out.Start = &m
	}
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		out.End = endMarker(out.UID, p.Value, p.Params.Get(ical.ParamValue), p.Params.Get(ical.ParamTimezoneID))
	}

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		out.RRule = p.Value
		out.Recurring = recurring(out.UID, p.Value)
	}

	return out, nil
}
