package schedule

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/planwerk/planwerk/engine"
)

// handleICalFeed serves an owner's active appointments as an iCal feed so
// calendars can subscribe to them.
func (m *Module) handleICalFeed(r *http.Request) engine.Response {
	ownerID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "owner id must be a number")
	}

	appts, err := m.queryAppointments(r.Context(), ownerID, time.Time{}, time.Time{})
	if err != nil {
		return engine.Error(err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//planwerk//appointments//EN")
	for _, a := range appts {
		ev := cal.AddEvent(fmt.Sprintf("appointment-%d@planwerk", a.ID))
		ev.SetCreatedTime(time.Unix(a.Created, 0))
		ev.SetStartAt(a.Start())
		ev.SetEndAt(a.End())
		ev.SetSummary(a.Title)
		if a.SeriesID != nil && a.SeriesIndex != nil {
			ev.SetDescription(fmt.Sprintf("Occurrence %d of series %s", *a.SeriesIndex, *a.SeriesID))
		}
	}

	return &icsResponse{body: cal.Serialize()}
}

type icsResponse struct {
	body string
}

func (i *icsResponse) Write(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=appointments.ics")
	w.Write([]byte(i.body))
}
