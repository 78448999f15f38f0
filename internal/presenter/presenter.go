// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter turns an acquisition snapshot into the data the output templates
// render: the selected status with its icon, localized status text, formatted
// coordinates and address fields plus some sugar like the humanized fix age and the
// sunrise/sunset times at the located coordinates.
package presenter

import (
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"
	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locate/internal/acquire"
	"github.com/wneessen/waybar-locate/internal/geocode"
)

var statusIcons = map[acquire.Status]string{
	acquire.StatusIdle:      "🧭",
	acquire.StatusSearching: "🛰️",
	acquire.StatusFound:     "📍",
	acquire.StatusDisabled:  "🚫",
	acquire.StatusError:     "⚠️",
}

var i18nVars = map[string]localize.MsgID{
	"error":       "Failed to update location",
	"disabled":    "Location services are disabled",
	"searching":   "Updating location…",
	"idle":        "Press to locate",
	"noaddress":   "Address unavailable",
	"address":     "Address",
	"accuracy":    "Accuracy",
	"source":      "Source",
	"coordinates": "Coordinates",
	"lastfix":     "Last fix",
	"sunrise":     "Sunrise",
	"sunset":      "Sunset",
}

// TemplateContext carries everything the text and tooltip templates can refer to.
// Fields that depend on a fix or an address hold their zero value until one exists.
type TemplateContext struct {
	StatusIcon string
	StatusText string
	Class      string
	Percentage int

	Searching       bool
	GeocodeInFlight bool

	Latitude  float64
	Longitude float64
	Accuracy  float64
	Source    string
	FixTime   time.Time
	FixAge    string

	Address            geocode.Address
	AddressUnavailable bool

	SunriseTime time.Time
	SunsetTime  time.Time
}

// Presenter builds template contexts from acquisition snapshots.
type Presenter struct {
	localizer      *spreak.Localizer
	humanizer      *humanize.Humanizer
	targetAccuracy float64
}

// New returns a Presenter localizing its output with the given localizer and language.
func New(loc *spreak.Localizer, lang language.Tag, targetAccuracy float64) *Presenter {
	collection := humanize.MustNew(humanize.WithLocale(de.New()))
	return &Presenter{
		localizer:      loc,
		humanizer:      collection.CreateHumanizer(lang),
		targetAccuracy: targetAccuracy,
	}
}

// BuildContext assembles the template context for the given snapshot. The now argument
// anchors the sunrise/sunset calculation.
func (p *Presenter) BuildContext(snap acquire.Snapshot, servicesDisabled bool, now time.Time) TemplateContext {
	status := snap.Status(servicesDisabled)
	ctx := TemplateContext{
		StatusIcon:      IconWithSpace(statusIcons[status]),
		StatusText:      p.statusText(status, snap),
		Class:           status.String(),
		Percentage:      p.percentage(status, snap),
		Searching:       snap.Acquiring,
		GeocodeInFlight: snap.GeocodeInFlight,
	}

	if snap.HasFix() {
		fix := snap.Best.Value()
		ctx.Latitude = fix.Lat
		ctx.Longitude = fix.Lon
		ctx.Accuracy = fix.Accuracy
		ctx.Source = fix.Source
		ctx.FixTime = fix.At
		ctx.FixAge = p.humanizer.NaturalTime(fix.At)
		ctx.SunriseTime, ctx.SunsetTime = sunrise.SunriseSunset(fix.Lat, fix.Lon, now.Year(),
			now.Month(), now.Day())
	}
	if snap.HasAddress() {
		ctx.Address = snap.Address.Value()
	}
	ctx.AddressUnavailable = snap.GeocodeErr != nil ||
		(snap.Address.IsSet() && !snap.Address.Value().Found)

	return ctx
}

// statusText selects the localized headline for the status. A found location prefers
// the resolved address over raw coordinates.
func (p *Presenter) statusText(status acquire.Status, snap acquire.Snapshot) string {
	switch status {
	case acquire.StatusError:
		return p.localizer.Get(i18nVars["error"])
	case acquire.StatusDisabled:
		return p.localizer.Get(i18nVars["disabled"])
	case acquire.StatusSearching:
		return p.localizer.Get(i18nVars["searching"])
	case acquire.StatusFound:
		if snap.HasAddress() {
			return snap.Address.Value().DisplayName
		}
		fix := snap.Best.Value()
		return fmt.Sprintf("%.5f, %.5f", fix.Lat, fix.Lon)
	default:
		return p.localizer.Get(i18nVars["idle"])
	}
}

// percentage maps the snapshot to waybar's percentage field: 100 with a fix held, the
// accuracy progress towards the target while searching and 0 otherwise.
func (p *Presenter) percentage(status acquire.Status, snap acquire.Snapshot) int {
	switch status {
	case acquire.StatusFound:
		return 100
	case acquire.StatusSearching:
		if !snap.HasFix() || p.targetAccuracy <= 0 {
			return 0
		}
		progress := int(p.targetAccuracy / snap.Best.Value().Accuracy * 100)
		if progress > 99 {
			progress = 99
		}
		return progress
	default:
		return 0
	}
}
