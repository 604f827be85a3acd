// Package menu defines the closed set of sidebar items and their icons.
// Item identifiers from configuration are resolved once, at load time.
package menu

import (
	"fmt"
	"strings"
)

// Item identifies a sidebar destination.
type Item string

const (
	Dashboard         Item = "dashboard"
	SecurityDetail    Item = "security-detail"
	TechnicalAnalysis Item = "technical-analysis"
	Watchlists        Item = "watchlists"
	News              Item = "news"
	Settings          Item = "settings"
)

// Icon is an icon variant name understood by front ends.
type Icon string

const (
	IconLayoutDashboard Icon = "layout-dashboard"
	IconLineChart       Icon = "line-chart"
	IconActivity        Icon = "activity"
	IconList            Icon = "list"
	IconNewspaper       Icon = "newspaper"
	IconSettings        Icon = "settings"
)

// Entry is a resolved sidebar item.
type Entry struct {
	Item  Item   `json:"id"`
	Label string `json:"label"`
	Icon  Icon   `json:"icon"`
	Glyph string `json:"glyph"` // terminal rendering
}

var catalog = map[Item]Entry{
	Dashboard:         {Dashboard, "Dashboard", IconLayoutDashboard, "◧"},
	SecurityDetail:    {SecurityDetail, "Security Detail", IconLineChart, "↗"},
	TechnicalAnalysis: {TechnicalAnalysis, "Technical Analysis", IconActivity, "∿"},
	Watchlists:        {Watchlists, "Watchlists", IconList, "≡"},
	News:              {News, "News", IconNewspaper, "▤"},
	Settings:          {Settings, "Settings", IconSettings, "⚙"},
}

// DefaultOrder is used when configuration lists no items.
var DefaultOrder = []Item{Dashboard, SecurityDetail, TechnicalAnalysis, Watchlists, News, Settings}

// Lookup returns the entry for an item.
func Lookup(it Item) (Entry, bool) {
	e, ok := catalog[it]
	return e, ok
}

// Resolve maps configured identifiers to entries in the given order. Unknown
// or repeated identifiers are an error. An empty list yields DefaultOrder.
func Resolve(ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		out := make([]Entry, len(DefaultOrder))
		for i, it := range DefaultOrder {
			out[i] = catalog[it]
		}
		return out, nil
	}

	seen := make(map[Item]bool, len(ids))
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		it := Item(strings.ToLower(strings.TrimSpace(id)))
		e, ok := catalog[it]
		if !ok {
			return nil, fmt.Errorf("unknown menu item %q", id)
		}
		if seen[it] {
			return nil, fmt.Errorf("duplicate menu item %q", id)
		}
		seen[it] = true
		out = append(out, e)
	}
	return out, nil
}
