package webui

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"ressuche.dev/internal/utils"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugLink struct {
	Href  string
	Label string
}

type debugData struct {
	Title string
	Links []debugLink
	Pre   string
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func writeDebugData(w http.ResponseWriter, data debugData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := debugTemplate.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// debugIndexHandler lists every search the manager knows.
func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	data := debugData{Title: "Searches"}
	for _, snap := range webUI.Sessions.List() {
		data.Links = append(data.Links, debugLink{
			Href: "/debug/searches/" + snap.ID + "?key=" + r.URL.Query().Get("key"),
			Label: fmt.Sprintf("%s  %s -> %s  %s  (%d found)",
				snap.StartedAt.Format("2006-01-02 15:04:05"),
				snap.Params.StartStation, snap.Params.FinalStation,
				snap.State, len(snap.Connections)),
		})
	}
	if len(data.Links) == 0 {
		data.Pre = "no searches"
	}
	writeDebugData(w, data)
}

// debugSearchHandler dumps the full snapshot of one search.
func (webUI *WebUI) debugSearchHandler(w http.ResponseWriter, r *http.Request) {
	id := utils.ExtractIDFromParams(r, "id")
	snap, err := webUI.Sessions.Snapshot(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeDebugData(w, debugData{
		Title: fmt.Sprintf("Search %s (%s)", snap.ID, snap.State),
		Pre:   dumper.Sdump(snap),
	})
}
