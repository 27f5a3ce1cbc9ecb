package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/net"
	"github.com/mosaicnetworks/poldercast/src/node"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/mosaicnetworks/poldercast/src/topology"
)

func initService(t *testing.T) (*Service, *http.ServeMux) {
	conf := config.NewTestConfig(t)
	conf.Topics = []string{"A"}

	addr, trans := net.NewInmemTransport("")
	self := profile.NewProfile("self", addr, "A")

	manager, err := topology.NewManager(conf, self, profile.NewStore())
	if err != nil {
		t.Fatal(err)
	}

	manager.Bootstrap(
		profile.NewProfile("peer-a", "addr-a", "A"),
		profile.NewProfile("peer-b", "addr-b", "B"),
	)

	n := node.NewNode(conf, manager, trans)
	t.Cleanup(n.Shutdown)

	mux := http.NewServeMux()
	return NewServiceWithMux("", n, mux, common.NewTestEntry(t, "service")), mux
}

func get(mux *http.ServeMux, path string, v interface{}, t *testing.T) int {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if v != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}

	return rec.Code
}

func TestGetView(t *testing.T) {
	_, mux := initService(t)

	var view []profile.Peer
	if code := get(mux, "/view", &view, t); code != http.StatusOK {
		t.Fatalf("GET /view returned %d", code)
	}

	// peer-b shares no topic but is held by the random membership module
	if len(view) != 2 || view[0].ID != "peer-a" || view[1].ID != "peer-b" {
		t.Fatalf("view should be [peer-a peer-b], not %v", view)
	}
	if view[0].Address != "addr-a" {
		t.Fatalf("peer-a address should be addr-a, not %s", view[0].Address)
	}
}

func TestGetModuleView(t *testing.T) {
	_, mux := initService(t)

	var view []profile.ID
	if code := get(mux, "/view/"+config.Rings, &view, t); code != http.StatusOK {
		t.Fatalf("GET /view/rings returned %d", code)
	}
	if len(view) != 1 || view[0] != "peer-a" {
		t.Fatalf("rings view should be [peer-a], not %v", view)
	}

	if code := get(mux, "/view/unknown", nil, t); code != http.StatusNotFound {
		t.Fatalf("GET /view/unknown should return 404, not %d", code)
	}
}

func TestGetModulesAndProfiles(t *testing.T) {
	_, mux := initService(t)

	var modules []string
	get(mux, "/modules", &modules, t)
	if strings.Join(modules, ",") != "cyclon,vicinity,rings" {
		t.Fatalf("modules should be cyclon,vicinity,rings, not %v", modules)
	}

	var profiles []profile.Profile
	get(mux, "/profiles", &profiles, t)
	if len(profiles) != 2 {
		t.Fatalf("store should hold 2 profiles, not %d", len(profiles))
	}
}

func TestGetStats(t *testing.T) {
	_, mux := initService(t)

	stats := map[string]string{}
	if code := get(mux, "/stats", &stats, t); code != http.StatusOK {
		t.Fatalf("GET /stats returned %d", code)
	}
	if stats["id"] != "self" || stats["num_peers"] != "2" {
		t.Fatalf("unexpected stats %v", stats)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `poldercast_http_requests_total{op="stats",status="2xx"}`) {
		t.Fatalf("metrics should count the /stats request:\n%s", rec.Body.String())
	}
}
