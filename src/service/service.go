package service

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/node"
	"github.com/mosaicnetworks/poldercast/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService registers the API handlers with the DefaultServeMux of the http
// package.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	return NewServiceWithMux(bindAddress, n, http.DefaultServeMux, logger)
}

// NewServiceWithMux registers the API handlers with mux.
func NewServiceWithMux(bindAddress string, n *node.Node, mux *http.ServeMux, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         mux,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the mux of the service. It
// is possible that another server in the same process is simultaneously using
// the DefaultServeMux. In which case, the handlers will be accessible from
// both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering PolderCast API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler("stats", s.GetStats))
	s.mux.HandleFunc("/view", s.makeHandler("view", s.GetView))
	s.mux.HandleFunc("/view/", s.makeHandler("module_view", s.GetModuleView))
	s.mux.HandleFunc("/modules", s.makeHandler("modules", s.GetModules))
	s.mux.HandleFunc("/profiles", s.makeHandler("profiles", s.GetProfiles))
	s.mux.HandleFunc("/report", s.makeHandler("report", s.GetReport))
	s.mux.Handle("/metrics", telemetry.MetricsHandler())
}

func (s *Service) makeHandler(op string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return telemetry.Instrument(op, func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	})
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when PolderCast is used in-memory and another server has already
// been started with the DefaultServeMux and the same address:port combination.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving PolderCast API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetView returns the merged view of the node.
func (s *Service) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Manager().CurrentView())
}

// GetModuleView returns the view of the module named in the path.
func (s *Service) GetModuleView(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/view/")

	view, err := s.node.Manager().ModuleView(name)
	if err != nil {
		s.logger.WithError(err).Debugf("Retrieving view of module %s", name)

		code := http.StatusInternalServerError
		if common.Is(err, common.UnknownModule) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)

		return
	}

	writeJSON(w, view)
}

// GetModules returns the names of the enabled modules.
func (s *Service) GetModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Manager().Modules())
}

// GetProfiles returns the content of the profile store.
func (s *Service) GetProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Manager().Store().All())
}

// GetReport returns the report of the last gossip round.
func (s *Service) GetReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Manager().LastReport())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
