package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Thog/inochi2d-go/metrics"
	"github.com/Thog/inochi2d-go/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve <puppet>...",
	Short: "Keep puppets running and expose metrics over HTTP",
	Long: `Loads the given puppets and runs frames at the configured rate until
interrupted. Serves:

  GET /metrics   Prometheus metrics for native handles
  GET /puppets   live puppets and their frame counts
  GET /health`,
	Args: cobra.MinimumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":9464", "HTTP listen address")
	serveCmd.Flags().Int("fps", 30, "frames per second")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("fps", serveCmd.Flags().Lookup("fps"))
}

type puppetStatus struct {
	Name   string `json:"name"`
	Handle uint32 `json:"handle"`
	Frames int    `json:"frames"`
	Failed bool   `json:"failed,omitempty"`
}

// server runs frames on a single goroutine; HTTP handlers only read the
// counters it publishes under mu.
type server struct {
	mu      sync.Mutex
	inst    *runtime.Instance
	puppets []*runtime.Puppet
	frames  map[*runtime.Puppet]int
	failed  map[*runtime.Puppet]bool
	log     *zap.Logger
}

func newServer(inst *runtime.Instance, puppets []*runtime.Puppet, log *zap.Logger) *server {
	return &server{
		inst:    inst,
		puppets: puppets,
		frames:  make(map[*runtime.Puppet]int, len(puppets)),
		failed:  make(map[*runtime.Puppet]bool),
		log:     log,
	}
}

func (s *server) routes(collector *metrics.Collector) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", collector.Handler()).Methods("GET")
	r.HandleFunc("/puppets", s.handlePuppets).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	return r
}

func (s *server) step(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live []*runtime.Puppet
	for _, p := range s.puppets {
		if !s.failed[p] {
			live = append(live, p)
		}
	}
	done := runFrames(ctx, s.inst, live, 1)
	for _, p := range live {
		if done[p] == 0 {
			s.failed[p] = true
			s.log.Warn("puppet stopped", zap.String("puppet", p.Name()), zap.Int("frames", s.frames[p]))
			continue
		}
		s.frames[p]++
	}
}

func (s *server) run(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

func (s *server) status() []puppetStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]puppetStatus, 0, len(s.puppets))
	for _, p := range s.puppets {
		out = append(out, puppetStatus{
			Name:   p.Name(),
			Handle: uint32(p.Handle()),
			Frames: s.frames[p],
			Failed: s.failed[p],
		})
	}
	return out
}

func (s *server) handlePuppets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.log.Warn("encode puppets", zap.Error(err))
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.inst.Closed()
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if closed {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"closed"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	var puppets []*runtime.Puppet
	for _, path := range args {
		p, err := loadPuppet(ctx, sess.inst, path, false)
		if err != nil {
			sess.log.Error("load failed", zap.String("puppet", path), zap.Error(err))
			continue
		}
		puppets = append(puppets, p)
	}
	if len(puppets) == 0 {
		return errors.New("no puppet could be loaded")
	}

	srv := newServer(sess.inst, puppets, sess.log.Named("serve"))
	httpSrv := &http.Server{
		Addr:         sess.settings.Listen,
		Handler:      srv.routes(sess.collector),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.run(ctx, sess.settings.FPS)
	}()

	errCh := make(chan error, 1)
	go func() {
		sess.log.Info("serving", zap.String("addr", httpSrv.Addr), zap.Int("puppets", len(puppets)))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		sess.log.Warn("server shutdown", zap.Error(serr))
	}
	wg.Wait()

	sess.log.Info("stopped")
	return err
}
