package bfgossip

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"
)

type filterInfo struct {
	ID        uint32 `json:"id"`
	Port      uint16 `json:"port"`
	BitLength uint32 `json:"bitLength"`
	HashFuncs uint32 `json:"hashFuncs"`
	BitsSet   int    `json:"bitsSet"`
	Bits      string `json:"bits"`
	Local     bool   `json:"local,omitempty"`
}

type tableInfo struct {
	GroupID    uint32       `json:"groupId"`
	LocalID    uint32       `json:"localId"`
	MaxFilters int          `json:"maxFilters"`
	Filters    []filterInfo `json:"filters"`
}

func (n *Node) tableInfo() tableInfo {
	s := n.table.Snapshot()
	info := tableInfo{
		GroupID:    n.table.GroupID(),
		LocalID:    n.options.LocalID,
		MaxFilters: n.table.MaxFilters(),
		Filters:    make([]filterInfo, 0, len(s)),
	}

	for _, f := range s {
		info.Filters = append(info.Filters, filterInfo{
			ID:        f.ID(),
			Port:      f.Port(),
			BitLength: f.BitLength(),
			HashFuncs: f.HashFuncs(),
			BitsSet:   f.PopCount(),
			Bits:      hex.EncodeToString(f.Bytes()),
			Local:     f.ID() == n.options.LocalID,
		})
	}

	return info
}

func (n *Node) serveTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(n.tableInfo()); err != nil {
		n.log.Errorf("failed to write table: %v", err)
	}
}

// supportHandler serves the metrics on /metrics and the group directory
// table on /gdt.
func (n *Node) supportHandler() http.Handler {
	mux := http.NewServeMux()
	n.metrics.RegisterHandler("/metrics", mux)
	n.metrics.RegisterHandler("/metrics/", mux)
	mux.HandleFunc("/gdt", n.serveTable)
	return mux
}

func (n *Node) serveSupport(ctx context.Context) error {
	l, err := net.Listen("tcp", n.options.SupportListener)
	if err != nil {
		n.log.Errorf("failed to start support listener: %v", err)
		return err
	}

	s := &http.Server{
		Handler:           n.supportHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		s.Shutdown(sctx)
	})
	defer stop()

	n.log.Infof("support listener on %v", l.Addr())
	if err := s.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		n.log.Errorf("support listener failed: %v", err)
		return err
	}

	return nil
}
