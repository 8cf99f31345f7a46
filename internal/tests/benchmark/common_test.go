package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// SessionCounts are the session populations of the session benchmarks.
var SessionCounts = []int{1000, 5000, 10000}

// NodeCounts are the address space sizes of the access benchmarks.
var NodeCounts = []int{1000, 10000, 50000}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// allowAll accepts every identity as user 100 in group 10.
type allowAll struct{}

func (allowAll) Authenticate(_ context.Context, _ *service.AuthenticateRequest) (*access.UserContext, error) {
	return access.NewUserContext(access.UserContextConfig{
		UserID:             100,
		GroupIDs:           []uint16{10},
		DefaultPermissions: access.Browseable,
	}), nil
}

// newSessionManager creates a manager with room for count sessions plus
// headroom for the benchmark loop.
func newSessionManager(b *testing.B, count int) *service.SessionManager {
	b.Helper()
	cfg := service.DefaultSessionManagerConfig()
	cfg.MaxSessionCount = count + 1024
	cfg.PurgeInterval = time.Hour
	cfg.AuthFailureRate = 0
	m, err := service.NewSessionManager(cfg, allowAll{}, service.WithLogger(discardLogger()))
	if err != nil {
		b.Fatalf("NewSessionManager: %v", err)
	}
	return m
}

// prefillSessions creates count sessions spread over 100 client names.
func prefillSessions(b *testing.B, m *service.SessionManager, count int) []*domain.Session {
	b.Helper()
	out := make([]*domain.Session, count)
	for i := range out {
		resp, err := m.CreateSession(context.Background(), &service.CreateSessionRequest{
			Name:             fmt.Sprintf("urn:bench:client:%d", i%100),
			RequestedTimeout: time.Minute,
			ClientAddress:    "192.168.1.1:4840",
		})
		if err != nil {
			b.Fatalf("CreateSession: %v", err)
		}
		out[i] = resp.Session
	}
	return out
}

// newAddressSpace builds Objects/Folder_i/Var_i_j with count variables, each
// owned by user 100 and readable by group 10.
func newAddressSpace(b *testing.B, count int) (*addrspace.Manager, []nodeid.NodeID) {
	b.Helper()
	m, err := addrspace.NewManager(addrspace.Config{IndexSize: 100003}, addrspace.WithLogger(discardLogger()))
	if err != nil {
		b.Fatalf("NewManager: %v", err)
	}
	if err := addrspace.AddStandardNodes(m); err != nil {
		b.Fatalf("AddStandardNodes: %v", err)
	}

	policy := access.NodeAccessInfo{
		OwnerID: 100,
		GroupID: 10,
		Owner:   access.Operation | access.Browseable,
		Group:   access.Observation | access.Browseable,
	}
	const perFolder = 100
	vars := make([]nodeid.NodeID, 0, count)
	for f := 0; len(vars) < count; f++ {
		folder := nodeid.NewString(2, fmt.Sprintf("Folder_%d", f))
		n, _ := addrspace.NewNode(folder, addrspace.ClassObject, fmt.Sprintf("Folder_%d", f), addrspace.TypeNone,
			addrspace.WithAccess(policy))
		if err := m.AddNode(n, addrspace.ObjectsFolder); err != nil {
			b.Fatalf("AddNode(%s): %v", folder, err)
		}
		for j := 0; j < perFolder && len(vars) < count; j++ {
			id := nodeid.NewNumeric(2, uint32(f*perFolder+j+1))
			v, _ := addrspace.NewNode(id, addrspace.ClassVariable, fmt.Sprintf("Var_%d_%d", f, j), addrspace.TypeDouble,
				addrspace.WithValue(float64(j)), addrspace.WithAccess(policy))
			if err := m.AddNode(v, folder); err != nil {
				b.Fatalf("AddNode(%s): %v", id, err)
			}
			vars = append(vars, id)
		}
	}
	return m, vars
}

// reportMemory reports heap usage after a benchmark.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithCounts runs benchFn once per population size.
func runWithCounts(b *testing.B, name string, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("%s_%d", name, count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
