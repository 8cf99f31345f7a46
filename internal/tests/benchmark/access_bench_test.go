package benchmark

import (
	"testing"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/access"
)

func operator() *access.UserContext {
	return access.NewUserContext(access.UserContextConfig{
		UserID:             200,
		GroupIDs:           []uint16{10},
		DefaultPermissions: access.Browseable,
	})
}

// BenchmarkCheck measures the permission decision alone.
func BenchmarkCheck(b *testing.B) {
	node := &access.NodeAccessInfo{
		OwnerID: 100,
		GroupID: 10,
		Owner:   access.Operation,
		Group:   access.Observation,
	}
	users := map[string]*access.UserContext{
		"owner": access.NewUserContext(access.UserContextConfig{UserID: 100}),
		"group": operator(),
		"other": access.NewUserContext(access.UserContextConfig{UserID: 300}),
	}
	for name, u := range users {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				access.Check(u, node, access.Read)
			}
		})
	}
}

// BenchmarkRead measures an authorized value read by node id.
func BenchmarkRead(b *testing.B) {
	runWithCounts(b, "nodes", NodeCounts, func(b *testing.B, count int) {
		m, vars := newAddressSpace(b, count)
		u := operator()

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := m.Read(u, vars[i%len(vars)]); err != nil {
				b.Fatalf("Read: %v", err)
			}
		}

		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkReadParallel measures concurrent reads under the manager's read
// lock.
func BenchmarkReadParallel(b *testing.B) {
	m, vars := newAddressSpace(b, 10000)
	u := operator()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := m.Read(u, vars[i%len(vars)]); err != nil {
				b.Errorf("Read: %v", err)
				return
			}
			i++
		}
	})
}

// BenchmarkBrowse measures listing a folder of 100 variables with a
// browse check per child.
func BenchmarkBrowse(b *testing.B) {
	m, _ := newAddressSpace(b, 1000)
	u := operator()
	refs, err := m.Browse(u, addrspace.ObjectsFolder)
	if err != nil || len(refs) == 0 {
		b.Fatalf("Browse(Objects) = %d refs, %v", len(refs), err)
	}
	folder := refs[0].Target

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := m.Browse(u, folder); err != nil {
			b.Fatalf("Browse: %v", err)
		}
	}
}
